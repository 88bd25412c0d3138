package tags

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dicomseries/internal/models"
)

func TestParseTagID(t *testing.T) {
	g, e, err := ParseTagID("0020|000E")
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0020), g)
	assert.Equal(t, uint16(0x000e), e)
	assert.Equal(t, SeriesInstanceUID, FormatTagID(g, e))

	for _, bad := range []string{"", "0020000e", "20|e", "zzzz|0001"} {
		_, _, err := ParseTagID(models.TagID(bad))
		assert.ErrorIs(t, err, ErrInvalidTag, bad)
	}
}

func TestScanTagsDeduplicates(t *testing.T) {
	ids := ScanTags([]models.TagID{"0018|0088", "0020|000E", "0018|0088"})
	assert.Len(t, ids, 9)
	assert.Equal(t, models.TagID("0018|0088"), ids[len(ids)-1])
}

func TestParseVector(t *testing.T) {
	v, err := ParseVector(` 1\0 \0.5 `)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 0.5}, v)

	v, err = ParseVector(`1\x\3`)
	assert.Error(t, err)
	assert.Equal(t, []float64{1}, v)

	v, err = ParseVector("")
	assert.NoError(t, err)
	assert.Empty(t, v)
}

func TestParseTime(t *testing.T) {
	cases := map[string]float64{
		"101500":        10*3600 + 15*60,
		"101500.25":     10*3600 + 15*60 + 0.25,
		"10:15:01":      10*3600 + 15*60 + 1,
		"1015":          10*3600 + 15*60,
		"07":            7 * 3600,
		"000000.000001": 0.000001,
	}
	for in, want := range cases {
		got, err := ParseTime(in)
		require.NoError(t, err, in)
		assert.InDelta(t, want, got, 1e-9, in)
	}

	rejected := []string{
		"1",
		"10151",
		"ab0000",
		"1015.x",
		"1230.5e3", // exponent notation
		"996060",   // hours, minutes and seconds out of range
		"12+3",     // sign inside the value
		"",
	}
	for _, bad := range rejected {
		_, err := ParseTime(bad)
		assert.Error(t, err, bad)
	}
}

func TestToRecordOutOfRangeTimeIsAbsent(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	rec := ToRecord("/c.dcm", map[models.TagID]string{AcquisitionTime: "996060"}, nil, logger)

	assert.False(t, rec.HasAcquisitionTime)
	assert.Zero(t, rec.AcquisitionSeconds)
	assert.Equal(t, "996060", rec.AcquisitionTime)
	assert.Contains(t, buf.String(), "unparsable acquisition time")
}

func TestToRecord(t *testing.T) {
	raw := map[models.TagID]string{
		SeriesInstanceUID:       "1.2.3",
		Rows:                    "512",
		Columns:                 "512",
		PixelSpacing:            `0.5\0.5`,
		SliceThickness:          "1",
		ImageOrientationPatient: `1\0\0\0\1\0`,
		ImagePositionPatient:    `-10\20\30.5`,
		AcquisitionTime:         "120000",
		"0018|0088":             "1.5",
	}

	rec := ToRecord("/a.dcm", raw, []models.TagID{"0018|0088"}, nil)

	assert.Equal(t, "/a.dcm", rec.Path)
	assert.Equal(t, "1.2.3", rec.SeriesInstanceUID)
	assert.Equal(t, [6]float64{1, 0, 0, 0, 1, 0}, rec.Orientation)
	assert.Equal(t, -10.0, rec.Position.X)
	assert.Equal(t, 30.5, rec.Position.Z)
	assert.True(t, rec.HasAcquisitionTime)
	assert.Equal(t, 43200.0, rec.AcquisitionSeconds)
	assert.Equal(t, "1.5", rec.Extra["0018|0088"])
}

func TestToRecordMissingValues(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	rec := ToRecord("/b.dcm", map[models.TagID]string{
		ImagePositionPatient: `1\2`,
		AcquisitionTime:      "garbage",
	}, nil, logger)

	assert.Empty(t, rec.SeriesInstanceUID)
	assert.Empty(t, rec.PixelSpacing)
	assert.Equal(t, 1.0, rec.Position.X)
	assert.Equal(t, 2.0, rec.Position.Y)
	assert.Equal(t, 0.0, rec.Position.Z)
	assert.False(t, rec.HasAcquisitionTime)

	out := buf.String()
	assert.Contains(t, out, "tag not found")
	assert.Contains(t, out, "image position does not have 3 components")
	assert.Contains(t, out, "unparsable acquisition time")
}

func TestStaticExtractor(t *testing.T) {
	s := NewStaticExtractor(map[string]map[models.TagID]string{
		"/data/a.dcm":     {"0020|000E": "1.2"},
		"/data/b.dcm":     {SeriesInstanceUID: "1.3", Rows: "4"},
		"/data/sub/c.dcm": {SeriesInstanceUID: "1.4"},
	})

	files, err := s.ListFiles("/data/")
	require.NoError(t, err)
	assert.Equal(t, []string{"/data/a.dcm", "/data/b.dcm"}, files)

	assert.True(t, s.CanRead("/data/a.dcm"))
	assert.False(t, s.CanRead("/data/missing.dcm"))

	got, err := s.Scan(context.Background(), []string{"/data/a.dcm", "/data/b.dcm", "/nope"}, []models.TagID{SeriesInstanceUID})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "1.2", got["/data/a.dcm"][SeriesInstanceUID])
	assert.NotContains(t, got["/data/b.dcm"], Rows)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Scan(ctx, []string{"/data/a.dcm"}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tags.yaml")
	content := `files:
  /scan/0001.dcm:
    "0020|000E": 1.2.840.1
    "0028|0010": 256
    "0020|0032": 0\0\1
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/scan/0001.dcm"}, s.Paths())

	got, err := s.Scan(context.Background(), s.Paths(), ScanTags(nil))
	require.NoError(t, err)
	assert.Equal(t, "1.2.840.1", got["/scan/0001.dcm"][SeriesInstanceUID])
	assert.Equal(t, "256", got["/scan/0001.dcm"][Rows])
	assert.Equal(t, `0\0\1`, got["/scan/0001.dcm"][ImagePositionPatient])

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("files:\n  /x:\n    nottag: 1\n"), 0o644))
	_, err = LoadManifest(bad)
	assert.ErrorIs(t, err, ErrInvalidTag)
}
