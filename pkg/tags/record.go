package tags

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom/pkg/dcmtime"
	"gonum.org/v1/gonum/spatial/r3"

	"dicomseries/internal/logging"
	"dicomseries/internal/models"
)

// ToRecord translates the raw tag map of one file into a FileTagRecord.
// Missing or malformed values never fail the translation: they are logged
// and replaced by empty or zero values.
func ToRecord(path string, raw map[models.TagID]string, extra []models.TagID, logger *slog.Logger) models.FileTagRecord {
	logger = logging.OrDiscard(logger)

	get := func(id models.TagID) string {
		v, ok := Lookup(raw, id)
		if !ok {
			logger.Warn("tag not found", "file", path, "tag", string(id))
		}
		return v
	}

	rec := models.FileTagRecord{
		Path:              path,
		SeriesInstanceUID: get(SeriesInstanceUID),
		Rows:              get(Rows),
		Columns:           get(Columns),
		PixelSpacing:      get(PixelSpacing),
		SliceThickness:    get(SliceThickness),
		ImageOrientation:  get(ImageOrientationPatient),
	}

	orientation, err := ParseVector(rec.ImageOrientation)
	if err != nil || len(orientation) != 6 {
		logger.Warn("image orientation does not have 6 components",
			"file", path, "value", rec.ImageOrientation, "parsed", len(orientation), "error", err)
	}
	copy(rec.Orientation[:], orientation)

	rawPos := get(ImagePositionPatient)
	position, err := ParseVector(rawPos)
	if err != nil || len(position) != 3 {
		logger.Error("image position does not have 3 components",
			"file", path, "value", rawPos, "parsed", len(position), "error", err)
	}
	var p [3]float64
	copy(p[:], position)
	rec.Position = r3.Vec{X: p[0], Y: p[1], Z: p[2]}

	// AcquisitionTime is optional, so its absence is not worth a warning.
	if tm, ok := Lookup(raw, AcquisitionTime); ok && tm != "" {
		rec.AcquisitionTime = tm
		secs, err := ParseTime(tm)
		if err != nil {
			logger.Warn("unparsable acquisition time", "file", path, "value", tm, "error", err)
		} else {
			rec.AcquisitionSeconds = secs
			rec.HasAcquisitionTime = true
		}
	}

	if len(extra) > 0 {
		rec.Extra = make(map[models.TagID]string, len(extra))
		for _, id := range extra {
			rec.Extra[Normalize(id)] = get(id)
		}
	}

	return rec
}

// Lookup returns the value of id in raw. The identifier is matched
// case-insensitively.
func Lookup(raw map[models.TagID]string, id models.TagID) (string, bool) {
	if v, ok := raw[id]; ok {
		return v, true
	}
	if v, ok := raw[Normalize(id)]; ok {
		return v, true
	}
	for k, v := range raw {
		if Normalize(k) == Normalize(id) {
			return v, true
		}
	}
	return "", false
}

// ParseVector parses a backslash delimited multi-valued decimal string.
// Components parsed before the first malformed one are returned together
// with the error.
func ParseVector(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, `\`)
	values := make([]float64, 0, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return values, fmt.Errorf("component %d: %w", i, err)
		}
		values = append(values, v)
	}
	return values, nil
}

// ParseTime converts a DICOM TM value (HHMMSS.FFFFFF, possibly truncated
// after the hours or minutes, or the legacy HH:MM:SS form) into seconds
// since midnight. Values outside the TM grammar or its ranges are rejected.
func ParseTime(tm string) (float64, error) {
	tm = strings.ReplaceAll(strings.TrimSpace(tm), ":", "")
	parsed, err := dcmtime.ParseTime(tm)
	if err != nil {
		return 0, fmt.Errorf("malformed time %q: %w", tm, err)
	}
	t := parsed.Time
	secs := t.Hour()*3600 + t.Minute()*60 + t.Second()
	return float64(secs) + float64(t.Nanosecond())/1e9, nil
}
