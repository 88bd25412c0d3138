// Package tags defines the metadata collaborator consumed by the
// partitioner and the single step that turns its loosely typed output
// into models.FileTagRecord values.
package tags

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"dicomseries/internal/models"
)

// Attributes read for every file.
const (
	SeriesInstanceUID       models.TagID = "0020|000e"
	Rows                    models.TagID = "0028|0010"
	Columns                 models.TagID = "0028|0011"
	PixelSpacing            models.TagID = "0028|0030"
	SliceThickness          models.TagID = "0018|0050"
	ImageOrientationPatient models.TagID = "0020|0037"
	ImagePositionPatient    models.TagID = "0020|0032"
	AcquisitionTime         models.TagID = "0008|0032"
)

// ErrInvalidTag is returned for identifiers not in "gggg|eeee" form.
var ErrInvalidTag = errors.New("invalid tag identifier")

// Extractor reads raw tag values from image files. Implementations hide
// the binary decoding of the file format.
type Extractor interface {
	// Scan returns, for every readable path, the requested tag values.
	// Tags absent from a file are absent from its map.
	Scan(ctx context.Context, paths []string, ids []models.TagID) (map[string]map[models.TagID]string, error)

	// CanRead reports whether path looks like a file the extractor handles.
	CanRead(path string) bool

	// ListFiles enumerates the files directly inside dir.
	ListFiles(dir string) ([]string, error)
}

// GroupingTags returns the mandatory grouping tags in key order.
func GroupingTags() []models.TagID {
	return []models.TagID{
		SeriesInstanceUID,
		Rows,
		Columns,
		PixelSpacing,
		SliceThickness,
		ImageOrientationPatient,
	}
}

// ScanTags returns every tag the partitioner needs: the grouping tags,
// the sorting tags and any extra restrictions, without duplicates.
func ScanTags(extra []models.TagID) []models.TagID {
	ids := append(GroupingTags(), ImagePositionPatient, AcquisitionTime)
	seen := make(map[models.TagID]bool, len(ids)+len(extra))
	for _, id := range ids {
		seen[id] = true
	}
	for _, id := range extra {
		id = Normalize(id)
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

// Normalize lower-cases and trims an identifier so "0020|000E" and
// "0020|000e" name the same tag.
func Normalize(id models.TagID) models.TagID {
	return models.TagID(strings.ToLower(strings.TrimSpace(string(id))))
}

// ParseTagID splits an identifier into its group and element numbers.
func ParseTagID(id models.TagID) (group, element uint16, err error) {
	g, e, ok := strings.Cut(string(Normalize(id)), "|")
	if !ok || len(g) != 4 || len(e) != 4 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTag, id)
	}
	gv, err := strconv.ParseUint(g, 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTag, id)
	}
	ev, err := strconv.ParseUint(e, 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTag, id)
	}
	return uint16(gv), uint16(ev), nil
}

// FormatTagID builds an identifier from group and element numbers.
func FormatTagID(group, element uint16) models.TagID {
	return models.TagID(fmt.Sprintf("%04x|%04x", group, element))
}

// ParseTagIDs validates and normalizes a list of identifiers.
func ParseTagIDs(raw []string) ([]models.TagID, error) {
	ids := make([]models.TagID, 0, len(raw))
	for _, s := range raw {
		id := Normalize(models.TagID(s))
		if _, _, err := ParseTagID(id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
