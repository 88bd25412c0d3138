// Package grouping partitions file records into candidate volumes by
// comparing a deterministic key built from their geometry tags.
package grouping

import (
	"log/slog"
	"strings"

	"dicomseries/internal/logging"
	"dicomseries/internal/models"
	"dicomseries/pkg/tags"
)

// Separator follows every non-empty value in a key.
const Separator = "."

// BuildKey concatenates the sanitized grouping values of rec in fixed
// order: SeriesInstanceUID, Rows, Columns, PixelSpacing, SliceThickness,
// ImageOrientation, then the extra restriction tags in the order given.
func BuildKey(rec models.FileTagRecord, restrictions []models.TagID, logger *slog.Logger) models.GroupKey {
	logger = logging.OrDiscard(logger)

	if rec.SeriesInstanceUID == "" {
		logger.Error("missing SeriesInstanceUID, grouping key will lack the series", "file", rec.Path)
	}

	values := []string{
		rec.SeriesInstanceUID,
		rec.Rows,
		rec.Columns,
		rec.PixelSpacing,
		rec.SliceThickness,
		rec.ImageOrientation,
	}
	for _, id := range restrictions {
		values = append(values, rec.Extra[tags.Normalize(id)])
	}

	var b strings.Builder
	for _, v := range values {
		if s := Sanitize(v); s != "" {
			b.WriteString(s)
			b.WriteString(Separator)
		}
	}

	// Exactly one trailing separator is removed. An all-empty key stays
	// empty instead of being cut further.
	key := strings.TrimSuffix(b.String(), Separator)
	if key == "" {
		logger.Error("empty grouping key", "file", rec.Path)
	}
	return models.GroupKey(key)
}

// Sanitize keeps only ASCII letters, digits and dots.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.':
			return r
		}
		return -1
	}, s)
}
