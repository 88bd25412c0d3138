package grouping

import (
	"log/slog"
	"sort"

	"dicomseries/internal/models"
)

// Group buckets the records by key. Paths keep input order inside each
// bucket; that order carries no spatial meaning. Records without a path
// are skipped.
func Group(records []models.FileTagRecord, restrictions []models.TagID, logger *slog.Logger) map[models.GroupKey][]string {
	groups := make(map[models.GroupKey][]string)
	for _, rec := range records {
		if rec.Path == "" {
			continue
		}
		key := BuildKey(rec, restrictions, logger)
		groups[key] = append(groups[key], rec.Path)
	}
	return groups
}

// Keys returns the keys of groups in ascending order.
func Keys(groups map[models.GroupKey][]string) []models.GroupKey {
	keys := make([]models.GroupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
