// Package partition drives the full pipeline turning an unordered set of
// slice files into spatially ordered volumes:
//
//	SCAN -> KEY -> GROUP -> {SORT -> VALIDATE_SPLIT}* per group -> MERGE
//
// Scanning is a single batch call to the extractor. Every candidate group
// is then resolved independently on a bounded pool of goroutines; the
// only shared state is the result set, written under a mutex once per
// finalized volume.
package partition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"

	"dicomseries/internal/logging"
	"dicomseries/internal/models"
	"dicomseries/pkg/geometry"
	"dicomseries/pkg/grouping"
	"dicomseries/pkg/spacing"
	"dicomseries/pkg/tags"
)

// ProgressCallback is invoked after each candidate group is resolved.
type ProgressCallback func(completed, total int, key models.GroupKey)

// Params holds the partitioning parameters.
type Params struct {
	// NumWorkers bounds how many groups are resolved concurrently.
	// Zero means GOMAXPROCS.
	NumWorkers int

	// Tolerance is the geometric tolerance for equal slice distances and
	// for spacing violations. Zero means geometry.DefaultTolerance.
	Tolerance float64

	// RestrictionTags are appended to the mandatory grouping tags.
	RestrictionTags []models.TagID

	// SkipInvalidGroups drops groups whose slices cannot be ordered
	// instead of failing the whole run.
	SkipInvalidGroups bool

	// Logger receives warnings about metadata and split decisions.
	Logger *slog.Logger

	// Progress is optional.
	Progress ProgressCallback
}

// GroupError reports a candidate group that could not be resolved.
type GroupError struct {
	Key   models.GroupKey
	Files []string
	Err   error
}

func (e *GroupError) Error() string {
	return fmt.Sprintf("group %q (%d files): %v", e.Key, len(e.Files), e.Err)
}

func (e *GroupError) Unwrap() error { return e.Err }

// Partitioner partitions slice files into volumes using an extractor for
// their metadata. It is safe for concurrent use.
type Partitioner struct {
	extractor tags.Extractor
	params    Params
	logger    *slog.Logger
}

// New creates a partitioner. Zero-valued parameters take their defaults.
func New(extractor tags.Extractor, params Params) *Partitioner {
	if params.NumWorkers <= 0 {
		params.NumWorkers = runtime.GOMAXPROCS(0)
	}
	if params.Tolerance <= 0 {
		params.Tolerance = geometry.DefaultTolerance
	}
	ids := make([]models.TagID, len(params.RestrictionTags))
	for i, id := range params.RestrictionTags {
		ids[i] = tags.Normalize(id)
	}
	params.RestrictionTags = ids

	return &Partitioner{
		extractor: extractor,
		params:    params,
		logger:    logging.OrDiscard(params.Logger),
	}
}

// Partition maps every finalized group key to its ordered file paths.
// An empty input yields an empty result.
func (p *Partitioner) Partition(ctx context.Context, paths []string) (models.PartitionResult, error) {
	rep, err := p.Analyze(ctx, paths)
	if err != nil {
		return nil, err
	}
	return rep.Result(), nil
}

// PartitionDirectory partitions the readable files directly inside dir.
func (p *Partitioner) PartitionDirectory(ctx context.Context, dir string) (models.PartitionResult, error) {
	files, err := p.DirectoryFiles(dir)
	if err != nil {
		return nil, err
	}
	return p.Partition(ctx, files)
}

// DirectoryFiles lists dir through the extractor and keeps the files it
// can read. A listing failure is fatal.
func (p *Partitioner) DirectoryFiles(dir string) ([]string, error) {
	all, err := p.extractor.ListFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate files: %w", err)
	}

	files := make([]string, 0, len(all))
	for _, f := range all {
		if p.extractor.CanRead(f) {
			files = append(files, f)
		} else {
			p.logger.Debug("ignoring unreadable file", "file", f)
		}
	}
	return files, nil
}

// Analyze runs the pipeline and returns the volumes with their geometry.
func (p *Partitioner) Analyze(ctx context.Context, paths []string) (*models.Report, error) {
	paths = dedupe(paths)
	rep := &models.Report{Scanned: len(paths), Volumes: []models.Volume{}}
	if len(paths) == 0 {
		return rep, nil
	}

	// SCAN
	p.logger.Info("scanning files", "files", len(paths))
	raw, err := p.extractor.Scan(ctx, paths, tags.ScanTags(p.params.RestrictionTags))
	if err != nil {
		return nil, fmt.Errorf("failed to scan files: %w", err)
	}

	// KEY
	records := make(map[string]models.FileTagRecord, len(raw))
	ordered := make([]models.FileTagRecord, 0, len(raw))
	for _, path := range paths {
		values, ok := raw[path]
		if !ok {
			p.logger.Warn("no metadata for file", "file", path)
			continue
		}
		rec := tags.ToRecord(path, values, p.params.RestrictionTags, p.logger)
		records[path] = rec
		ordered = append(ordered, rec)
	}

	// GROUP
	groups := grouping.Group(ordered, p.params.RestrictionTags, p.logger)
	keys := grouping.Keys(groups)
	p.logger.Info("formed candidate groups", "groups", len(keys), "files", len(ordered))

	// SORT -> VALIDATE_SPLIT, one task per group
	set := newResultSet(len(keys), p.params.Progress, p.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(p.params.NumWorkers, max(1, len(keys))))
	for _, key := range keys {
		key := key
		files := groups[key]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			volumes, err := p.resolveGroup(key, files, records)
			set.finish(key, volumes, err)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("partitioning interrupted: %w", err)
	}

	// MERGE
	if len(set.errs) > 0 {
		if !p.params.SkipInvalidGroups {
			return nil, errors.Join(set.errs...)
		}
		for _, err := range set.errs {
			var ge *GroupError
			if errors.As(err, &ge) {
				p.logger.Error("skipping invalid group", "group", string(ge.Key), "error", ge.Err)
				rep.Skipped = append(rep.Skipped, ge.Key)
			}
		}
	}
	rep.Skipped = append(rep.Skipped, set.collisions...)
	sort.Slice(rep.Skipped, func(i, j int) bool { return rep.Skipped[i] < rep.Skipped[j] })

	rep.Volumes = set.volumes()
	p.logger.Info("partitioning complete", "volumes", len(rep.Volumes), "skipped", len(rep.Skipped))
	return rep, nil
}

// resolveGroup sorts and splits one candidate group. Remainders are queued
// as fresh groups under key.1, key.2, and so on until none is left.
func (p *Partitioner) resolveGroup(key models.GroupKey, files []string, records map[string]models.FileTagRecord) ([]models.Volume, error) {
	tol := p.params.Tolerance
	queue := []models.Group{{Key: key, Files: files}}
	var volumes []models.Volume
	suffix := 0

	for len(queue) > 0 {
		group := queue[0]
		queue = queue[1:]

		sorted, err := geometry.Sort(group.Files, records, tol)
		if err != nil {
			return nil, &GroupError{Key: key, Files: files, Err: err}
		}
		positions, err := geometry.Positions(sorted, records)
		if err != nil {
			return nil, &GroupError{Key: key, Files: files, Err: err}
		}

		ok, remainder := spacing.ValidateAndSplit(sorted, positions, tol)
		volumes = append(volumes, buildVolume(group.Key, ok, positions[:len(ok)], records))

		if len(remainder) > 0 {
			suffix++
			next := key.Derived(suffix)
			p.logger.Info("inconsistent slice spacing, splitting group",
				"group", string(group.Key), "kept", len(ok), "remainder", len(remainder),
				"at", remainder[0], "new_group", string(next))
			queue = append(queue, models.Group{Key: next, Files: remainder})
		}
	}
	return volumes, nil
}

func buildVolume(key models.GroupKey, files []string, positions []r3.Vec, records map[string]models.FileTagRecord) models.Volume {
	v := models.Volume{Key: key, Files: files}
	if len(files) == 0 {
		return v
	}
	v.Normal = models.VecArray(geometry.Normal(records[files[0]].Orientation))
	v.Origin = models.VecArray(positions[0])
	v.Step = models.VecArray(spacing.Step(positions))

	stats := spacing.Summarize(positions)
	v.MeanSpacing = stats.Mean
	v.SpacingStdDev = stats.StdDev
	return v
}

// dedupe drops empty and repeated paths, keeping first occurrences.
func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// resultSet collects finalized volumes. Entries are written once.
type resultSet struct {
	mu         sync.Mutex
	byKey      map[models.GroupKey]models.Volume
	errs       []error
	collisions []models.GroupKey
	completed  int
	total      int
	progress   ProgressCallback
	logger     *slog.Logger
}

func newResultSet(total int, progress ProgressCallback, logger *slog.Logger) *resultSet {
	return &resultSet{
		byKey:    make(map[models.GroupKey]models.Volume),
		total:    total,
		progress: progress,
		logger:   logger,
	}
}

func (s *resultSet) finish(key models.GroupKey, volumes []models.Volume, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.errs = append(s.errs, err)
	}
	for _, v := range volumes {
		if existing, ok := s.byKey[v.Key]; ok {
			// The first finalized volume keeps the key; derived keys of
			// distinct groups are not made unique.
			s.logger.Error("group key collision, keeping first volume",
				"group", string(v.Key), "kept_files", existing.Files, "dropped_files", v.Files)
			s.collisions = append(s.collisions, v.Key)
			continue
		}
		s.byKey[v.Key] = v
	}

	s.completed++
	if s.progress != nil {
		s.progress(s.completed, s.total, key)
	}
}

func (s *resultSet) volumes() []models.Volume {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Volume, 0, len(s.byKey))
	for _, v := range s.byKey {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
