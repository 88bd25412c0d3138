package tags

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"dicomseries/internal/models"
)

// StaticExtractor serves tag values from memory. It backs offline runs
// from a tag manifest and the package tests.
type StaticExtractor struct {
	files map[string]map[models.TagID]string
}

// NewStaticExtractor creates an extractor over a path to tags mapping.
// Tag identifiers are normalized.
func NewStaticExtractor(files map[string]map[models.TagID]string) *StaticExtractor {
	s := &StaticExtractor{files: make(map[string]map[models.TagID]string, len(files))}
	for path, raw := range files {
		s.Add(path, raw)
	}
	return s
}

// Add registers or replaces the tags of one file.
func (s *StaticExtractor) Add(path string, raw map[models.TagID]string) {
	tags := make(map[models.TagID]string, len(raw))
	for id, v := range raw {
		tags[Normalize(id)] = v
	}
	s.files[path] = tags
}

// Scan implements Extractor. Unknown paths are left out of the result.
func (s *StaticExtractor) Scan(ctx context.Context, paths []string, ids []models.TagID) (map[string]map[models.TagID]string, error) {
	out := make(map[string]map[models.TagID]string, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, ok := s.files[path]
		if !ok {
			continue
		}
		values := make(map[models.TagID]string, len(ids))
		for _, id := range ids {
			if v, ok := raw[Normalize(id)]; ok {
				values[id] = v
			}
		}
		out[path] = values
	}
	return out, nil
}

// CanRead implements Extractor.
func (s *StaticExtractor) CanRead(path string) bool {
	_, ok := s.files[path]
	return ok
}

// ListFiles implements Extractor, returning the known paths located
// directly in dir.
func (s *StaticExtractor) ListFiles(dir string) ([]string, error) {
	dir = filepath.Clean(dir)
	var paths []string
	for path := range s.files {
		if filepath.Dir(path) == dir {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Paths returns every known path, sorted.
func (s *StaticExtractor) Paths() []string {
	paths := make([]string, 0, len(s.files))
	for path := range s.files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// manifest is the on-disk form of a tag dump.
type manifest struct {
	Files map[string]map[string]string `yaml:"files"`
}

// LoadManifest reads a YAML tag dump of the form
//
//	files:
//	  /data/ct/0001.dcm:
//	    "0020|000e": 1.2.840.1
//	    "0020|0032": 0\0\0
//
// and returns an extractor serving it.
func LoadManifest(path string) (*StaticExtractor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading manifest: %w", err)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("error parsing manifest: %w", err)
	}

	s := NewStaticExtractor(nil)
	for file, raw := range m.Files {
		tags := make(map[models.TagID]string, len(raw))
		for id, v := range raw {
			if _, _, err := ParseTagID(models.TagID(id)); err != nil {
				return nil, fmt.Errorf("manifest entry %s: %w", file, err)
			}
			tags[models.TagID(id)] = v
		}
		s.Add(file, tags)
	}
	return s, nil
}
