// Package dicomfile implements tags.Extractor on top of single-slice
// DICOM Part 10 files.
package dicomfile

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	"golang.org/x/sync/errgroup"

	"dicomseries/internal/logging"
	"dicomseries/internal/models"
	"dicomseries/pkg/tags"
)

// preambleLength is the size of the Part 10 preamble preceding the magic.
const preambleLength = 128

var magic = []byte("DICM")

// Reader scans DICOM files concurrently. Pixel data is never decoded.
type Reader struct {
	workers int
	logger  *slog.Logger
}

// NewReader creates a reader using up to workers goroutines per scan;
// zero or negative means GOMAXPROCS.
func NewReader(workers int, logger *slog.Logger) *Reader {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Reader{workers: workers, logger: logging.OrDiscard(logger)}
}

// Scan parses every path and returns the requested tags. Files that fail
// to parse are logged and left out; only cancellation aborts the scan.
func (r *Reader) Scan(ctx context.Context, paths []string, ids []models.TagID) (map[string]map[models.TagID]string, error) {
	lookups := make([]tag.Tag, len(ids))
	for i, id := range ids {
		g, e, err := tags.ParseTagID(id)
		if err != nil {
			return nil, err
		}
		lookups[i] = tag.Tag{Group: g, Element: e}
	}

	// one slot per path, so workers never share a write target
	results := make([]map[models.TagID]string, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, min(r.workers, len(paths))))

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			values, err := r.readFile(path, ids, lookups)
			if err != nil {
				r.logger.Warn("skipping unreadable file", "file", path, "error", err)
				return nil
			}
			results[i] = values
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scan interrupted: %w", err)
	}

	out := make(map[string]map[models.TagID]string, len(paths))
	for i, values := range results {
		if values != nil {
			out[paths[i]] = values
		}
	}
	return out, nil
}

// readFile parses one file without its pixel data.
func (r *Reader) readFile(path string, ids []models.TagID, lookups []tag.Tag) (map[models.TagID]string, error) {
	ds, err := dicom.ParseFile(path, nil, dicom.SkipPixelData())
	if err != nil {
		return nil, err
	}

	values := make(map[models.TagID]string, len(ids))
	for i, t := range lookups {
		elem, err := ds.FindElementByTag(t)
		if err != nil {
			continue
		}
		values[ids[i]] = formatValue(elem.Value.GetValue())
	}
	return values, nil
}

// formatValue renders a decoded element the way it is stored: multiple
// values joined by the DICOM delimiter.
func formatValue(v interface{}) string {
	switch vals := v.(type) {
	case []string:
		parts := make([]string, len(vals))
		for i, s := range vals {
			parts[i] = strings.Trim(s, " \x00")
		}
		return strings.Join(parts, `\`)
	case []int:
		parts := make([]string, len(vals))
		for i, n := range vals {
			parts[i] = strconv.Itoa(n)
		}
		return strings.Join(parts, `\`)
	case []float64:
		parts := make([]string, len(vals))
		for i, f := range vals {
			parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
		}
		return strings.Join(parts, `\`)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// CanRead reports whether path carries the Part 10 magic after the preamble.
func (r *Reader) CanRead(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	header := make([]byte, preambleLength+len(magic))
	if _, err := io.ReadFull(f, header); err != nil {
		return false
	}
	return bytes.Equal(header[preambleLength:], magic)
}

// ListFiles returns the regular files directly inside dir in name order.
func (r *Reader) ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	return files, nil
}

var _ tags.Extractor = (*Reader)(nil)
