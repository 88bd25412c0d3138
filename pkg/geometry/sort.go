// Package geometry orders the slices of a candidate volume along their
// common slice normal.
package geometry

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"dicomseries/internal/models"
)

// DefaultTolerance is the geometric tolerance, in patient space units,
// under which two slice distances are considered equal.
const DefaultTolerance = 1e-6

// OrientationError reports two files of one group whose orientations
// differ. It means the grouping step failed to separate them.
type OrientationError struct {
	A, B string
}

func (e *OrientationError) Error() string {
	return fmt.Sprintf("orientation mismatch between %s and %s in one group", e.A, e.B)
}

// MissingRecordError reports a group member without tag data.
type MissingRecordError struct {
	Path string
}

func (e *MissingRecordError) Error() string {
	return fmt.Sprintf("no tag record for %s", e.Path)
}

// Normal returns the slice normal, the cross product of the row and
// column direction cosines.
func Normal(orientation [6]float64) r3.Vec {
	row := r3.Vec{X: orientation[0], Y: orientation[1], Z: orientation[2]}
	col := r3.Vec{X: orientation[3], Y: orientation[4], Z: orientation[5]}
	return r3.Cross(row, col)
}

// Distance projects the slice position onto its normal.
func Distance(rec models.FileTagRecord) float64 {
	return r3.Dot(Normal(rec.Orientation), rec.Position)
}

// SameOrientation reports whether two records share the orientation vectors.
func SameOrientation(a, b models.FileTagRecord) bool {
	return floats.Equal(a.Orientation[:], b.Orientation[:])
}

// Sort returns paths ordered by ascending slice distance. Distances closer
// than tolerance are ordered by acquisition time, files without one first,
// and finally by path so the order is total. The input slice is not
// modified.
func Sort(paths []string, records map[string]models.FileTagRecord, tolerance float64) ([]string, error) {
	type entry struct {
		rec      models.FileTagRecord
		distance float64
	}

	entries := make([]entry, len(paths))
	for i, p := range paths {
		rec, ok := records[p]
		if !ok {
			return nil, &MissingRecordError{Path: p}
		}
		entries[i] = entry{rec: rec, distance: Distance(rec)}
	}

	var mismatch error
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !SameOrientation(a.rec, b.rec) {
			if mismatch == nil {
				mismatch = &OrientationError{A: a.rec.Path, B: b.rec.Path}
			}
			return false
		}
		return less(a.rec, b.rec, a.distance, b.distance, tolerance)
	})
	if mismatch != nil {
		return nil, mismatch
	}

	sorted := make([]string, len(entries))
	for i, e := range entries {
		sorted[i] = e.rec.Path
	}
	return sorted, nil
}

func less(a, b models.FileTagRecord, da, db, tolerance float64) bool {
	if math.Abs(da-db) >= tolerance {
		return da < db
	}
	ta, tb := acquisitionKey(a), acquisitionKey(b)
	if ta != tb {
		return ta < tb
	}
	return a.Path < b.Path
}

// acquisitionKey places files without an acquisition time first.
func acquisitionKey(rec models.FileTagRecord) float64 {
	if !rec.HasAcquisitionTime {
		return math.Inf(-1)
	}
	return rec.AcquisitionSeconds
}

// Positions returns the positions of paths in order.
func Positions(paths []string, records map[string]models.FileTagRecord) ([]r3.Vec, error) {
	positions := make([]r3.Vec, len(paths))
	for i, p := range paths {
		rec, ok := records[p]
		if !ok {
			return nil, &MissingRecordError{Path: p}
		}
		positions[i] = rec.Position
	}
	return positions, nil
}
