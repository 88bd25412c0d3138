package geometry

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"dicomseries/internal/models"
)

var axial = [6]float64{1, 0, 0, 0, 1, 0}

// makeRecords builds one record per z position along the axial normal
func makeRecords(zs ...float64) (map[string]models.FileTagRecord, []string) {
	records := make(map[string]models.FileTagRecord, len(zs))
	paths := make([]string, len(zs))
	for i, z := range zs {
		p := fmt.Sprintf("/slice_%02d.dcm", i)
		records[p] = models.FileTagRecord{
			Path:        p,
			Orientation: axial,
			Position:    r3.Vec{X: -100, Y: -100, Z: z},
		}
		paths[i] = p
	}
	return records, paths
}

func TestNormal(t *testing.T) {
	n := Normal(axial)
	if n != (r3.Vec{Z: 1}) {
		t.Errorf("Expected axial normal (0,0,1), got %v", n)
	}

	// Sagittal: rows along y, columns along -z
	n = Normal([6]float64{0, 1, 0, 0, 0, -1})
	if n != (r3.Vec{X: -1}) {
		t.Errorf("Expected sagittal normal (-1,0,0), got %v", n)
	}
}

func TestDistance(t *testing.T) {
	rec := models.FileTagRecord{Orientation: axial, Position: r3.Vec{X: 5, Y: 7, Z: -3.5}}
	if d := Distance(rec); d != -3.5 {
		t.Errorf("Expected distance -3.5, got %f", d)
	}
}

func TestSortOrdersByDistance(t *testing.T) {
	records, paths := makeRecords(4, 0, 3, 1, 2)

	sorted, err := Sort(paths, records, DefaultTolerance)
	if err != nil {
		t.Fatalf("Sort failed: %v", err)
	}

	prev := math.Inf(-1)
	for _, p := range sorted {
		d := Distance(records[p])
		if d < prev {
			t.Fatalf("Expected ascending distances, got %v", sorted)
		}
		prev = d
	}

	// Input order must not matter
	reversed := make([]string, len(paths))
	for i, p := range paths {
		reversed[len(paths)-1-i] = p
	}
	again, err := Sort(reversed, records, DefaultTolerance)
	if err != nil {
		t.Fatalf("Sort failed: %v", err)
	}
	for i := range sorted {
		if sorted[i] != again[i] {
			t.Fatalf("Expected identical order, got %v and %v", sorted, again)
		}
	}

	if paths[0] != "/slice_00.dcm" {
		t.Error("Sort must not modify its input")
	}
}

func TestSortObliqueNormal(t *testing.T) {
	// Rows along x, columns tilted 45 degrees between y and z
	c := math.Sqrt2 / 2
	orientation := [6]float64{1, 0, 0, 0, c, -c}
	normal := Normal(orientation)

	records := make(map[string]models.FileTagRecord)
	var paths []string
	for i, step := range []float64{2, 0, 1} {
		p := fmt.Sprintf("/oblique_%d", i)
		records[p] = models.FileTagRecord{
			Path:        p,
			Orientation: orientation,
			Position:    r3.Scale(step, normal),
		}
		paths = append(paths, p)
	}

	sorted, err := Sort(paths, records, DefaultTolerance)
	if err != nil {
		t.Fatalf("Sort failed: %v", err)
	}
	want := []string{"/oblique_1", "/oblique_2", "/oblique_0"}
	for i := range want {
		if sorted[i] != want[i] {
			t.Fatalf("Expected %v, got %v", want, sorted)
		}
	}
}

func TestSortTieBreakByAcquisitionTime(t *testing.T) {
	records := map[string]models.FileTagRecord{
		"/late":  {Path: "/late", Orientation: axial, Position: r3.Vec{Z: 1}, AcquisitionSeconds: 200, HasAcquisitionTime: true},
		"/early": {Path: "/early", Orientation: axial, Position: r3.Vec{Z: 1 + 1e-9}, AcquisitionSeconds: 100, HasAcquisitionTime: true},
		"/none":  {Path: "/none", Orientation: axial, Position: r3.Vec{Z: 1}},
		"/first": {Path: "/first", Orientation: axial, Position: r3.Vec{Z: 0}, AcquisitionSeconds: 900, HasAcquisitionTime: true},
	}

	sorted, err := Sort([]string{"/late", "/early", "/none", "/first"}, records, DefaultTolerance)
	if err != nil {
		t.Fatalf("Sort failed: %v", err)
	}

	want := []string{"/first", "/none", "/early", "/late"}
	for i := range want {
		if sorted[i] != want[i] {
			t.Fatalf("Expected %v, got %v", want, sorted)
		}
	}
}

func TestSortOrientationMismatch(t *testing.T) {
	records, paths := makeRecords(0, 1, 2)
	odd := records[paths[1]]
	odd.Orientation = [6]float64{0, 1, 0, 0, 0, -1}
	records[paths[1]] = odd

	_, err := Sort(paths, records, DefaultTolerance)
	var oe *OrientationError
	if !errors.As(err, &oe) {
		t.Fatalf("Expected OrientationError, got %v", err)
	}
	if oe.A != paths[1] && oe.B != paths[1] {
		t.Errorf("Expected error to name %s, got %v", paths[1], oe)
	}
}

func TestSortMissingRecord(t *testing.T) {
	records, paths := makeRecords(0, 1)
	_, err := Sort(append(paths, "/ghost"), records, DefaultTolerance)

	var me *MissingRecordError
	if !errors.As(err, &me) || me.Path != "/ghost" {
		t.Fatalf("Expected MissingRecordError for /ghost, got %v", err)
	}
}

func TestSortTrivialGroups(t *testing.T) {
	sorted, err := Sort(nil, nil, DefaultTolerance)
	if err != nil || len(sorted) != 0 {
		t.Errorf("Expected empty result, got %v, %v", sorted, err)
	}

	records, paths := makeRecords(7)
	sorted, err = Sort(paths, records, DefaultTolerance)
	if err != nil || len(sorted) != 1 {
		t.Errorf("Expected single result, got %v, %v", sorted, err)
	}
}

func TestPositions(t *testing.T) {
	records, paths := makeRecords(3, 1)
	positions, err := Positions(paths, records)
	if err != nil {
		t.Fatalf("Positions failed: %v", err)
	}
	if positions[0].Z != 3 || positions[1].Z != 1 {
		t.Errorf("Unexpected positions %v", positions)
	}
}
