package models

import (
	"strconv"

	"gonum.org/v1/gonum/spatial/r3"
)

// TagID identifies a DICOM attribute in "gggg|eeee" hexadecimal form,
// e.g. "0020|000e" for SeriesInstanceUID.
type TagID string

// FileTagRecord represents the metadata of a single-slice image file
// after translation from the raw tag map produced by the extractor.
// Records are immutable once created.
type FileTagRecord struct {
	// Path is the file path and the identity of the record
	Path string

	// Raw tag values as stored; these feed the grouping key
	SeriesInstanceUID string
	Rows              string
	Columns           string
	PixelSpacing      string
	SliceThickness    string
	ImageOrientation  string

	// Orientation holds the row direction cosines followed by the
	// column direction cosines
	Orientation [6]float64

	// Position is the ImagePositionPatient of the slice in patient space
	Position r3.Vec

	// AcquisitionTime is the raw TM value; AcquisitionSeconds is only
	// meaningful when HasAcquisitionTime is set
	AcquisitionTime    string
	AcquisitionSeconds float64
	HasAcquisitionTime bool

	// Extra holds values of additional grouping restriction tags
	Extra map[TagID]string
}

// GroupKey identifies a candidate volume.
type GroupKey string

// Derived returns the key of the n-th remainder split off a group.
func (k GroupKey) Derived(n int) GroupKey {
	return GroupKey(string(k) + "." + strconv.Itoa(n))
}

// Group is an ordered sequence of file paths sharing one GroupKey.
type Group struct {
	Key   GroupKey
	Files []string
}

// PartitionResult maps every finalized group key to its ordered file paths.
type PartitionResult map[GroupKey][]string

// Volume is a finalized group together with the geometry derived while
// sorting and validating it.
type Volume struct {
	Key   GroupKey `json:"key" yaml:"key" msgpack:"key"`
	Files []string `json:"files" yaml:"files" msgpack:"files"`

	// Normal is the slice normal shared by every slice
	Normal [3]float64 `json:"normal" yaml:"normal" msgpack:"normal"`

	// Origin is the position of the first slice
	Origin [3]float64 `json:"origin" yaml:"origin" msgpack:"origin"`

	// Step is the constant vector between consecutive slices; zero for
	// single-slice volumes
	Step [3]float64 `json:"step" yaml:"step" msgpack:"step"`

	// Spacing statistics over consecutive slice distances
	MeanSpacing   float64 `json:"meanSpacing" yaml:"meanSpacing" msgpack:"meanSpacing"`
	SpacingStdDev float64 `json:"spacingStdDev" yaml:"spacingStdDev" msgpack:"spacingStdDev"`
}

// Report is the full outcome of one partitioning run.
type Report struct {
	// Scanned is the number of files handed to the extractor
	Scanned int `json:"scanned" yaml:"scanned" msgpack:"scanned"`

	// Volumes lists finalized groups sorted by key
	Volumes []Volume `json:"volumes" yaml:"volumes" msgpack:"volumes"`

	// Skipped lists the keys of groups dropped because they were invalid
	Skipped []GroupKey `json:"skipped,omitempty" yaml:"skipped,omitempty" msgpack:"skipped,omitempty"`
}

// Result converts the report into the plain key to files mapping.
func (r *Report) Result() PartitionResult {
	result := make(PartitionResult, len(r.Volumes))
	for _, v := range r.Volumes {
		result[v.Key] = v.Files
	}
	return result
}

// VecArray converts a gonum vector into a fixed array for serialization.
func VecArray(v r3.Vec) [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}
