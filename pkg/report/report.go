// Package report renders partition reports for people and for tools.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"

	"dicomseries/internal/models"
)

// Output formats.
const (
	FormatText    = "text"
	FormatJSON    = "json"
	FormatYAML    = "yaml"
	FormatMsgpack = "msgpack"
)

// Formats lists the supported output formats.
func Formats() []string {
	return []string{FormatText, FormatJSON, FormatYAML, FormatMsgpack}
}

// IsFormat reports whether name is a supported output format.
func IsFormat(name string) bool {
	for _, f := range Formats() {
		if f == strings.ToLower(name) {
			return true
		}
	}
	return false
}

// Write encodes rep to w in the named format.
func Write(w io.Writer, rep *models.Report, format string) error {
	switch strings.ToLower(format) {
	case FormatText:
		return writeText(w, rep)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rep); err != nil {
			return err
		}
		return enc.Close()
	case FormatMsgpack:
		return msgpack.NewEncoder(w).Encode(rep)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// Read decodes a report previously written in a machine readable format.
func Read(r io.Reader, format string) (*models.Report, error) {
	rep := &models.Report{}
	var err error
	switch strings.ToLower(format) {
	case FormatJSON:
		err = json.NewDecoder(r).Decode(rep)
	case FormatYAML:
		err = yaml.NewDecoder(r).Decode(rep)
	case FormatMsgpack:
		err = msgpack.NewDecoder(r).Decode(rep)
	default:
		return nil, fmt.Errorf("format %q cannot be read back", format)
	}
	if err != nil {
		return nil, fmt.Errorf("error decoding %s report: %w", format, err)
	}
	return rep, nil
}

var (
	headerColor = color.New(color.Bold)
	keyColor    = color.New(color.FgCyan, color.Bold)
	warnColor   = color.New(color.FgYellow)
)

func writeText(w io.Writer, rep *models.Report) error {
	headerColor.Fprintf(w, "Scanned %d files into %d volumes\n", rep.Scanned, len(rep.Volumes))

	for _, v := range rep.Volumes {
		fmt.Fprintln(w)
		keyColor.Fprintf(w, "%s\n", displayKey(v.Key))
		fmt.Fprintf(w, "  slices: %d\n", len(v.Files))
		fmt.Fprintf(w, "  normal: (%.4f, %.4f, %.4f)\n", v.Normal[0], v.Normal[1], v.Normal[2])
		fmt.Fprintf(w, "  origin: (%.3f, %.3f, %.3f)\n", v.Origin[0], v.Origin[1], v.Origin[2])
		if len(v.Files) > 1 {
			fmt.Fprintf(w, "  spacing: %.4f mm (stddev %.4f)\n", v.MeanSpacing, v.SpacingStdDev)
		}
		for _, f := range v.Files {
			fmt.Fprintf(w, "    %s\n", f)
		}
	}

	if len(rep.Skipped) > 0 {
		fmt.Fprintln(w)
		warnColor.Fprintf(w, "Skipped %d groups:\n", len(rep.Skipped))
		for _, k := range rep.Skipped {
			fmt.Fprintf(w, "  %s\n", displayKey(k))
		}
	}
	return nil
}

func displayKey(k models.GroupKey) string {
	if k == "" {
		return "(empty key)"
	}
	return string(k)
}
