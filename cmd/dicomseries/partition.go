package main

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"dicomseries/internal/logging"
	"dicomseries/internal/models"
	"dicomseries/pkg/config"
	"dicomseries/pkg/partition"
	"dicomseries/pkg/report"
	"dicomseries/pkg/tags"
	"dicomseries/pkg/tags/dicomfile"
)

type partitionOptions struct {
	root        *rootOptions
	format      string
	workers     int
	tolerance   float64
	restrict    []string
	manifest    string
	skipInvalid bool
	logLevel    string
	output      string
	progress    bool
}

func newPartitionCmd(root *rootOptions) *cobra.Command {
	opts := &partitionOptions{root: root}

	cmd := &cobra.Command{
		Use:   "partition [directory | files...]",
		Short: "Group, sort and split slices into volumes",
		Long: `Partition reads the given files, or every readable file directly inside
a single directory argument, and prints one entry per resulting volume.
With --manifest and no arguments, every file listed in the manifest is used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPartition(cmd, opts, args)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.format, "format", "", "output format (text|json|yaml|msgpack)")
	f.IntVar(&opts.workers, "workers", 0, "number of concurrent workers (default: all CPUs)")
	f.Float64Var(&opts.tolerance, "tolerance", 0, "geometric tolerance in patient space units")
	f.StringSliceVar(&opts.restrict, "restrict", nil, "extra grouping tag in gggg|eeee form (repeatable)")
	f.StringVar(&opts.manifest, "manifest", "", "read tags from a YAML manifest instead of DICOM files")
	f.BoolVar(&opts.skipInvalid, "skip-invalid", false, "drop groups that cannot be ordered instead of failing")
	f.StringVar(&opts.logLevel, "log-level", "", "log level (debug|info|warn|error)")
	f.StringVarP(&opts.output, "output", "o", "", "write the report to a file instead of stdout")
	f.BoolVar(&opts.progress, "progress", false, "print group progress to stderr")
	return cmd
}

func runPartition(cmd *cobra.Command, opts *partitionOptions, args []string) error {
	cfg, err := config.LoadConfig(opts.root.configPath)
	if err != nil {
		return err
	}
	applyPartitionFlags(cmd, opts, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.Output.LogLevel)
	if err != nil {
		return err
	}
	logger := logging.Setup(os.Stderr, level, cfg.Output.JSONLogs)

	restrictions, err := tags.ParseTagIDs(cfg.Processing.RestrictionTags)
	if err != nil {
		return err
	}

	var extractor tags.Extractor
	var manifest *tags.StaticExtractor
	if opts.manifest != "" {
		manifest, err = tags.LoadManifest(opts.manifest)
		if err != nil {
			return err
		}
		extractor = manifest
	} else {
		extractor = dicomfile.NewReader(cfg.Processing.NumWorkers, logger)
	}

	params := partition.Params{
		NumWorkers:        cfg.Processing.NumWorkers,
		Tolerance:         cfg.Processing.Tolerance,
		RestrictionTags:   restrictions,
		SkipInvalidGroups: cfg.Processing.SkipInvalidGroups,
		Logger:            logger,
	}
	if opts.progress {
		params.Progress = func(completed, total int, _ models.GroupKey) {
			fmt.Fprintf(os.Stderr, "\rResolving groups: %.1f%% complete", float64(completed)/float64(total)*100)
			if completed == total {
				fmt.Fprintln(os.Stderr)
			}
		}
	}
	p := partition.New(extractor, params)

	paths, err := inputPaths(p, manifest, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	start := time.Now()
	rep, err := p.Analyze(ctx, paths)
	if err != nil {
		return err
	}
	logger.Debug("partition finished", "elapsed", time.Since(start))

	if opts.output != "" {
		return writeReportFile(opts.output, rep, cfg.Output.Format)
	}
	return report.Write(cmd.OutOrStdout(), rep, cfg.Output.Format)
}

// writeReportFile writes rep to path. A failed close is reported since
// it can mean the report never reached disk.
func writeReportFile(path string, rep *models.Report, format string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close output file: %w", cerr)
		}
	}()
	return report.Write(f, rep, format)
}

// applyPartitionFlags lets explicitly set flags override the config file.
func applyPartitionFlags(cmd *cobra.Command, opts *partitionOptions, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("format") {
		cfg.Output.Format = opts.format
	}
	if flags.Changed("workers") {
		cfg.Processing.NumWorkers = opts.workers
	}
	if flags.Changed("tolerance") {
		cfg.Processing.Tolerance = opts.tolerance
	}
	if flags.Changed("restrict") {
		cfg.Processing.RestrictionTags = opts.restrict
	}
	if flags.Changed("skip-invalid") {
		cfg.Processing.SkipInvalidGroups = opts.skipInvalid
	}
	if flags.Changed("log-level") {
		cfg.Output.LogLevel = opts.logLevel
	}
}

// inputPaths resolves the command arguments into the file set.
func inputPaths(p *partition.Partitioner, manifest *tags.StaticExtractor, args []string) ([]string, error) {
	if len(args) == 0 {
		if manifest != nil {
			return manifest.Paths(), nil
		}
		return nil, fmt.Errorf("no input: pass a directory, files, or --manifest")
	}

	if len(args) == 1 && manifest == nil {
		if info, err := os.Stat(args[0]); err == nil && info.IsDir() {
			return p.DirectoryFiles(args[0])
		}
	}
	return args, nil
}
