package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rootOptions holds the flags shared by every subcommand.
type rootOptions struct {
	configPath string
}

// newRootCmd builds the command tree with fresh flag state.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "dicomseries",
		Short: "Partition DICOM slices into spatially ordered volumes",
		Long: `dicomseries groups single-slice DICOM files into coherent 3D volumes,
orders every volume along its slice normal and splits stacks whose
slices are not evenly spaced.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "dicomseries.yaml", "path to the YAML configuration file")

	root.AddCommand(newPartitionCmd(opts))
	root.AddCommand(newConfigCmd(opts))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
