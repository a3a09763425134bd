package main

import (
	"github.com/franz/toki/internal/plan"
	"github.com/spf13/cobra"
)

var renameCmd = &cobra.Command{
	Use:   "rename <path>",
	Short: "Rename media files in place to their canonical names",
	Long: `Rename every supported photo and video under <path> to
YYYYMMDD_HHMMSS_<confidence>_<camera>_<hash>.<ext>, leaving each file in
its directory.

Files already carrying their canonical name are left alone, so running
rename twice changes nothing the second time. Name collisions get a _1,
_2, ... suffix; existing files are never overwritten.`,
	Example: `  toki rename ~/Pictures/Import --dry-run
  toki rename ~/Pictures/Import --workers 8`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd, plan.ModeRename, args[0], "")
	},
}

func init() {
	rootCmd.AddCommand(renameCmd)

	renameCmd.Flags().Bool("dry-run", false, "show what would be renamed without changing anything")
	renameCmd.Flags().Int("workers", 0, "number of parallel workers (default: CPU count - 1)")
}
