package main

import (
	"github.com/franz/toki/internal/plan"
	"github.com/spf13/cobra"
)

var organizeCmd = &cobra.Command{
	Use:   "organize <src> <dst>",
	Short: "Move or copy media files into a dated library",
	Long: `Organize every supported photo and video under <src> into
<dst>/YYYY/MM/DD, using the capture time from embedded metadata or, when
there is none, the file modification time.

Files are moved by default; --copy leaves the sources in place and keeps
their modification times. Original filenames are kept unless --rename is
given. A file whose exact content already sits at its destination is
skipped, so repeating an organize --copy run is safe.

Safety features:
- Copies are written to a .part file and renamed into place
- Existing destination files are never overwritten
- Copies are verified (--verify) before a move removes its source`,
	Example: `  toki organize ~/Pictures/Import ~/Pictures/Library --dry-run
  toki organize /mnt/card/DCIM ~/Pictures/Library --copy --rename`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd, plan.ModeOrganize, args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(organizeCmd)

	organizeCmd.Flags().Bool("dry-run", false, "show what would be organized without changing anything")
	organizeCmd.Flags().Bool("copy", false, "copy files instead of moving them")
	organizeCmd.Flags().Bool("rename", false, "also give files their canonical names")
	organizeCmd.Flags().Int("workers", 0, "number of parallel workers (default: CPU count - 1)")
}
