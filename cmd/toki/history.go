package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/franz/toki/internal/store"
	"github.com/franz/toki/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show journaled runs",
	Long: `Without arguments, list the most recent runs recorded in the journal.
With a run ID (or a unique prefix of one), list every file of that run with
its destination and outcome. --digest finds where a file with the given
content digest was put by earlier runs.

Requires --journal (or journal: in the config file).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().Int("limit", 20, "number of runs to list (0 = all)")
	historyCmd.Flags().String("digest", "", "find applied transfers with this content digest")
}

func runHistory(cmd *cobra.Command, args []string) error {
	path := expandHome(viper.GetString("journal"))
	if path == "" {
		return fmt.Errorf("%w: no journal configured (use --journal)", util.ErrInvalidConfig)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: journal %s", util.ErrNotFound, path)
	}

	db, err := store.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer db.Close()

	if digest, _ := cmd.Flags().GetString("digest"); digest != "" {
		return printDigestMatches(os.Stdout, db, digest)
	}
	if len(args) == 1 {
		return printRun(os.Stdout, db, args[0])
	}
	limit, _ := cmd.Flags().GetInt("limit")
	return printRuns(os.Stdout, db, limit)
}

func printRuns(w io.Writer, db *store.Store, limit int) error {
	runs, err := db.ListRuns(limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs journaled yet.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tMODE\tSTATUS\tFILES\tAPPLIED\tSKIPPED\tFAILED\tSOURCE")
	for _, run := range runs {
		mode := run.Mode
		if run.DryRun {
			mode += " (dry)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			shortRunID(run.ID), run.StartedAt.Local().Format("2006-01-02 15:04"), mode, run.Status,
			run.Counts.Discovered, run.Counts.Applied, run.Counts.Skipped, run.Counts.Failed, run.SrcRoot)
	}
	return tw.Flush()
}

func printRun(w io.Writer, db *store.Store, id string) error {
	run, err := db.FindRun(id)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("%w: run %s", util.ErrNotFound, id)
	}

	fmt.Fprintf(w, "Run:      %s\n", run.ID)
	fmt.Fprintf(w, "Mode:     %s", run.Mode)
	if run.DryRun {
		fmt.Fprint(w, " (dry run)")
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Source:   %s\n", run.SrcRoot)
	if run.DestRoot != "" {
		fmt.Fprintf(w, "Dest:     %s\n", run.DestRoot)
	}
	fmt.Fprintf(w, "Started:  %s\n", run.StartedAt.Local().Format(time.DateTime))
	if run.FinishedAt != nil {
		fmt.Fprintf(w, "Duration: %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	fmt.Fprintf(w, "Status:   %s (%d applied, %d skipped, %d failed, %s)\n\n",
		run.Status, run.Counts.Applied, run.Counts.Skipped, run.Counts.Failed, util.FormatBytes(run.Counts.Bytes))

	transfers, err := db.GetTransfers(run.ID)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tCONF\tSOURCE\tDESTINATION\tNOTE")
	for _, t := range transfers {
		note := t.Reason
		if t.Error != "" {
			note = t.Error
		} else if t.DuplicateOf != "" {
			note += " of " + t.DuplicateOf
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.Status, t.Confidence, t.SrcPath, t.DestPath, note)
	}
	return tw.Flush()
}

func printDigestMatches(w io.Writer, db *store.Store, digest string) error {
	matches, err := db.FindByDigest(digest)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		fmt.Fprintf(w, "No applied transfer has digest %s.\n", digest)
		return nil
	}
	for _, t := range matches {
		fmt.Fprintf(w, "%s  %s %s -> %s\n", shortRunID(t.RunID), t.Action, t.SrcPath, t.DestPath)
	}
	return nil
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
