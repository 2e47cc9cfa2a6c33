package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pagepack/pagepack/internal/config"
	"github.com/pagepack/pagepack/internal/history"
)

// openHistory is swapped out in tests.
var openHistory = func() (*history.Store, error) {
	if err := config.EnsureDirs(); err != nil {
		return nil, err
	}
	return history.Open(config.GetHistoryDBPath())
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect the download history",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List downloaded galleries, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		entries, err := store.List(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(entries) == 0 {
			fmt.Fprintln(out, "No downloads yet")
			return nil
		}

		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTITLE\tPAGES\tSIZE\tDOWNLOADED\tCOUNT")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%d\n",
				e.GalleryID,
				truncate(e.Title, 40),
				e.PageCount,
				humanize.Bytes(uint64(max(e.FileSize, 0))),
				humanize.Time(time.UnixMilli(e.DownloadedAt)),
				e.DownloadCount,
			)
		}
		return tw.Flush()
	},
}

var historyRemoveCmd = &cobra.Command{
	Use:   "remove <id>...",
	Short: "Remove galleries from the history",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		out := cmd.OutOrStdout()
		for _, id := range args {
			removed, err := store.Remove(cmd.Context(), id)
			if err != nil {
				return err
			}
			if removed {
				fmt.Fprintf(out, "Removed %s\n", id)
			} else {
				fmt.Fprintf(out, "Not in history: %s\n", id)
			}
		}
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every history record",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		if err := store.Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "History cleared")
		return nil
	},
}

var historyExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export the history as JSON (stdout when no file is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		data, err := store.Export(cmd.Context())
		if err != nil {
			return err
		}
		if len(args) == 0 {
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		}
		if err := os.WriteFile(args[0], data, 0644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", args[0])
		return nil
	},
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) > n {
		return string(runes[:n-1]) + "…"
	}
	return s
}

func init() {
	historyCmd.AddCommand(historyListCmd, historyRemoveCmd, historyClearCmd, historyExportCmd)
}
