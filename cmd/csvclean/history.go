package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/csvclean/internal/history"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently cleaned files",
		Long:  `History lists runs recorded by "csvclean normalize", newest first.`,
		Args:  cobra.NoArgs,
		RunE:  runHistoryCmd,
	}
	cmd.Flags().IntP("limit", "n", history.DefaultLimit, "Maximum number of runs to show")
	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")

	store, err := history.OpenSQLite(cmd.Context(), historyPath(cmd, cfg))
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.Recent(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tFILE\tSTATUS\tENCODING\tTARGET\tROWS\tESCAPED\tCODE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			e.FileName,
			e.Status,
			orDash(e.Encoding),
			orDash(e.Target),
			strconv.Itoa(e.Rows),
			strconv.Itoa(e.Escaped),
			orDash(e.ErrorCode),
		)
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
