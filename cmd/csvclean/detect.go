package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/csvclean/internal/core"
)

// NewDetectCmd creates the detect command.
func NewDetectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect FILE...",
		Short: "Show the likely encodings of CSV files",
		Long: `Detect inspects the start of each file and lists every encoding guess,
best first, without cleaning anything.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runDetectCmd,
	}
	cmd.Flags().IntP("top", "n", 3, "Number of candidates shown per file (0 for all)")
	return cmd
}

func runDetectCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	top, _ := cmd.Flags().GetInt("top")

	service, err := core.NewService(cfg, nil)
	if err != nil {
		return err
	}
	defer service.Close()

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tENCODING\tCONFIDENCE\tLANGUAGE")

	failed := 0
	for _, path := range args {
		f, err := os.Open(path)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
			failed++
			continue
		}
		cands, err := service.Inspect(cmd.Context(), f)
		f.Close()
		if err != nil {
			msg := core.MapError(err)
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s (%s)\n", path, msg.Message, msg.Code)
			failed++
			continue
		}

		if top > 0 && len(cands) > top {
			cands = cands[:top]
		}
		name := filepath.Base(path)
		for _, c := range cands {
			lang := c.Language
			if lang == "" {
				lang = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%d%%\t%s\n", name, c.Label, c.Confidence, lang)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) could not be inspected", failed, len(args))
	}
	return nil
}
