package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/csvclean/internal/config"
	"github.com/JonMunkholm/csvclean/internal/core"
	"github.com/JonMunkholm/csvclean/internal/history"
	"github.com/JonMunkholm/csvclean/internal/report"
)

// stdoutPath selects standard output for -o.
const stdoutPath = "-"

// NewNormalizeCmd creates the normalize command.
func NewNormalizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "normalize FILE...",
		Aliases: []string{"clean"},
		Short:   "Clean one or more CSV files",
		Long: `Normalize detects each file's encoding, converts it to UTF-8 (or ASCII
with --ascii), escapes control characters and writes a fully quoted copy.

With one input the result goes to cleaned_file.csv, or to the path given by
-o ("-" for standard output). With several inputs -o names a directory and
each result is written as <name>_cleaned.csv. Files are processed
concurrently; a failure in one file does not stop the others.

Examples:
  csvclean normalize export.csv
  csvclean normalize --ascii -o - export.csv > clean.csv
  csvclean normalize -o cleaned/ --report markdown jan.csv feb.csv`,
		Args: cobra.MinimumNArgs(1),
		RunE: runNormalizeCmd,
	}

	cmd.Flags().Bool("ascii", false, "Write lossy ASCII instead of UTF-8")
	cmd.Flags().StringP("output", "o", "", `Output file, directory for several inputs, or "-" for stdout`)
	cmd.Flags().StringP("report", "r", "", "Also write a run report: json, yaml or markdown")
	cmd.Flags().IntP("concurrency", "c", 4, "Number of files cleaned in parallel")
	cmd.Flags().Bool("no-history", false, "Do not record runs in the history database")
	cmd.Flags().Bool("lazy-quotes", false, "Accept quotes in unquoted fields")
	cmd.Flags().String("fallback-encoding", "", "Encoding to assume when detection fails")

	return cmd
}

// fileResult is the outcome for one input file.
type fileResult struct {
	input  string
	output string
	run    *core.Run
	err    error
}

func runNormalizeCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	opts, err := normalizeOptionsFromFlags(cmd)
	if err != nil {
		return err
	}
	opts.apply(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store history.Store
	if !opts.noHistory {
		sqlite, err := history.OpenSQLite(ctx, historyPath(cmd, cfg))
		if err != nil {
			return err
		}
		store = sqlite
	}

	service, err := core.NewService(cfg, store)
	if err != nil {
		return err
	}
	defer service.Close()

	outputs, err := planOutputs(args, opts.output)
	if err != nil {
		return err
	}

	results := cleanFiles(ctx, service, args, outputs, opts)

	// Status lines go to stderr when the CSV itself is on stdout.
	status := cmd.OutOrStdout()
	if opts.output == stdoutPath {
		status = cmd.ErrOrStderr()
	}

	var errs []error
	for _, res := range results {
		if res.err != nil {
			msg := core.MapError(res.err)
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s (%s)\n", res.input, msg.Message, msg.Code)
			errs = append(errs, res.err)
			continue
		}
		printRun(status, res)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%d of %d file(s) failed: %w", len(errs), len(results), errors.Join(errs...))
	}
	return nil
}

// normalizeOptions holds the parsed normalize flags.
type normalizeOptions struct {
	ascii            bool
	output           string
	reportFormat     string
	concurrency      int
	noHistory        bool
	lazyQuotes       bool
	fallbackEncoding string

	stdout io.Writer // destination for "-o -"
	stderr io.Writer // destination for reports when the CSV goes to stdout
}

func normalizeOptionsFromFlags(cmd *cobra.Command) (*normalizeOptions, error) {
	f := cmd.Flags()
	opts := &normalizeOptions{stdout: cmd.OutOrStdout(), stderr: cmd.ErrOrStderr()}
	opts.ascii, _ = f.GetBool("ascii")
	opts.output, _ = f.GetString("output")
	opts.concurrency, _ = f.GetInt("concurrency")
	opts.noHistory, _ = f.GetBool("no-history")
	opts.lazyQuotes, _ = f.GetBool("lazy-quotes")
	opts.fallbackEncoding, _ = f.GetString("fallback-encoding")

	if opts.concurrency < 1 {
		return nil, fmt.Errorf("--concurrency must be at least 1, got %d", opts.concurrency)
	}

	if name, _ := f.GetString("report"); name != "" {
		format, err := report.ParseFormat(name)
		if err != nil {
			return nil, err
		}
		opts.reportFormat = format
	}
	return opts, nil
}

// apply copies flag overrides into cfg.
func (o *normalizeOptions) apply(cfg *config.Config) {
	cfg.Upload.MaxConcurrent = o.concurrency
	if o.lazyQuotes {
		cfg.Normalize.LazyQuotes = true
	}
	if o.fallbackEncoding != "" {
		cfg.Normalize.FallbackEncoding = o.fallbackEncoding
	}
}

// planOutputs decides where each input's cleaned copy is written.
func planOutputs(inputs []string, output string) ([]string, error) {
	if len(inputs) == 1 {
		if output == "" {
			output = core.DownloadName
		}
		return []string{output}, nil
	}

	if output == stdoutPath {
		return nil, errors.New(`-o - needs exactly one input file`)
	}
	dir := output
	if dir == "" {
		dir = "."
	}

	outputs := make([]string, len(inputs))
	seen := make(map[string]string, len(inputs))
	for i, in := range inputs {
		base := filepath.Base(in)
		name := strings.TrimSuffix(base, filepath.Ext(base)) + "_cleaned.csv"
		out := filepath.Join(dir, name)
		if prev, dup := seen[out]; dup {
			return nil, fmt.Errorf("%s and %s would both be written to %s", prev, in, out)
		}
		seen[out] = in
		outputs[i] = out
	}
	return outputs, nil
}

// cleanFiles runs every input through the service, at most
// opts.concurrency at a time. Results keep the input order.
func cleanFiles(ctx context.Context, service *core.Service, inputs, outputs []string, opts *normalizeOptions) []fileResult {
	results := make([]fileResult, len(inputs))

	var g errgroup.Group
	g.SetLimit(opts.concurrency)

	for i, in := range inputs {
		g.Go(func() error {
			run, err := cleanFile(ctx, service, in, outputs[i], opts)
			results[i] = fileResult{input: in, output: outputs[i], run: run, err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// cleanFile cleans one input and writes its output and optional report.
func cleanFile(ctx context.Context, service *core.Service, input, output string, opts *normalizeOptions) (*core.Run, error) {
	f, err := os.Open(input)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	defer f.Close()

	run, err := service.Clean(ctx, filepath.Base(input), f, !opts.ascii)
	if err != nil {
		return nil, err
	}

	if output == stdoutPath {
		if _, err := opts.stdout.Write(run.Output()); err != nil {
			return nil, fmt.Errorf("write output: %w", err)
		}
	} else if err := writeFileAtomic(output, run.Output()); err != nil {
		return nil, err
	}

	if opts.reportFormat != "" {
		if err := writeReport(run, output, opts); err != nil {
			return nil, err
		}
	}
	return run, nil
}

// writeReport writes the run report next to output, or to stderr when the
// output is stdout.
func writeReport(run *core.Run, output string, opts *normalizeOptions) error {
	format := opts.reportFormat
	if output == stdoutPath {
		w, _ := report.NewWriter(format, opts.stderr)
		_, err := w.Write(report.FromRun(run))
		return err
	}

	var buf strings.Builder
	w, _ := report.NewWriter(format, &buf)
	if _, err := w.Write(report.FromRun(run)); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	path := strings.TrimSuffix(output, filepath.Ext(output)) + "_report." + report.Extension(format)
	return writeFileAtomic(path, []byte(buf.String()))
}

// writeFileAtomic writes data to a temporary file in the target directory
// and renames it into place, so a failed run never leaves a partial file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".csvclean-*")
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func printRun(w io.Writer, res fileResult) {
	run := res.run
	dest := res.output
	if dest == stdoutPath {
		dest = "stdout"
	}
	fmt.Fprintf(w, "%s: %s (%d%%) -> %s, %d rows, %d columns. %s. Wrote %s\n",
		res.input, run.Encoding, run.Confidence, run.Target,
		run.Rows, run.Columns, run.Notice(), dest)
	for _, warning := range run.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warning)
	}
}
