package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sanitycheck/internal/colconfig"
	"github.com/JonMunkholm/sanitycheck/internal/core"
	"github.com/JonMunkholm/sanitycheck/internal/service"
	"github.com/JonMunkholm/sanitycheck/internal/store"
)

type checkOptions struct {
	inputPath    string
	metadataPath string
	header       bool
	jsonOutput   bool
	noColor      bool
	messages     int
	noStore      bool
}

func newCheckCmd(a *app) *cobra.Command {
	var opts checkOptions
	cmd := &cobra.Command{
		Use:   "check [flags] data.csv",
		Short: "Check one dataset",
		Long: `Check one CSV dataset and print its verdict.

The exit code reports the verdict: 0 accept, 1 review, 2 reject.
Configuration and I/O failures exit with 3.

When DATABASE_URL is set the result is also stored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCheck(cmd, args[0], opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.inputPath, "input", "", "input layout file, yaml or toml (required)")
	f.StringVar(&opts.metadataPath, "metadata", "", "dataset metadata file: yaml, toml or key=value lines")
	f.BoolVar(&opts.header, "header", false, "treat the first row as a header (overrides the layout)")
	f.BoolVar(&opts.jsonOutput, "json", false, "print the full result as JSON")
	f.BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	f.IntVar(&opts.messages, "messages", 20, "messages to print in the summary; 0 prints none, -1 all")
	f.BoolVar(&opts.noStore, "no-store", false, "do not store the result even when a database is configured")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func (a *app) runCheck(cmd *cobra.Command, dataPath string, opts checkOptions) error {
	ctx := cmd.Context()

	reg, err := a.registry()
	if err != nil {
		return err
	}
	in, err := colconfig.LoadInput(opts.inputPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("header") {
		in.Read.Header = opts.header
	}

	var md core.Metadata
	if opts.metadataPath != "" {
		if md, err = colconfig.LoadMetadata(opts.metadataPath); err != nil {
			return err
		}
	}

	svcOpts, err := service.OptionsFromConfig(a.cfg.Checker)
	if err != nil {
		return err
	}

	var st service.ResultStore
	if a.cfg.Database.Enabled() && !opts.noStore {
		s, closeStore, err := openStore(ctx, a)
		if err != nil {
			return err
		}
		defer closeStore()
		st = s
	}

	f, err := os.Open(dataPath)
	if err != nil {
		return fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	svc := service.New(reg, nil, st, svcOpts)
	dataset := filepath.Base(dataPath)
	res, err := svc.Check(ctx, service.CheckRequest{
		Dataset:  dataset,
		Origin:   "cli",
		Data:     f,
		Input:    in,
		Metadata: md,
	})
	if err != nil && res == nil {
		return err
	}
	stored := st != nil && err == nil
	if err != nil {
		slog.Warn("result not stored", "error", err)
	}

	if opts.jsonOutput {
		if err := printJSON(a.stdout, res); err != nil {
			return err
		}
	} else {
		if opts.noColor {
			color.NoColor = true
		}
		printSummary(a.stdout, dataset, res, opts.messages, stored)
	}

	if res.Verdict != core.VerdictAccept {
		return verdictError{verdict: res.Verdict}
	}
	return nil
}

// openStore connects to the configured database and makes sure the schema
// exists. The returned func closes the pool.
func openStore(ctx context.Context, a *app) (*store.Store, func(), error) {
	pool, err := store.Open(ctx, a.cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	s := store.New(pool)
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool.Close, nil
}

func printJSON(w io.Writer, res *core.Result) error {
	out, err := sonic.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	out = append(out, '\n')
	_, err = w.Write(out)
	return err
}

var (
	verdictColors = map[core.Verdict]*color.Color{
		core.VerdictAccept: color.New(color.FgGreen, color.Bold),
		core.VerdictReview: color.New(color.FgYellow, color.Bold),
		core.VerdictReject: color.New(color.FgRed, color.Bold),
	}
	errorColor   = color.New(color.FgRed)
	warningColor = color.New(color.FgYellow)
	dimColor     = color.New(color.Faint)
)

// printSummary writes the verdict line, the run statistics and up to limit
// messages. A negative limit prints every message.
func printSummary(w io.Writer, dataset string, res *core.Result, limit int, stored bool) {
	verdict := string(res.Verdict)
	if c, ok := verdictColors[res.Verdict]; ok {
		verdict = c.Sprint(verdict)
	}
	fmt.Fprintf(w, "%s: %s (%s)\n", dataset, verdict, res.Code)

	s := res.Stats
	fmt.Fprintf(w, "  rows %d  records %d  warnings %d  errors %d  internal %d\n",
		s.Rows, s.Records, s.Warnings, s.Errors, s.InternalErrors)
	fmt.Fprintf(w, "  flags good %d  questionable %d  bad %d\n",
		s.Flags.Good, s.Flags.Questionable, s.Flags.Bad)

	run := "run " + res.RunID.String()
	if stored {
		run += " (stored)"
	}
	fmt.Fprintln(w, dimColor.Sprint("  "+run))

	if limit == 0 || len(res.Messages) == 0 {
		return
	}
	shown := res.Messages
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	fmt.Fprintln(w)
	for _, m := range shown {
		c := warningColor
		if m.IsError() {
			c = errorColor
		}
		fmt.Fprintln(w, c.Sprint(m.String()))
	}
	if more := len(res.Messages) - len(shown) + s.DroppedMessages; more > 0 {
		fmt.Fprintf(w, "... %d more messages\n", more)
	}
}
