// Command sanitycheck checks tabular ocean datasets against a column
// configuration, from the command line or as an HTTP service.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sanitycheck/internal/colconfig"
	"github.com/JonMunkholm/sanitycheck/internal/config"
	"github.com/JonMunkholm/sanitycheck/internal/core"
	"github.com/JonMunkholm/sanitycheck/internal/core/columns"
	"github.com/JonMunkholm/sanitycheck/internal/logging"
)

// Exit codes. A check maps its verdict onto the first three.
const (
	exitAccept  = 0
	exitReview  = 1
	exitReject  = 2
	exitFailure = 3
)

// app carries the state shared by all subcommands.
type app struct {
	stdout io.Writer
	stderr io.Writer

	envFiles    []string
	columnsPath string
	logLevel    string

	cfg *config.Config
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command line and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(&app{stdout: stdout, stderr: stderr})
	root.SetArgs(args)

	err := root.Execute()
	code := exitCode(err)
	if code == exitFailure {
		fmt.Fprintf(stderr, "error: %v\n", err)
		if msg := core.MapError(err); msg.Action != "" {
			fmt.Fprintf(stderr, "hint: %s (%s)\n", msg.Action, msg.Code)
		}
	}
	return code
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "sanitycheck",
		Short: "Sanity-check tabular ocean datasets",
		Long: `sanitycheck reads a CSV dataset, maps its columns onto a configured set
of output columns, and checks every row for missing, unparseable and
out-of-range values. Each row gets per-column quality flags and the
dataset gets an accept, review or reject verdict.`,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	root.PersistentFlags().StringSliceVar(&a.envFiles, "env-file", nil, "load variables from these .env files (default: ./.env when present)")
	root.PersistentFlags().StringVar(&a.columnsPath, "columns", "", "column configuration file (overrides SANITY_COLUMNS)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")

	root.AddCommand(newCheckCmd(a))
	root.AddCommand(newServeCmd(a))
	root.AddCommand(newColumnsCmd(a))
	return root
}

// setup loads the environment and configuration and configures logging.
// Logs go to stderr so stdout carries only results.
func (a *app) setup(_ *cobra.Command, _ []string) error {
	if err := config.LoadEnvFiles(a.envFiles...); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.columnsPath != "" {
		cfg.Checker.ColumnsPath = a.columnsPath
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	a.cfg = cfg

	logging.SetupWriter(a.stderr, cfg.Logging.Level, cfg.Logging.Format)
	return nil
}

// registry loads the configured column file, or the standard columns.
func (a *app) registry() (*core.Registry, error) {
	if path := a.cfg.Checker.ColumnsPath; path != "" {
		return colconfig.LoadColumns(path, columns.Calculators())
	}
	return columns.StandardRegistry()
}

// verdictError carries a non-accept verdict out of the check command.
type verdictError struct {
	verdict core.Verdict
}

func (e verdictError) Error() string {
	return "dataset verdict: " + string(e.verdict)
}

func exitCode(err error) int {
	if err == nil {
		return exitAccept
	}
	var ve verdictError
	if errors.As(err, &ve) {
		switch ve.verdict {
		case core.VerdictAccept:
			return exitAccept
		case core.VerdictReview:
			return exitReview
		case core.VerdictReject:
			return exitReject
		}
	}
	return exitFailure
}
