package main

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sanitycheck/internal/colconfig"
)

func newColumnsCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "columns",
		Short: "Print the column configuration",
		Long: `Print the active column configuration: the file named by --columns or
SANITY_COLUMNS, or the standard columns. The yaml and toml output can be
edited and loaded back with --columns.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runColumns(format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "output format: yaml, toml or json")
	return cmd
}

func (a *app) runColumns(format string) error {
	reg, err := a.registry()
	if err != nil {
		return err
	}
	file := colconfig.FromRegistry(reg)

	if strings.EqualFold(format, "json") {
		out, err := sonic.MarshalIndent(file, "", "  ")
		if err != nil {
			return fmt.Errorf("encode columns: %w", err)
		}
		_, err = fmt.Fprintln(a.stdout, string(out))
		return err
	}

	f, err := colconfig.ParseFormat(format)
	if err != nil {
		return err
	}
	return colconfig.Encode(a.stdout, f, file)
}
