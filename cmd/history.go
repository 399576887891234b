// File: cmd/history.go
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/aevum/internal/config"
	"github.com/xkilldash9x/aevum/internal/evolution/chronicler"
	"github.com/xkilldash9x/aevum/internal/observability"
)

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the most recent journal entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("limit") {
				limit = cfg.History().Limit
			}
			return printHistory(cmd.OutOrStdout(), cfg, limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 25, "number of entries to show (0 shows all)")
	return cmd
}

func printHistory(out io.Writer, cfg config.Interface, limit int) error {
	storage := cfg.Storage()
	path := storage.Path(storage.JournalFile)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(out, "No journal found at %s yet. Run `aevum run` first.\n", path)
		return nil
	}

	journal := chronicler.NewChronicler(observability.GetLogger(), path)
	entries, total := journal.Recent(limit)
	fmt.Fprintf(out, "Entries: %d\n", total)
	for i, e := range entries {
		fmt.Fprintln(out, chronicler.FormatEntry(i+1, e))
	}
	return nil
}
