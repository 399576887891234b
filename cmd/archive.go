// File: cmd/archive.go
package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/aevum/internal/config"
	"github.com/xkilldash9x/aevum/internal/evolution"
	"github.com/xkilldash9x/aevum/internal/evolution/archive"
	"github.com/xkilldash9x/aevum/internal/observability"
)

func newArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Inspect archived generations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List archived generation snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return listArchive(cmd.OutOrStdout(), cfg)
		},
	})
	return cmd
}

func listArchive(out io.Writer, cfg config.Interface) error {
	storage := cfg.Storage()
	snaps, err := archive.New(observability.GetLogger(), storage.Path(storage.ArchiveDir)).List()
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		fmt.Fprintln(out, "No generations archived yet.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GENERATION\tTAG\tTIME\tNOTE")
	for _, s := range snaps {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.Generation, s.Tag, s.Time.UTC().Format(time.RFC3339), s.Note)
	}
	return w.Flush()
}

func newRollbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <tag>",
		Short: "Reinstall an archived brain as the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return rollback(cmd.OutOrStdout(), cfg, args[0])
		},
	}
}

func rollback(out io.Writer, cfg config.Interface, tag string) error {
	sys, err := evolution.NewSystem(observability.GetLogger(), cfg, io.Discard)
	if err != nil {
		return err
	}
	def, err := sys.Rollback(tag)
	if err != nil {
		return fmt.Errorf("rollback to %s failed: %w", tag, err)
	}
	fmt.Fprintf(out, "Active brain is now %s (%s) from %s.\n", def.Name, def.Kind, tag)
	return nil
}
