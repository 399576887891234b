// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/aevum/internal/config"
	"github.com/xkilldash9x/aevum/internal/evolution"
	"github.com/xkilldash9x/aevum/internal/observability"
)

// LoopRunner is the part of the wired system the run command drives.
type LoopRunner interface {
	Run(ctx context.Context) error
}

// systemInitializer builds and bootstraps the loop. Tests swap it out.
type systemInitializer func(logger *zap.Logger, cfg config.Interface, out io.Writer) (LoopRunner, error)

func initializeSystem(logger *zap.Logger, cfg config.Interface, out io.Writer) (LoopRunner, error) {
	sys, err := evolution.NewSystem(logger, cfg, out)
	if err != nil {
		return nil, err
	}
	if err := sys.Bootstrap(); err != nil {
		return nil, err
	}
	return sys.Orchestrator, nil
}

func newRunCmd() *cobra.Command {
	var generations int
	var delay time.Duration
	initFn := systemInitializer(initializeSystem)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the generation loop until interrupted",
		Long: `Run executes the active brain once per generation, records every outcome in the
journal, archives the brain that ran, and replaces it when the score falls below the
configured threshold. Stop it with Ctrl+C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("generations") {
				cfg.SetLoopMaxGenerations(generations)
			}
			if cmd.Flags().Changed("delay") {
				cfg.SetLoopDelay(delay)
			}
			return runLoop(ctx, cfg, observability.GetLogger(), cmd.OutOrStdout(), initFn)
		},
	}

	cmd.Flags().IntVarP(&generations, "generations", "n", 0, "stop after this many generations (0 runs until interrupted)")
	cmd.Flags().DurationVar(&delay, "delay", 0, "pause between generations (overrides loop.delay)")
	return cmd
}

// runLoop is decoupled from cobra so it can be tested with a fake system.
func runLoop(ctx context.Context, cfg config.Interface, logger *zap.Logger, out io.Writer, initFn systemInitializer) error {
	if cfg.Loop().MaxGenerations < 0 {
		return fmt.Errorf("--generations must not be negative")
	}
	if cfg.Loop().Delay < 0 {
		return fmt.Errorf("--delay must not be negative")
	}

	runner, err := initFn(logger, cfg, out)
	if err != nil {
		return fmt.Errorf("failed to initialize evolution loop: %w", err)
	}

	logger.Info("Starting evolution loop.", zap.String("data_dir", cfg.Storage().DataDir))
	if err := runner.Run(ctx); err != nil {
		return fmt.Errorf("evolution loop error: %w", err)
	}
	return nil
}
