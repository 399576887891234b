// File: cmd/config.go
package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/aevum/internal/config"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return printConfig(cmd.OutOrStdout(), cfg)
		},
	}
}

func printConfig(out io.Writer, cfg config.Interface) error {
	view := struct {
		Logger   config.LoggerConfig   `yaml:"logger"`
		Storage  config.StorageConfig  `yaml:"storage"`
		Loop     config.LoopConfig     `yaml:"loop"`
		Learner  config.LearnerConfig  `yaml:"learner"`
		Mutation config.MutationConfig `yaml:"mutation"`
		History  config.HistoryConfig  `yaml:"history"`
	}{cfg.Logger(), cfg.Storage(), cfg.Loop(), cfg.Learner(), cfg.Mutation(), cfg.History()}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(view); err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	return enc.Close()
}
