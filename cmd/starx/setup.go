package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/starx-project/starx/internal/config"
)

func setupCmd() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Interactively edit the daemon configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configDir)
			if err != nil {
				return err
			}
			if err := config.RunSetupWizard(cfg, os.Stdin, os.Stdout); err != nil {
				return err
			}
			fmt.Printf("configuration saved to %s\n", cfg.Path())
			return nil
		},
	}

	cmd.Flags().StringVarP(&configDir, "config", "c", config.DefaultConfigDir, "Configuration directory")

	return cmd
}
