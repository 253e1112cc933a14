package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/imgprobe/probe"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a config file without starting Chrome",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := probe.LoadConfigFile(configPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "config OK: %d targets, %d sinks\n", len(cfg.Targets), len(cfg.Sinks))
		for _, t := range cfg.Targets {
			fmt.Fprintf(cmd.OutOrStdout(), "  - %s: %s %s\n", t.ID, t.URL, t.Selector)
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVarP(&configPath, "config", "c", "imgprobe.yaml", "path to config file")
	rootCmd.AddCommand(validateCmd)
}
