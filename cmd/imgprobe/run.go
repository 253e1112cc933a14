package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/imgprobe/probe"
)

var configPath string

// openProber loads the config and wires its sinks. Without configured
// sinks outcomes go to stdout.
func openProber(cmd *cobra.Command) (*probe.Prober, error) {
	logger := newLogger()
	cfg, err := probe.LoadConfigFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	sinks, err := probe.SinksFromConfig(cfg.Sinks, logger)
	if err != nil {
		return nil, err
	}
	if len(sinks) == 0 {
		sinks = append(sinks, probe.NewStdoutSink(cmd.OutOrStdout()))
	}

	p, err := probe.New(cfg, logger, sinks...)
	if err != nil {
		for _, s := range sinks {
			s.Close()
		}
		return nil, err
	}
	if err := p.Start(cmd.Context()); err != nil {
		p.Stop()
		return nil, err
	}
	return p, nil
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Probe every configured target once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openProber(cmd)
		if err != nil {
			return err
		}
		defer p.Stop()

		out, err := p.RunAll(cmd.Context())
		if err != nil {
			return err
		}
		var notLoaded int
		for _, o := range out {
			if !o.OK() {
				notLoaded++
			}
		}
		if notLoaded > 0 {
			return fmt.Errorf("%w: %d of %d targets", errNotLoaded, notLoaded, len(out))
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&configPath, "config", "c", "imgprobe.yaml", "path to config file")
	rootCmd.AddCommand(runCmd)
}
