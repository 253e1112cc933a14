package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/imgprobe/probe"
)

var errNotLoaded = errors.New("image not loaded")

var detectFlags struct {
	url      string
	selector string
	filter   string
	timeout  time.Duration
	remote   string
	headful  bool
}

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Probe a single element and print its outcome",
	Long: `Open --url, wait for --selector and report whether its image loads.
One JSON outcome is written to stdout. The exit status is non-zero
unless the image loaded.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := &probe.Config{
			Browser: probe.BrowserConfig{Remote: detectFlags.remote},
			Detect:  probe.DetectConfig{Timeout: detectFlags.timeout},
		}
		if detectFlags.headful {
			cfg.Browser.Stealth = "headful"
		}
		cfg.ApplyDefaults()

		t := probe.Target{
			ID:       uuid.NewString(),
			URL:      detectFlags.url,
			Selector: detectFlags.selector,
			Filter:   detectFlags.filter,
			Timeout:  detectFlags.timeout,
		}
		if err := t.Validate(); err != nil {
			return err
		}

		logger := newLogger()
		p, err := probe.New(cfg, logger, probe.NewStdoutSink(cmd.OutOrStdout()))
		if err != nil {
			return err
		}
		defer p.Stop()
		if err := p.Start(cmd.Context()); err != nil {
			return err
		}

		o, err := p.Probe(cmd.Context(), t)
		if err != nil {
			return err
		}
		if !o.OK() {
			return fmt.Errorf("%w: %s", errNotLoaded, o.Status)
		}
		return nil
	},
}

func init() {
	f := detectCmd.Flags()
	f.StringVar(&detectFlags.url, "url", "", "page URL (required)")
	f.StringVar(&detectFlags.selector, "selector", "", "CSS selector of the element (required)")
	f.StringVar(&detectFlags.filter, "filter", "", "regexp the image URL must match")
	f.DurationVar(&detectFlags.timeout, "timeout", 30*time.Second, "give up after this long (0 = never)")
	f.StringVar(&detectFlags.remote, "remote", "", "DevTools WebSocket URL of a running Chrome")
	f.BoolVar(&detectFlags.headful, "headful", false, "run Chrome with a window on Xvfb")
	detectCmd.MarkFlagRequired("url")
	detectCmd.MarkFlagRequired("selector")
	rootCmd.AddCommand(detectCmd)
}
