// Command imgprobe reports whether the image behind a page element has
// loaded: an <img> source or a CSS background-image.
//
// Usage:
//
//	imgprobe detect --url https://example.com --selector img.hero
//	imgprobe run -c imgprobe.yaml        # probe every configured target once
//	imgprobe serve -c imgprobe.yaml      # HTTP API
//	imgprobe validate -c imgprobe.yaml
//	imgprobe version
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Set via -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "imgprobe",
	Short: "Detect when page images have loaded",
	Long: `imgprobe drives Chrome to a page, selects an element and waits until
its image has been fetched and decoded. For <img> elements the src is
watched; for any other element the computed background-image is.

Example config:
  detect:
    timeout: 15s
    concurrency: 4
  targets:
    - id: hero
      url: https://example.com
      selector: img.hero
      filter: '\.jpg$'
  sinks:
    - type: stdout`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "imgprobe %s\n  commit: %s\n  built:  %s\n", version, commit, date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(logLevel)}))
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
