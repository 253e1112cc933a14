package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/imgprobe/probe"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the detection HTTP API",
	Long: `Serve POST /v1/detect, GET /healthz and the MCP endpoint /mcp
until SIGINT or SIGTERM.
Targets in the config file are ignored; browser, detect and sinks apply.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openProber(cmd)
		if err != nil {
			return err
		}
		defer p.Stop()

		logger := newLogger()
		mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "imgprobe", Version: version}, nil)
		p.RegisterMCP(mcpSrv)

		srv := &http.Server{
			Addr:              serveAddr,
			Handler:           probe.Handler(p, probe.WithMCP(mcpSrv)),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("imgprobe: listening", "addr", serveAddr)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			return fmt.Errorf("serve: %w", err)
		case <-cmd.Context().Done():
		}

		logger.Info("imgprobe: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "imgprobe.yaml", "path to config file")
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
	rootCmd.AddCommand(serveCmd)
}
