// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/proposal-engine/internal/document"
	"github.com/pdiddy/proposal-engine/internal/gateway"
	"github.com/pdiddy/proposal-engine/internal/host"
	"github.com/pdiddy/proposal-engine/internal/template"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the engine to a browser editor over HTTP and SSE",
	Long: `Serve hosts one document session behind an HTTP API: section snapshots,
generation triggers, user edits, and a Server-Sent Events feed of live section
updates. Text reveals with interactive typing pacing, the way the engine
behaves inside the proposal editor.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", ":8477", "listen address")
	serveCmd.Flags().String("template", "", "path to template YAML (required)")
	serveCmd.Flags().String("backend", "", "generation backend endpoint URL")
	serveCmd.Flags().String("stream", "", "backend websocket push channel URL")
	serveCmd.Flags().String("mode", "", "sequencing policy: serial or staggered (default staggered)")
	serveCmd.Flags().Duration("section-delay", 0, "pause between sections in serial mode (default 500ms)")
	serveCmd.Flags().Duration("stagger-interval", 0, "launch interval in staggered mode (default 200ms)")
	serveCmd.Flags().String("divergence", "", "policy when generated text diverges from existing content: append or overwrite (default append)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	templatePath, _ := cmd.Flags().GetString("template")
	if templatePath == "" {
		return fmt.Errorf("provide a template with --template")
	}
	tpl, err := template.Load(templatePath)
	if err != nil {
		return err
	}

	logger := newLogger(cmd)
	cfg := engineConfig(cmd)
	if cfg.Gateway.URL == "" && cfg.Stream.URL == "" {
		return fmt.Errorf("provide a backend with --backend or --stream")
	}
	addr, _ := cmd.Flags().GetString("addr")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var gw *gateway.Gateway
	if cfg.Gateway.URL != "" {
		gw = gateway.New(cfg.Gateway, nil, logger)
	}
	session := document.New(cfg, gw, logger)
	defer session.Close()
	session.InitializeFromTemplate(tpl)
	if cfg.Stream.URL != "" {
		if err := session.ConnectStream(ctx); err != nil {
			return fmt.Errorf("connecting push channel: %w", err)
		}
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           host.New(ctx, session, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("host listening", "addr", addr, "template", tpl.Name)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("host server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutting down host: %w", err)
	}
	return nil
}
