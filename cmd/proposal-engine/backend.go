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

	"github.com/pdiddy/proposal-engine/internal/backend"
)

var backendCmd = &cobra.Command{
	Use:   "backend",
	Short: "Run the scripted stand-in generation backend",
	Long: `Backend serves deterministic canned section text on both transports:
POST /generate for request/response and GET /stream for the websocket push
channel. Point generate or serve at it to run the engine without a model.`,
	RunE: runBackend,
}

func init() {
	backendCmd.Flags().String("addr", ":8478", "listen address")
	backendCmd.Flags().Int("chunk-size", 0, "bytes per streamed chunk (default 24)")
	backendCmd.Flags().Duration("chunk-delay", 0, "pause between streamed chunks (default 80ms)")

	rootCmd.AddCommand(backendCmd)
}

func runBackend(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	chunkSize, _ := cmd.Flags().GetInt("chunk-size")
	chunkDelay, _ := cmd.Flags().GetDuration("chunk-delay")
	logger := newLogger(cmd)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stub := backend.New(backend.Config{ChunkSize: chunkSize, ChunkDelay: chunkDelay}, logger)
	srv := &http.Server{
		Addr:              addr,
		Handler:           stub.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("stub backend listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("stub backend: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutting down stub backend: %w", err)
	}
	return nil
}
