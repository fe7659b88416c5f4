// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/proposal-engine/internal/log"
	"github.com/pdiddy/proposal-engine/pkg/types"
)

const (
	defaultTimeout   = 60 * time.Second
	defaultUserAgent = "proposal-engine/0.1"
)

// newLogger builds the CLI's logger, honoring the --verbose flag.
func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if v, _ := cmd.Flags().GetBool("verbose"); v {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level})
}

// engineConfig assembles the engine configuration shared by generate and
// serve from command flags and loaded secrets.
func engineConfig(cmd *cobra.Command) types.EngineConfig {
	cfg := types.EngineConfig{
		Pacing: types.DefaultPacing(),
		Sequencer: types.SequencerConfig{
			Mode: types.ModeStaggered,
		},
	}

	if paced, _ := cmd.Flags().GetBool("paced"); !paced && cmd.Flags().Lookup("paced") != nil {
		cfg.Pacing = types.ZeroDelayPacing()
	}
	if mode, _ := cmd.Flags().GetString("mode"); mode != "" {
		cfg.Sequencer.Mode = types.SequencerMode(mode)
	}
	if d, _ := cmd.Flags().GetDuration("section-delay"); d > 0 {
		cfg.Sequencer.SectionDelay = d
	}
	if d, _ := cmd.Flags().GetDuration("stagger-interval"); d > 0 {
		cfg.Sequencer.StaggerInterval = d
	}
	cfg.Divergence, _ = cmd.Flags().GetString("divergence")

	backendURL, _ := cmd.Flags().GetString("backend")
	cfg.Gateway.URL = backendURL
	cfg.Gateway.Timeout = defaultTimeout
	cfg.Gateway.UserAgent = defaultUserAgent
	cfg.Gateway.APIKey = secretDefault("generation-api-key", "")

	streamURL, _ := cmd.Flags().GetString("stream")
	cfg.Stream.URL = streamURL

	return cfg
}
