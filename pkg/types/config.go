// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings for components that call the
// generation backend over request/response.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "proposal-engine/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// PacingConfig holds the delay distribution for the typing simulation.
// All ranges are configuration, not per-call-site constants, so tests can
// substitute ZeroDelayPacing.
type PacingConfig struct {
	// InitialDelayMin/Max bound the "thinking" pause before the first slice.
	InitialDelayMin time.Duration `json:"initial_delay_min" yaml:"initial_delay_min"`
	InitialDelayMax time.Duration `json:"initial_delay_max" yaml:"initial_delay_max"`

	// SliceDelayMin/Max bound the pause between ordinary slices.
	SliceDelayMin time.Duration `json:"slice_delay_min" yaml:"slice_delay_min"`
	SliceDelayMax time.Duration `json:"slice_delay_max" yaml:"slice_delay_max"`

	// SentencePauseMin/Max bound the longer pause after sentence-ending
	// punctuation or a line break.
	SentencePauseMin time.Duration `json:"sentence_pause_min" yaml:"sentence_pause_min"`
	SentencePauseMax time.Duration `json:"sentence_pause_max" yaml:"sentence_pause_max"`

	// SliceMin/Max bound the character count of an ordinary slice.
	SliceMin int `json:"slice_min" yaml:"slice_min"`
	SliceMax int `json:"slice_max" yaml:"slice_max"`

	// BurstChance is the probability (0-1) that a slice is a longer burst.
	BurstChance float64 `json:"burst_chance" yaml:"burst_chance"`

	// BurstMin/Max bound the character count of a burst slice.
	BurstMin int `json:"burst_min" yaml:"burst_min"`
	BurstMax int `json:"burst_max" yaml:"burst_max"`
}

// DefaultPacing returns the delay profile used for interactive typing
// simulation.
func DefaultPacing() PacingConfig {
	return PacingConfig{
		InitialDelayMin:  400 * time.Millisecond,
		InitialDelayMax:  900 * time.Millisecond,
		SliceDelayMin:    30 * time.Millisecond,
		SliceDelayMax:    90 * time.Millisecond,
		SentencePauseMin: 180 * time.Millisecond,
		SentencePauseMax: 420 * time.Millisecond,
		SliceMin:         2,
		SliceMax:         6,
		BurstChance:      0.12,
		BurstMin:         12,
		BurstMax:         28,
	}
}

// ZeroDelayPacing returns a profile with no delays. Slice sizing still
// applies, so a reveal runs the same code path at full speed. Intended for
// tests and non-interactive CLI output.
func ZeroDelayPacing() PacingConfig {
	cfg := DefaultPacing()
	cfg.InitialDelayMin, cfg.InitialDelayMax = 0, 0
	cfg.SliceDelayMin, cfg.SliceDelayMax = 0, 0
	cfg.SentencePauseMin, cfg.SentencePauseMax = 0, 0
	return cfg
}

// StreamConfig holds settings for the push-channel transport.
type StreamConfig struct {
	// URL is the backend websocket endpoint (ws:// or wss://).
	URL string `json:"url" yaml:"url"`

	// StallTimeout bounds how long a started section may go without a
	// chunk or completion before it is treated as failed (default 60s).
	StallTimeout time.Duration `json:"stall_timeout" yaml:"stall_timeout"`

	// HandshakeTimeout bounds the websocket dial (default 10s).
	HandshakeTimeout time.Duration `json:"handshake_timeout" yaml:"handshake_timeout"`
}

// GatewayConfig holds settings for the request/response transport.
type GatewayConfig struct {
	HTTPConfig `yaml:",inline"`

	// URL is the backend generation endpoint.
	URL string `json:"url" yaml:"url"`

	// APIKey authenticates requests to the backend (optional).
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// MaxRetries is the retry budget for rate-limited or transiently
	// failing requests (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// SequencerMode selects the full-document generation policy.
type SequencerMode string

const (
	// ModeSerial runs sections one at a time: the next section starts only
	// after the previous section's reveal has fully completed.
	ModeSerial SequencerMode = "serial"

	// ModeStaggered kicks all sections off up front with increasing start
	// offsets so only a few appear to be typing at once.
	ModeStaggered SequencerMode = "staggered"
)

// SequencerConfig holds settings for full-document generation runs.
type SequencerConfig struct {
	// Mode selects the policy: serial or staggered.
	Mode SequencerMode `json:"mode" yaml:"mode"`

	// SectionDelay is the fixed pause between sections in serial mode
	// (default 500ms).
	SectionDelay time.Duration `json:"section_delay" yaml:"section_delay"`

	// StaggerInterval is the spacing between section starts in staggered
	// mode (default 200ms).
	StaggerInterval time.Duration `json:"stagger_interval" yaml:"stagger_interval"`
}

// HostConfig holds settings for the HTTP host surface.
type HostConfig struct {
	// Addr is the listen address (default ":8477").
	Addr string `json:"addr" yaml:"addr"`
}

// EngineConfig groups all engine settings.
type EngineConfig struct {
	Pacing    PacingConfig    `json:"pacing" yaml:"pacing"`
	Stream    StreamConfig    `json:"stream" yaml:"stream"`
	Gateway   GatewayConfig   `json:"gateway" yaml:"gateway"`
	Sequencer SequencerConfig `json:"sequencer" yaml:"sequencer"`
	Host      HostConfig      `json:"host" yaml:"host"`

	// Divergence selects what a generation run does when a section's
	// existing content is not a prefix of the generated text: "append"
	// (default) queues the generated text behind it, "overwrite" replaces
	// it. The explicit regenerate action always overwrites.
	Divergence string `json:"divergence" yaml:"divergence"`
}
