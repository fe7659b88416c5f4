// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package stream maintains the push-channel transport to the generation
// backend: one websocket connection per document session, demultiplexing
// inbound frames by section id into section store writes.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pdiddy/proposal-engine/internal/gateway"
	"github.com/pdiddy/proposal-engine/internal/reconcile"
	"github.com/pdiddy/proposal-engine/internal/store"
	"github.com/pdiddy/proposal-engine/pkg/types"
)

const (
	defaultStallTimeout     = 60 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
)

// TokenSource reports the current generation token for a section. The
// session captures a section's token when its stream begins and stops
// writing as soon as the current token differs, so a cancelled or
// superseded generation performs no further writes. A nil TokenSource
// disables the guard.
type TokenSource interface {
	Current(sectionID string) uint64
}

// SettleReason says how a section reached its final state. The zero value
// is SettleDropped so a waiter woken by a closed channel reads a drop.
type SettleReason int

const (
	// SettleDropped marks a section released without completing: the
	// channel disconnected or the generation was cancelled.
	SettleDropped SettleReason = iota

	// SettleStalled marks a section failed by the stall watchdog and
	// completed with placeholder content.
	SettleStalled

	// SettleCompleted marks a section whose completion frame arrived.
	SettleCompleted
)

// sectionState is the per-section accumulator owned by the session while a
// push-based generation is active. It is discarded on completion or
// disconnect.
type sectionState struct {
	token    uint64 // generation token captured when the stream began
	buffer   strings.Builder
	mirrored int // bytes of buffer already appended to the store
	watchdog *time.Timer
}

// Session owns one backend channel and routes its frames. All exported
// methods are safe for concurrent use.
type Session struct {
	conn   *websocket.Conn
	st     *store.Store
	rec    reconcile.Reconciler
	cfg    types.StreamConfig
	tokens TokenSource
	logger *slog.Logger

	// onSettled, when non-nil, is called after a section reaches a final
	// state: completed, stalled, or dropped by disconnect.
	onSettled func(sectionID string, reason SettleReason)

	mu       sync.Mutex
	sections map[string]*sectionState

	writeMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the backend channel endpoint and returns a Session
// ready to Run.
func Dial(ctx context.Context, cfg types.StreamConfig, st *store.Store, tokens TokenSource, logger *slog.Logger, onSettled func(string, SettleReason)) (*Session, error) {
	dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	if dialer.HandshakeTimeout <= 0 {
		dialer.HandshakeTimeout = defaultHandshakeTimeout
	}
	conn, resp, err := dialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing %s: status %d: %w", cfg.URL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dialing %s: %w", cfg.URL, err)
	}
	return NewSession(conn, cfg, st, tokens, logger, onSettled), nil
}

// NewSession wraps an established connection. Used by Dial and by tests
// that stand up their own websocket pair.
func NewSession(conn *websocket.Conn, cfg types.StreamConfig, st *store.Store, tokens TokenSource, logger *slog.Logger, onSettled func(string, SettleReason)) *Session {
	if cfg.StallTimeout <= 0 {
		cfg.StallTimeout = defaultStallTimeout
	}
	return &Session{
		conn:      conn,
		st:        st,
		cfg:       cfg,
		tokens:    tokens,
		logger:    logger,
		onSettled: onSettled,
		sections:  make(map[string]*sectionState),
		done:      make(chan struct{}),
	}
}

// RequestSection asks the backend to generate one section over the channel.
func (s *Session) RequestSection(cmd types.GenerateCommand) error {
	if cmd.Action == "" {
		cmd.Action = "write"
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("sending generate command for %s: %w", cmd.SectionID, err)
	}
	return nil
}

// Run reads frames until the connection closes, dispatching each valid
// frame to its section. It never panics and never returns an error: a
// broken channel degrades to cleared streaming flags, not a crash.
func (s *Session) Run() {
	defer s.disconnect()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("backend channel closed unexpectedly", "error", err)
			}
			return
		}
		var msg types.BackendMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("dropping undecodable frame", "error", err)
			continue
		}
		if err := msg.Validate(); err != nil {
			s.logger.Warn("dropping malformed frame", "error", err)
			continue
		}
		s.dispatch(msg)
	}
}

// Done is closed once the session has shut down and released all sections.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close tears the channel down. Safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

func (s *Session) dispatch(msg types.BackendMessage) {
	switch msg.Kind {
	case types.KindStarted:
		s.handleStarted(msg.SectionID)
	case types.KindChunk:
		s.handleChunk(msg.SectionID, msg.Text)
	case types.KindComplete:
		s.handleComplete(msg)
	case types.KindAnalysis:
		s.handleAnalysis(msg.SectionID, msg.Analysis)
	}
}

// currentToken reads the section's generation token, or zero without a
// TokenSource.
func (s *Session) currentToken(id string) uint64 {
	if s.tokens == nil {
		return 0
	}
	return s.tokens.Current(id)
}

// stale reports whether a captured token has been superseded.
func (s *Session) stale(id string, token uint64) bool {
	return s.tokens != nil && s.tokens.Current(id) != token
}

func (s *Session) handleStarted(id string) {
	token := s.currentToken(id)
	s.mu.Lock()
	state := &sectionState{token: token}
	state.watchdog = time.AfterFunc(s.cfg.StallTimeout, func() { s.stall(id) })
	if old, ok := s.sections[id]; ok && old.watchdog != nil {
		old.watchdog.Stop()
	}
	s.sections[id] = state
	s.mu.Unlock()

	s.st.Set(id, func(sec types.Section) types.Section {
		if s.stale(id, token) {
			return sec
		}
		sec.Streaming = true
		return sec
	})
}

func (s *Session) handleChunk(id, text string) {
	s.mu.Lock()
	state, ok := s.sections[id]
	if !ok {
		// Chunk without a started frame: adopt the section anyway so a
		// backend that skips "started" still streams.
		state = &sectionState{token: s.currentToken(id)}
		state.watchdog = time.AfterFunc(s.cfg.StallTimeout, func() { s.stall(id) })
		s.sections[id] = state
	}
	token := state.token
	state.buffer.WriteString(text)
	delta := state.buffer.String()[state.mirrored:]
	state.mirrored = state.buffer.Len()
	state.watchdog.Reset(s.cfg.StallTimeout)
	s.mu.Unlock()

	if s.stale(id, token) {
		// The generation was cancelled; whoever bumped the token owns the
		// section now. The dead state stays registered so the run's
		// remaining frames are recognized as stale too.
		return
	}

	// Appending the unmirrored delta, rather than rewriting the whole
	// buffer, leaves characters the user typed between frames in place.
	s.st.Set(id, func(sec types.Section) types.Section {
		if s.stale(id, token) {
			return sec
		}
		sec.Streaming = true
		sec.Content += delta
		return sec
	})
}

func (s *Session) handleComplete(msg types.BackendMessage) {
	id := msg.SectionID
	s.mu.Lock()
	var buffered string
	state, owned := s.sections[id]
	if owned {
		buffered = state.buffer.String()
		if state.watchdog != nil {
			state.watchdog.Stop()
		}
		delete(s.sections, id)
	}
	s.mu.Unlock()

	token := s.currentToken(id)
	if owned {
		token = state.token
	}
	if s.stale(id, token) {
		// Cancelled mid-stream; the cancel already settled the section.
		return
	}

	s.st.Set(id, func(sec types.Section) types.Section {
		if s.stale(id, token) {
			return sec
		}
		sec.Content = s.completeContent(sec.Content, buffered, msg.Text)
		sec.Streaming = false
		if len(msg.Media) > 0 {
			sec.Media = msg.Media
		}
		if msg.Analysis != nil {
			sec.Analysis = msg.Analysis
		}
		return sec
	})
	s.settled(id, SettleCompleted)
}

// completeContent picks the section text to keep when a completion frame
// arrives. The streamed buffer has normally been mirrored already; the
// final text replaces it only when doing so cannot discard a user edit.
func (s *Session) completeContent(existing, buffered, final string) string {
	switch {
	case existing == buffered:
		// Untouched mirror of the stream: adopt the canonical final text.
		return final
	case buffered == "":
		// No chunks were streamed; this is a bulk completion.
		return s.rec.Resolve(existing, final, false)
	default:
		// The user edited between frames. Their interleaved text wins;
		// the chunks already delivered carry the generated content.
		return existing
	}
}

func (s *Session) handleAnalysis(id string, analysis *types.Analysis) {
	s.mu.Lock()
	state, owned := s.sections[id]
	s.mu.Unlock()
	token := s.currentToken(id)
	if owned {
		token = state.token
	}
	s.st.Set(id, func(sec types.Section) types.Section {
		if s.stale(id, token) {
			return sec
		}
		sec.Analysis = analysis
		return sec
	})
}

// stall fails a section that produced no frames within StallTimeout:
// fallback text is written and the streaming flag cleared, leaving a
// completed-looking section.
func (s *Session) stall(id string) {
	s.mu.Lock()
	state, owned := s.sections[id]
	delete(s.sections, id)
	s.mu.Unlock()
	if !owned || s.stale(id, state.token) {
		return
	}
	token := state.token

	s.logger.Warn("section stalled, using fallback", "section", id, "timeout", s.cfg.StallTimeout)
	s.st.Set(id, func(sec types.Section) types.Section {
		if s.stale(id, token) {
			return sec
		}
		if sec.Content == "" {
			sec.Content = gateway.FallbackText(sec.Title)
		}
		sec.Streaming = false
		return sec
	})
	s.settled(id, SettleStalled)
}

// disconnect releases every section the session still owns. A section left
// mid-stream keeps the content it already received but must not stay
// flagged as streaming.
func (s *Session) disconnect() {
	s.mu.Lock()
	owned := make([]string, 0, len(s.sections))
	for id, state := range s.sections {
		if state.watchdog != nil {
			state.watchdog.Stop()
		}
		owned = append(owned, id)
	}
	s.sections = make(map[string]*sectionState)
	s.mu.Unlock()

	for _, id := range owned {
		s.st.Set(id, func(sec types.Section) types.Section {
			sec.Streaming = false
			return sec
		})
		s.settled(id, SettleDropped)
	}
	close(s.done)
}

func (s *Session) settled(id string, reason SettleReason) {
	if s.onSettled != nil {
		s.onSettled(id, reason)
	}
}
