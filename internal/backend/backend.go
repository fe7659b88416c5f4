// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package backend is a self-contained stand-in for the generation service.
// It serves the request/response endpoint and the websocket push channel
// with canned section text, so the engine can be demonstrated and tested
// without a model behind it.
package backend

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pdiddy/proposal-engine/pkg/types"
)

// Config controls the stub's behavior.
type Config struct {
	// ChunkSize is how many runes each websocket chunk carries (default 24).
	ChunkSize int

	// ChunkDelay is the pause between websocket chunks (default 80ms).
	ChunkDelay time.Duration
}

// Server answers generation requests with deterministic canned text.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func New(cfg Config, logger *slog.Logger) *Server {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 24
	}
	if cfg.ChunkDelay <= 0 {
		cfg.ChunkDelay = 80 * time.Millisecond
	}
	return &Server{cfg: cfg, logger: logger}
}

// Handler returns the stub's HTTP surface: POST /generate for the
// request/response transport and GET /stream for the push channel.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /generate", s.handleGenerate)
	mux.HandleFunc("GET /stream", s.handleStream)
	return mux
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SectionTitle string `json:"section_title"`
		Context      string `json:"context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	text := SectionText(req.SectionTitle, req.Context)
	s.logger.Debug("serving generate request", "title", req.SectionTitle, "bytes", len(text))
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"generated_text": text,
		"quality_metrics": types.Analysis{
			ReadabilityScore: 62.0,
			WordCount:        len(strings.Fields(text)),
		},
	})
}

// handleStream speaks the push protocol: it reads generate commands and
// answers each with a started frame, chunked text, and a completion frame.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	s.logger.Info("push channel connected", "remote", r.RemoteAddr)

	for {
		var cmd types.GenerateCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			s.logger.Debug("push channel closed", "error", err)
			return
		}
		if cmd.SectionID == "" {
			continue
		}
		if err := s.streamSection(conn, cmd); err != nil {
			s.logger.Debug("push channel write failed", "error", err)
			return
		}
	}
}

func (s *Server) streamSection(conn *websocket.Conn, cmd types.GenerateCommand) error {
	text := SectionText(cmd.SectionTitle, cmd.Context)
	if err := conn.WriteJSON(types.BackendMessage{Kind: types.KindStarted, SectionID: cmd.SectionID}); err != nil {
		return err
	}
	// Chunk on rune boundaries so a multi-byte character is never split
	// across frames.
	runes := []rune(text)
	for start := 0; start < len(runes); start += s.cfg.ChunkSize {
		end := start + s.cfg.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		msg := types.BackendMessage{Kind: types.KindChunk, SectionID: cmd.SectionID, Text: string(runes[start:end])}
		if err := conn.WriteJSON(msg); err != nil {
			return err
		}
		time.Sleep(s.cfg.ChunkDelay)
	}
	if err := conn.WriteJSON(types.BackendMessage{Kind: types.KindComplete, SectionID: cmd.SectionID, Text: text}); err != nil {
		return err
	}
	return conn.WriteJSON(types.BackendMessage{
		Kind:      types.KindAnalysis,
		SectionID: cmd.SectionID,
		Analysis: &types.Analysis{
			ReadabilityScore: 62.0,
			WordCount:        len(strings.Fields(text)),
		},
	})
}

// SectionText returns the canned prose for a section. The text is a pure
// function of the title and context, so repeated runs are comparable.
func SectionText(title, context string) string {
	if title == "" {
		title = "Untitled Section"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", title)
	fmt.Fprintf(&b, "This section addresses %s in concrete terms. ", strings.ToLower(title))
	b.WriteString("It lays out the current situation, the change we propose, and the evidence that the change will work. ")
	if context != "" {
		first := context
		if idx := strings.IndexByte(first, '\n'); idx >= 0 {
			first = first[:idx]
		}
		fmt.Fprintf(&b, "The proposal context is: %s ", strings.TrimSpace(first))
	}
	b.WriteString("We close with the resources required and the milestones by which progress can be judged.")
	return b.String()
}
