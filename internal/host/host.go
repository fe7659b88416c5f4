// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package host exposes a document session to a browser over HTTP: section
// snapshots and mutations as JSON endpoints, and live section updates as a
// Server-Sent Events feed.
package host

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/pdiddy/proposal-engine/internal/document"
	"github.com/pdiddy/proposal-engine/pkg/types"
)

// Server adapts a document session to HTTP. Generation endpoints return
// immediately; the browser observes progress on the events feed.
type Server struct {
	session *document.Session
	logger  *slog.Logger

	// ctx scopes background generation work to the server, not to the
	// HTTP request that triggered it.
	ctx context.Context
}

func New(ctx context.Context, session *document.Session, logger *slog.Logger) *Server {
	return &Server{session: session, logger: logger, ctx: ctx}
}

// Handler returns the host's route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /sections", s.handleSections)
	mux.HandleFunc("POST /sections/{id}/generate", s.handleGenerateSection)
	mux.HandleFunc("POST /sections/{id}/regenerate", s.handleRegenerate)
	mux.HandleFunc("POST /sections/{id}/content", s.handleContent)
	mux.HandleFunc("POST /sections/{id}/cancel", s.handleCancel)
	mux.HandleFunc("DELETE /sections/{id}", s.handleRemove)
	mux.HandleFunc("POST /generate", s.handleGenerateDocument)
	mux.HandleFunc("GET /events", s.handleEvents)
	return mux
}

func (s *Server) handleSections(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Sections())
}

func (s *Server) handleGenerateSection(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.session.Section(id); !ok {
		http.Error(w, "unknown section", http.StatusNotFound)
		return
	}
	go func() {
		if _, err := s.session.RequestGeneration(s.ctx, id); err != nil {
			s.logger.Warn("section generation failed", "section", id, "error", err)
		}
	}()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.session.Section(id); !ok {
		http.Error(w, "unknown section", http.StatusNotFound)
		return
	}
	go func() {
		if _, err := s.session.Regenerate(s.ctx, id); err != nil {
			s.logger.Warn("section regeneration failed", "section", id, "error", err)
		}
	}()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.session.Section(id); !ok {
		http.Error(w, "unknown section", http.StatusNotFound)
		return
	}
	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	s.session.ApplyUserEdit(id, body.Content)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.session.CancelGeneration(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	s.session.RemoveSection(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGenerateDocument(w http.ResponseWriter, r *http.Request) {
	go func() {
		report, started := s.session.GenerateDocument(s.ctx)
		if started {
			s.logger.Info("full-document run finished", "outcomes", len(report.Outcomes))
		}
	}()
	w.WriteHeader(http.StatusAccepted)
}

// handleEvents streams ordered section snapshots as SSE "sections" events.
// The first event is the current snapshot; one follows for every change.
// Store notifications must never block, so snapshots are coalesced: a slow
// client sees the latest state, not every intermediate one.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sse, err := newSSEWriter(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var mu sync.Mutex
	var pending []types.Section
	kick := make(chan struct{}, 1)
	cancel := s.session.OnSectionsChanged(func(sections []types.Section) {
		mu.Lock()
		pending = sections
		mu.Unlock()
		select {
		case kick <- struct{}{}:
		default:
		}
	})
	defer cancel()

	if err := sse.writeEvent("sections", s.session.Sections()); err != nil {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case <-kick:
			mu.Lock()
			snapshot := pending
			mu.Unlock()
			if err := sse.writeEvent("sections", snapshot); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
