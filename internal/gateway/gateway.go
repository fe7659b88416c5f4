// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package gateway issues one-shot generation requests for transports
// without a push channel. A request carries the section's title and the
// document context; the response carries the full generated text, which the
// caller hands to the pacing emitter for reveal.
//
// The gateway never fails upward: transport errors, non-success statuses,
// and malformed responses all degrade to deterministic placeholder content
// so the document stays visually complete.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/pdiddy/proposal-engine/internal/httputil"
	"github.com/pdiddy/proposal-engine/pkg/types"
)

// maxResponseBytes caps how much of a backend response is read.
const maxResponseBytes = 4 << 20

// Request identifies one section generation attempt.
type Request struct {
	SectionID    string
	SectionTitle string
	Context      string
}

// Result is the outcome of a generation attempt. Fallback marks results
// whose text is locally generated placeholder content.
type Result struct {
	Text     string
	Media    []types.MediaElement
	Analysis *types.Analysis
	Fallback bool
}

// generateRequest is the wire shape of a backend request.
type generateRequest struct {
	SectionTitle string `json:"section_title"`
	Context      string `json:"context,omitempty"`
}

// generateResponse is the wire shape of a backend response.
type generateResponse struct {
	GeneratedText  string               `json:"generated_text"`
	MediaElements  []types.MediaElement `json:"media_elements,omitempty"`
	QualityMetrics *types.Analysis      `json:"quality_metrics,omitempty"`
}

// Gateway calls the request/response generation endpoint.
type Gateway struct {
	cfg    types.GatewayConfig
	client *http.Client
	logger *slog.Logger
}

// New creates a Gateway. A nil client gets a default one using the
// configured timeout.
func New(cfg types.GatewayConfig, client *http.Client, logger *slog.Logger) *Gateway {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Gateway{cfg: cfg, client: client, logger: logger}
}

// Generate requests full text for one section. It always returns a usable
// Result: on any failure the text is the fallback placeholder for the
// section's title and Result.Fallback is true. Fallback text is produced
// locally and is never itself sent back through a backend.
func (g *Gateway) Generate(ctx context.Context, req Request) Result {
	res, err := g.call(ctx, req)
	if err != nil {
		g.logger.Warn("generation failed, using fallback",
			"section", req.SectionID, "error", err)
		return Result{Text: FallbackText(req.SectionTitle), Fallback: true}
	}
	return res
}

func (g *Gateway) call(ctx context.Context, req Request) (Result, error) {
	body, err := json.Marshal(generateRequest{
		SectionTitle: req.SectionTitle,
		Context:      req.Context,
	})
	if err != nil {
		return Result{}, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.cfg.UserAgent != "" {
		httpReq.Header.Set("User-Agent", g.cfg.UserAgent)
	}
	if g.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}

	resp, err := httputil.DoWithRetry(ctx, g.client, httpReq, g.cfg.MaxRetries)
	if err != nil {
		return Result{}, fmt.Errorf("calling backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return Result{}, fmt.Errorf("backend returned status %d", resp.StatusCode)
	}

	var decoded generateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&decoded); err != nil {
		return Result{}, fmt.Errorf("decoding response: %w", err)
	}
	if decoded.GeneratedText == "" {
		return Result{}, fmt.Errorf("backend response missing generated_text")
	}

	return Result{
		Text:     decoded.GeneratedText,
		Media:    decoded.MediaElements,
		Analysis: decoded.QualityMetrics,
	}, nil
}
