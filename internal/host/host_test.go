// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package host

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/proposal-engine/internal/backend"
	"github.com/pdiddy/proposal-engine/internal/document"
	"github.com/pdiddy/proposal-engine/internal/gateway"
	"github.com/pdiddy/proposal-engine/internal/log"
	"github.com/pdiddy/proposal-engine/pkg/types"
)

// newHost wires a session against the stub backend and serves the host
// adapter over httptest.
func newHost(t *testing.T) (*httptest.Server, *document.Session) {
	t.Helper()
	stub := httptest.NewServer(backend.New(backend.Config{ChunkDelay: time.Millisecond}, log.Nop()).Handler())
	t.Cleanup(stub.Close)

	cfg := types.EngineConfig{
		Pacing: types.ZeroDelayPacing(),
		Sequencer: types.SequencerConfig{
			Mode:            types.ModeStaggered,
			StaggerInterval: time.Millisecond,
		},
	}
	cfg.Gateway.URL = stub.URL + "/generate"
	session := document.New(cfg, gateway.New(cfg.Gateway, nil, log.Nop()), log.Nop())
	t.Cleanup(func() { session.Close() })
	session.InitializeSections([]types.Section{
		{ID: "exec", Title: "Executive Summary", Required: true},
		{ID: "budget", Title: "Budget"},
	})

	srv := httptest.NewServer(New(context.Background(), session, log.Nop()).Handler())
	t.Cleanup(srv.Close)
	return srv, session
}

func getSections(t *testing.T, url string) []types.Section {
	t.Helper()
	resp, err := http.Get(url + "/sections")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sections []types.Section
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sections))
	return sections
}

func TestSectionsEndpoint(t *testing.T) {
	srv, _ := newHost(t)
	sections := getSections(t, srv.URL)
	require.Len(t, sections, 2)
	assert.Equal(t, "exec", sections[0].ID)
	assert.Equal(t, "budget", sections[1].ID)
}

func TestGenerateSectionEndpoint(t *testing.T) {
	srv, session := newHost(t)

	resp, err := http.Post(srv.URL+"/sections/exec/generate", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		sec, _ := session.Section("exec")
		return sec.Content != "" && !sec.Streaming
	}, 5*time.Second, 10*time.Millisecond)
	sec, _ := session.Section("exec")
	assert.Contains(t, sec.Content, "Executive Summary")
}

func TestGenerateUnknownSectionIs404(t *testing.T) {
	srv, _ := newHost(t)
	resp, err := http.Post(srv.URL+"/sections/nope/generate", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestContentEndpointAppliesUserEdit(t *testing.T) {
	srv, session := newHost(t)

	body := strings.NewReader(`{"content": "We will build a greenhouse."}`)
	resp, err := http.Post(srv.URL+"/sections/budget/content", "application/json", body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	sec, _ := session.Section("budget")
	assert.Equal(t, "We will build a greenhouse.", sec.Content)
}

func TestRemoveEndpoint(t *testing.T) {
	srv, session := newHost(t)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/sections/budget", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, ok := session.Section("budget")
	assert.False(t, ok)
	assert.Len(t, session.Sections(), 1)
}

func TestGenerateDocumentEndpoint(t *testing.T) {
	srv, session := newHost(t)

	resp, err := http.Post(srv.URL+"/generate", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		for _, sec := range session.Sections() {
			if sec.Content == "" || sec.Streaming {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)
}

func TestEventsFeedStreamsSnapshots(t *testing.T) {
	srv, session := newHost(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readEvent := func() []types.Section {
		var data string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			if strings.HasPrefix(line, "data: ") {
				data += strings.TrimPrefix(line, "data: ")
			}
			if line == "" && data != "" {
				break
			}
		}
		var sections []types.Section
		require.NoError(t, json.Unmarshal([]byte(data), &sections))
		return sections
	}

	initial := readEvent()
	require.Len(t, initial, 2)
	assert.Empty(t, initial[0].Content)

	session.ApplyUserEdit("exec", "Hand-written summary.")
	updated := readEvent()
	require.Len(t, updated, 2)
	assert.Equal(t, "Hand-written summary.", updated[0].Content)
}
