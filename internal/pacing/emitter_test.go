// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pacing

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/pdiddy/proposal-engine/internal/log"
	"github.com/pdiddy/proposal-engine/internal/reconcile"
	"github.com/pdiddy/proposal-engine/internal/store"
	"github.com/pdiddy/proposal-engine/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stubTokens is a TokenSource with manual bumping.
type stubTokens struct {
	mu sync.Mutex
	m  map[string]uint64
}

func newStubTokens() *stubTokens {
	return &stubTokens{m: make(map[string]uint64)}
}

func (s *stubTokens) Current(id string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[id]
}

func (s *stubTokens) bump(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[id]++
}

func newTestEmitter(cfg types.PacingConfig) (*Emitter, *store.Store, *stubTokens) {
	st := store.New()
	st.ReplaceAll([]types.Section{{ID: "exec", Title: "Executive Summary"}})
	tokens := newStubTokens()
	return New(st, cfg, tokens, log.Nop()), st, tokens
}

func TestRevealCompletesExactly(t *testing.T) {
	// Scenario: "Hello." with zero-delay pacing ends with content exactly
	// "Hello." and Streaming false.
	e, st, _ := newTestEmitter(types.ZeroDelayPacing())

	err := e.Reveal(context.Background(), "exec", "Hello.", 0, reconcile.Append)
	if err != nil {
		t.Fatalf("Reveal: %v", err)
	}

	sec, _ := st.Get("exec")
	if sec.Content != "Hello." {
		t.Errorf("Content = %q, want %q", sec.Content, "Hello.")
	}
	if sec.Streaming {
		t.Error("Streaming = true after completion")
	}
}

func TestRevealMonotonicGrowth(t *testing.T) {
	e, st, _ := newTestEmitter(types.ZeroDelayPacing())

	var lengths []int
	cancel := st.Subscribe(func(sections []types.Section) {
		lengths = append(lengths, len(sections[0].Content))
	})
	defer cancel()

	target := "First sentence. Second sentence! Third?\nFourth line."
	if err := e.Reveal(context.Background(), "exec", target, 0, reconcile.Append); err != nil {
		t.Fatalf("Reveal: %v", err)
	}

	for i := 1; i < len(lengths); i++ {
		if lengths[i] < lengths[i-1] {
			t.Fatalf("content shrank from %d to %d at write %d", lengths[i-1], lengths[i], i)
		}
	}
	sec, _ := st.Get("exec")
	if sec.Content != target {
		t.Errorf("Content = %q, want target", sec.Content)
	}
}

func TestRevealEmptyTargetNoWrites(t *testing.T) {
	e, st, _ := newTestEmitter(types.ZeroDelayPacing())

	var contentWrites int
	cancel := st.Subscribe(func(sections []types.Section) {
		if len(sections[0].Content) > 0 {
			contentWrites++
		}
	})
	defer cancel()

	if err := e.Reveal(context.Background(), "exec", "", 0, reconcile.Append); err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	if contentWrites != 0 {
		t.Errorf("content writes = %d, want 0", contentWrites)
	}
	sec, _ := st.Get("exec")
	if sec.Streaming {
		t.Error("Streaming = true after empty reveal")
	}
}

func TestRevealResumesFromPrefix(t *testing.T) {
	e, st, _ := newTestEmitter(types.ZeroDelayPacing())
	st.Set("exec", func(s types.Section) types.Section {
		s.Content = "Hello, "
		return s
	})

	var sawReclear bool
	cancel := st.Subscribe(func(sections []types.Section) {
		if len(sections[0].Content) < len("Hello, ") {
			sawReclear = true
		}
	})
	defer cancel()

	if err := e.Reveal(context.Background(), "exec", "Hello, world.", 0, reconcile.Append); err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	sec, _ := st.Get("exec")
	if sec.Content != "Hello, world." {
		t.Errorf("Content = %q, want %q", sec.Content, "Hello, world.")
	}
	if sawReclear {
		t.Error("resume re-cleared already committed content")
	}
}

func TestRevealDivergentAppendsBehindUserText(t *testing.T) {
	e, st, _ := newTestEmitter(types.ZeroDelayPacing())
	st.Set("exec", func(s types.Section) types.Section {
		s.Content = "My own draft"
		return s
	})

	if err := e.Reveal(context.Background(), "exec", "Generated text.", 0, reconcile.Append); err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	sec, _ := st.Get("exec")
	if sec.Content != "My own draft\n\nGenerated text." {
		t.Errorf("Content = %q, want user text preserved ahead of generated text", sec.Content)
	}
}

func TestRevealOverwriteReplacesDivergentText(t *testing.T) {
	e, st, _ := newTestEmitter(types.ZeroDelayPacing())
	st.Set("exec", func(s types.Section) types.Section {
		s.Content = "Stale content"
		return s
	})

	if err := e.Reveal(context.Background(), "exec", "Regenerated.", 0, reconcile.Overwrite); err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	sec, _ := st.Get("exec")
	if sec.Content != "Regenerated." {
		t.Errorf("Content = %q, want %q", sec.Content, "Regenerated.")
	}
}

func TestRevealUserEditSurvivesNextTick(t *testing.T) {
	cfg := types.ZeroDelayPacing()
	cfg.SliceDelayMin, cfg.SliceDelayMax = 1*time.Millisecond, 2*time.Millisecond
	e, st, _ := newTestEmitter(cfg)

	// Inject a user keystroke from the subscriber after the first write.
	injected := false
	cancel := st.Subscribe(func(sections []types.Section) {
		if !injected && len(sections[0].Content) > 0 {
			injected = true
			go st.Set("exec", func(s types.Section) types.Section {
				s.Content += "[user]"
				return s
			})
		}
	})
	defer cancel()

	target := "A reasonably long target sentence for interleaving."
	if err := e.Reveal(context.Background(), "exec", target, 0, reconcile.Append); err != nil {
		t.Fatalf("Reveal: %v", err)
	}

	sec, _ := st.Get("exec")
	if !injected {
		t.Fatal("user edit was never injected")
	}
	if !strings.Contains(sec.Content, "[user]") {
		t.Errorf("Content = %q, lost the user edit", sec.Content)
	}
}

func TestRevealTokenBumpStopsWrites(t *testing.T) {
	// Scenario: cancelling mid-stream via token invalidation produces no
	// further content writes, verified after waiting past several would-be
	// tick intervals.
	cfg := types.ZeroDelayPacing()
	cfg.SliceDelayMin, cfg.SliceDelayMax = 5*time.Millisecond, 10*time.Millisecond
	cfg.SliceMin, cfg.SliceMax = 1, 2
	e, st, tokens := newTestEmitter(cfg)

	bumped := false
	cancel := st.Subscribe(func(sections []types.Section) {
		if !bumped && len(sections[0].Content) > 3 {
			bumped = true
			tokens.bump("exec")
		}
	})
	defer cancel()

	target := "This target is long enough that cancellation lands mid-stream."
	done := make(chan error, 1)
	go func() { done <- e.Reveal(context.Background(), "exec", target, 0, reconcile.Append) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Reveal: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Reveal did not return after token bump")
	}
	if !bumped {
		t.Fatal("token was never bumped")
	}

	sec, _ := st.Get("exec")
	frozen := len(sec.Content)
	if frozen >= len(target) {
		t.Fatalf("reveal completed despite token bump (len %d)", frozen)
	}

	time.Sleep(100 * time.Millisecond)
	sec, _ = st.Get("exec")
	if len(sec.Content) != frozen {
		t.Errorf("content grew from %d to %d after cancellation", frozen, len(sec.Content))
	}
}

func TestRevealContextCancelClearsStreaming(t *testing.T) {
	cfg := types.ZeroDelayPacing()
	cfg.SliceDelayMin, cfg.SliceDelayMax = 20*time.Millisecond, 30*time.Millisecond
	e, st, _ := newTestEmitter(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- e.Reveal(ctx, "exec", "Some target text that is never finished.", 0, reconcile.Append)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	err := <-done
	if err != context.Canceled {
		t.Errorf("Reveal error = %v, want context.Canceled", err)
	}
	sec, _ := st.Get("exec")
	if sec.Streaming {
		t.Error("Streaming left true after context cancellation")
	}
}

func TestRevealRemovedSection(t *testing.T) {
	e, st, _ := newTestEmitter(types.ZeroDelayPacing())
	st.Remove("exec")
	if err := e.Reveal(context.Background(), "exec", "Hello.", 0, reconcile.Append); err != nil {
		t.Errorf("Reveal for removed section returned %v, want nil", err)
	}
}
