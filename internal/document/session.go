// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package document owns the per-editor engine state: the section store,
// the generation transports, per-section generation tokens, and the
// full-document run latch. One Session exists per open editor and is torn
// down when the editor closes.
package document

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/pdiddy/proposal-engine/internal/gateway"
	"github.com/pdiddy/proposal-engine/internal/pacing"
	"github.com/pdiddy/proposal-engine/internal/reconcile"
	"github.com/pdiddy/proposal-engine/internal/sequencer"
	"github.com/pdiddy/proposal-engine/internal/store"
	"github.com/pdiddy/proposal-engine/internal/stream"
	"github.com/pdiddy/proposal-engine/internal/template"
	"github.com/pdiddy/proposal-engine/pkg/types"
)

// Session is the engine surface a document host talks to. All methods are
// safe for concurrent use.
type Session struct {
	id     uuid.UUID
	cfg    types.EngineConfig
	logger *slog.Logger

	st      *store.Store
	tokens  *tokenRegistry
	emitter *pacing.Emitter
	gw      *gateway.Gateway
	seq     *sequencer.Sequencer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// started latches once the first full-document run begins and is never
	// cleared for the session's lifetime, so remounts and duplicate
	// triggers cannot launch overlapping runs.
	started atomic.Bool

	streamMu sync.Mutex
	str      *stream.Session

	ctxMu       sync.Mutex
	docContext  string
	sectionNote map[string]string

	waitMu  sync.Mutex
	waiters map[string][]chan stream.SettleReason
	closed  bool

	runMu     sync.Mutex
	runStates map[string]types.RunState
}

// New creates a Session. gw may be nil when only the push channel is used.
func New(cfg types.EngineConfig, gw *gateway.Gateway, logger *slog.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	st := store.New()
	tokens := newTokenRegistry()
	s := &Session{
		id:          uuid.New(),
		cfg:         cfg,
		logger:      logger,
		st:          st,
		tokens:      tokens,
		emitter:     pacing.New(st, cfg.Pacing, tokens, logger),
		gw:          gw,
		seq:         sequencer.New(cfg.Sequencer, logger),
		ctx:         ctx,
		cancel:      cancel,
		sectionNote: make(map[string]string),
		waiters:     make(map[string][]chan stream.SettleReason),
		runStates:   make(map[string]types.RunState),
	}
	return s
}

// ID identifies this session in logs.
func (s *Session) ID() uuid.UUID { return s.id }

// InitializeSections replaces the document's section list.
func (s *Session) InitializeSections(sections []types.Section) {
	s.st.ReplaceAll(sections)
}

// InitializeFromTemplate replaces the section list from a template's plan
// and records the template's context for generation requests.
func (s *Session) InitializeFromTemplate(tpl *types.Template) {
	s.ctxMu.Lock()
	s.docContext = tpl.Context
	s.sectionNote = make(map[string]string, len(tpl.Sections))
	for _, sec := range tpl.Sections {
		if sec.Description != "" {
			s.sectionNote[sec.ID] = sec.Description
		}
	}
	s.ctxMu.Unlock()
	s.st.ReplaceAll(template.Sections(tpl))
}

// RunState reports a section's progress through the current generation
// run. Sections no run has touched are pending.
func (s *Session) RunState(id string) types.RunState {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if st, ok := s.runStates[id]; ok {
		return st
	}
	return types.RunPending
}

func (s *Session) setRunState(id string, st types.RunState) {
	s.runMu.Lock()
	s.runStates[id] = st
	s.runMu.Unlock()
}

// Sections returns an ordered snapshot of the document.
func (s *Session) Sections() []types.Section {
	return s.st.List()
}

// Section returns a snapshot of one section.
func (s *Session) Section(id string) (types.Section, bool) {
	return s.st.Get(id)
}

// OnSectionsChanged registers a callback invoked with an ordered snapshot
// after every change. The returned function cancels the registration.
func (s *Session) OnSectionsChanged(fn func([]types.Section)) func() {
	return s.st.Subscribe(fn)
}

// ApplyUserEdit writes a user's text for a section. User intent always
// wins: the edit is applied immediately even while the section is
// streaming, and the next automated tick re-derives its base from this
// content instead of stomping it.
func (s *Session) ApplyUserEdit(id, content string) {
	s.st.Set(id, func(sec types.Section) types.Section {
		sec.Content = reconcile.Reconciler{}.Resolve(sec.Content, content, true)
		return sec
	})
}

// RemoveSection cancels any generation for the section and drops it from
// the document.
func (s *Session) RemoveSection(id string) {
	s.tokens.bump(id)
	s.st.Remove(id)
	s.settle(id, stream.SettleDropped)
}

// CancelGeneration invalidates the section's in-flight generation, if any.
// Pending ticks observe the bumped token and perform no further writes.
func (s *Session) CancelGeneration(id string) {
	s.tokens.bump(id)
	s.st.Set(id, func(sec types.Section) types.Section {
		sec.Streaming = false
		return sec
	})
	s.settle(id, stream.SettleDropped)
}

// RequestGeneration generates one section. With a push channel attached
// the request goes over the channel and the call blocks until the backend
// settles the section; otherwise the request/response gateway produces the
// full text and the pacing emitter reveals it. A section already streaming
// is left to its current owner.
func (s *Session) RequestGeneration(ctx context.Context, id string) (sequencer.Outcome, error) {
	sec, ok := s.st.Get(id)
	if !ok {
		return sequencer.OutcomeSkipped, fmt.Errorf("unknown section %q", id)
	}
	if sec.Streaming {
		return sequencer.OutcomeSkipped, nil
	}
	return s.generate(ctx, sec, s.divergence())
}

// divergence maps the configured policy name; anything unrecognized means
// the append default.
func (s *Session) divergence() reconcile.DivergencePolicy {
	if s.cfg.Divergence == string(reconcile.Overwrite) {
		return reconcile.Overwrite
	}
	return reconcile.Append
}

// Regenerate is the explicit user action: it always runs, cancelling any
// in-flight generation for the section and fully replacing its content.
func (s *Session) Regenerate(ctx context.Context, id string) (sequencer.Outcome, error) {
	sec, ok := s.st.Get(id)
	if !ok {
		return sequencer.OutcomeSkipped, fmt.Errorf("unknown section %q", id)
	}
	return s.generate(ctx, sec, reconcile.Overwrite)
}

// GenerateSection implements sequencer.SectionRunner.
func (s *Session) GenerateSection(ctx context.Context, id string) (sequencer.Outcome, error) {
	return s.RequestGeneration(ctx, id)
}

// GenerateDocument runs full-document generation under the configured
// sequencer policy. The second return is false when a run had already been
// started for this session; the duplicate is suppressed without error.
func (s *Session) GenerateDocument(ctx context.Context) (sequencer.Report, bool) {
	if !s.started.CompareAndSwap(false, true) {
		s.logger.Info("duplicate full-document run suppressed", "session", s.id)
		return sequencer.Report{}, false
	}
	s.logger.Info("full-document generation starting",
		"session", s.id, "mode", s.cfg.Sequencer.Mode, "sections", len(s.st.List()))
	return s.seq.Run(ctx, s.st.List(), s), true
}

// generate runs one generation attempt for a section snapshot.
func (s *Session) generate(ctx context.Context, sec types.Section, divergence reconcile.DivergencePolicy) (sequencer.Outcome, error) {
	token := s.tokens.bump(sec.ID)
	runID := uuid.NewString()
	logger := s.logger.With("run", runID, "section", sec.ID)

	if divergence == reconcile.Overwrite {
		// Regeneration clears the section up front so the reveal starts
		// from a blank slate.
		s.st.Set(sec.ID, func(old types.Section) types.Section {
			if s.tokens.Current(sec.ID) != token {
				return old
			}
			old.Content = ""
			return old
		})
	}

	s.setRunState(sec.ID, types.RunRequesting)
	if str := s.currentStream(); str != nil {
		return s.generateOverStream(ctx, str, sec, logger)
	}
	if s.gw == nil {
		logger.Warn("no transport configured")
		s.st.Set(sec.ID, func(old types.Section) types.Section {
			if s.tokens.Current(sec.ID) != token {
				return old
			}
			if old.Content == "" {
				old.Content = gateway.FallbackText(old.Title)
			}
			return old
		})
		s.setRunState(sec.ID, types.RunFailed)
		return sequencer.OutcomeFallback, nil
	}

	s.setRequesting(sec.ID, token)
	res := s.gw.Generate(ctx, gateway.Request{
		SectionID:    sec.ID,
		SectionTitle: sec.Title,
		Context:      s.contextFor(sec.ID),
	})

	if res.Fallback {
		s.setRunState(sec.ID, types.RunFailed)
	} else {
		s.setRunState(sec.ID, types.RunStreaming)
	}
	if err := s.emitter.Reveal(ctx, sec.ID, res.Text, token, divergence); err != nil {
		return sequencer.OutcomeCancelled, err
	}

	if !res.Fallback && (len(res.Media) > 0 || res.Analysis != nil) {
		s.st.Set(sec.ID, func(old types.Section) types.Section {
			if s.tokens.Current(sec.ID) != token {
				return old
			}
			if len(res.Media) > 0 {
				old.Media = res.Media
			}
			if res.Analysis != nil {
				old.Analysis = res.Analysis
			}
			return old
		})
	}

	s.setRunState(sec.ID, types.RunComplete)
	if res.Fallback {
		return sequencer.OutcomeFallback, nil
	}
	logger.Debug("section generation complete")
	return sequencer.OutcomeComplete, nil
}

// generateOverStream sends the command on the push channel and waits for
// the stream session to settle the section.
func (s *Session) generateOverStream(ctx context.Context, str *stream.Session, sec types.Section, logger *slog.Logger) (sequencer.Outcome, error) {
	wait := s.addWaiter(sec.ID)
	err := str.RequestSection(types.GenerateCommand{
		SectionID:    sec.ID,
		SectionTitle: sec.Title,
		Context:      s.contextFor(sec.ID),
	})
	if err != nil {
		s.settle(sec.ID, stream.SettleDropped)
		logger.Warn("channel send failed, using fallback", "error", err)
		s.st.Set(sec.ID, func(old types.Section) types.Section {
			if old.Content == "" {
				old.Content = gateway.FallbackText(old.Title)
			}
			old.Streaming = false
			return old
		})
		s.setRunState(sec.ID, types.RunFailed)
		return sequencer.OutcomeFallback, nil
	}
	s.setRunState(sec.ID, types.RunStreaming)

	var reason stream.SettleReason
	select {
	case reason = <-wait:
	case <-ctx.Done():
		return sequencer.OutcomeCancelled, ctx.Err()
	case <-s.ctx.Done():
		return sequencer.OutcomeCancelled, s.ctx.Err()
	}
	switch reason {
	case stream.SettleCompleted:
		s.setRunState(sec.ID, types.RunComplete)
		logger.Debug("section settled over channel")
		return sequencer.OutcomeComplete, nil
	case stream.SettleStalled:
		// The watchdog wrote placeholder content before settling.
		s.setRunState(sec.ID, types.RunFailed)
		s.setRunState(sec.ID, types.RunComplete)
		return sequencer.OutcomeFallback, nil
	default:
		// Disconnected or cancelled; the section keeps whatever content
		// it already has.
		s.setRunState(sec.ID, types.RunComplete)
		return sequencer.OutcomeCancelled, nil
	}
}

// ConnectStream dials the configured push channel and starts its read
// loop. The channel is shared by all sections of this session.
func (s *Session) ConnectStream(ctx context.Context) error {
	str, err := stream.Dial(ctx, s.cfg.Stream, s.st, s.tokens, s.logger, s.settle)
	if err != nil {
		return err
	}
	s.streamMu.Lock()
	s.str = str
	s.streamMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		str.Run()
		s.streamMu.Lock()
		if s.str == str {
			s.str = nil
		}
		s.streamMu.Unlock()
	}()
	return nil
}

// Close tears the session down: the channel is closed, pending reveals are
// cancelled, and no section is left flagged as streaming.
func (s *Session) Close() error {
	s.cancel()
	var err error
	if str := s.currentStream(); str != nil {
		err = str.Close()
	}
	s.wg.Wait()

	for _, sec := range s.st.List() {
		if sec.Streaming {
			s.tokens.bump(sec.ID)
			id := sec.ID
			s.st.Set(id, func(old types.Section) types.Section {
				old.Streaming = false
				return old
			})
		}
	}
	s.releaseAllWaiters()
	return err
}

func (s *Session) currentStream() *stream.Session {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	return s.str
}

// setRequesting flags the section as busy before the backend call so a
// concurrent trigger skips it rather than double-starting.
func (s *Session) setRequesting(id string, token uint64) {
	s.st.Set(id, func(sec types.Section) types.Section {
		if s.tokens.Current(id) != token {
			return sec
		}
		sec.Streaming = true
		return sec
	})
}

// contextFor builds the context payload sent with a section's generation
// request: the document context plus the section's template description.
func (s *Session) contextFor(id string) string {
	s.ctxMu.Lock()
	defer s.ctxMu.Unlock()
	parts := make([]string, 0, 2)
	if s.docContext != "" {
		parts = append(parts, s.docContext)
	}
	if note := s.sectionNote[id]; note != "" {
		parts = append(parts, note)
	}
	return strings.Join(parts, "\n")
}

func (s *Session) addWaiter(id string) <-chan stream.SettleReason {
	ch := make(chan stream.SettleReason, 1)
	s.waitMu.Lock()
	if s.closed {
		close(ch)
	} else {
		s.waiters[id] = append(s.waiters[id], ch)
	}
	s.waitMu.Unlock()
	return ch
}

// settle releases everyone blocked on the section reaching a final state,
// telling them how it settled. A closed channel reads as SettleDropped.
func (s *Session) settle(id string, reason stream.SettleReason) {
	s.waitMu.Lock()
	chans := s.waiters[id]
	delete(s.waiters, id)
	s.waitMu.Unlock()
	for _, ch := range chans {
		ch <- reason
		close(ch)
	}
}

func (s *Session) releaseAllWaiters() {
	s.waitMu.Lock()
	all := s.waiters
	s.waiters = make(map[string][]chan stream.SettleReason)
	s.closed = true
	s.waitMu.Unlock()
	for _, chans := range all {
		for _, ch := range chans {
			close(ch)
		}
	}
}

// tokenRegistry issues monotonically increasing per-section generation
// tokens. A reveal captures the token it started with; any later bump for
// the same section silently invalidates it.
type tokenRegistry struct {
	mu sync.Mutex
	m  map[string]uint64
}

func newTokenRegistry() *tokenRegistry {
	return &tokenRegistry{m: make(map[string]uint64)}
}

// Current implements pacing.TokenSource.
func (r *tokenRegistry) Current(id string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.m[id]
}

func (r *tokenRegistry) bump(id string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[id]++
	return r.m[id]
}
