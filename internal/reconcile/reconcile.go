// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package reconcile decides, for every automated content write, whether the
// incoming text may replace what a section already holds. User edits always
// win; automated writes only ever grow a section or queue behind what the
// user typed.
package reconcile

import "strings"

// DivergencePolicy selects what happens when an automated write and the
// existing content disagree (the existing text is not a prefix of the
// incoming text).
type DivergencePolicy string

const (
	// Append queues the incoming text behind the existing content instead
	// of overwriting it. Default.
	Append DivergencePolicy = "append"

	// Overwrite replaces the existing content. Used by the explicit
	// "regenerate" action, which is always allowed to clobber.
	Overwrite DivergencePolicy = "overwrite"
)

// Reconciler resolves conflicts between automated writes and human edits.
// The zero value uses the Append divergence policy.
type Reconciler struct {
	Divergence DivergencePolicy
}

// Resolve returns the content a section should hold after a write of
// incoming over existing. isUserEdit marks writes originating from a human
// keystroke, which are applied verbatim.
func (r Reconciler) Resolve(existing, incoming string, isUserEdit bool) string {
	if isUserEdit {
		return incoming
	}
	if existing == "" {
		return incoming
	}
	if strings.HasPrefix(incoming, existing) {
		// Pure growth: the incoming text extends what is already there.
		return incoming
	}
	if strings.HasPrefix(existing, incoming) {
		// Stale automated write, shorter than what a later write or a user
		// edit already committed. Dropping it preserves monotonic growth.
		return existing
	}
	if r.Divergence == Overwrite {
		return incoming
	}
	return existing + divergenceSeparator + incoming
}

// divergenceSeparator visually separates user text from generated text
// queued behind it.
const divergenceSeparator = "\n\n"

// ResumeOffset returns the offset into target at which a paced reveal
// should begin, given the section's existing content. ok is false when the
// existing content is not a prefix of target; the caller then applies its
// divergence policy instead of resuming.
func ResumeOffset(existing, target string) (offset int, ok bool) {
	if existing == "" {
		return 0, true
	}
	if strings.HasPrefix(target, existing) {
		return len(existing), true
	}
	return 0, false
}
