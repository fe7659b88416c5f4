// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Section is one titled, independently generated or edited block of a
// proposal document. The section id is stable and unique within a document.
type Section struct {
	// ID is the stable section identifier (e.g. "exec-summary").
	ID string `json:"id" yaml:"id"`

	// Title is the section's display name.
	Title string `json:"title" yaml:"title"`

	// Content is the section's current text. Mutated by the streaming
	// pipeline and by direct user edits.
	Content string `json:"content" yaml:"content"`

	// Required marks sections the document cannot omit.
	Required bool `json:"required" yaml:"required"`

	// WordLimit caps the section length. Zero means unlimited.
	WordLimit int `json:"word_limit,omitempty" yaml:"word_limit,omitempty"`

	// Streaming is true while an automated write is in progress for
	// this section.
	Streaming bool `json:"streaming" yaml:"streaming"`

	// Media lists auxiliary visual artifacts attached after the section's
	// text completes.
	Media []MediaElement `json:"media,omitempty" yaml:"media,omitempty"`

	// Analysis is an optional quality-metric snapshot produced after
	// generation.
	Analysis *Analysis `json:"analysis,omitempty" yaml:"analysis,omitempty"`
}

// MediaElement describes one visual artifact attached to a section.
type MediaElement struct {
	// Kind classifies the artifact: image, chart, table.
	Kind string `json:"kind" yaml:"kind"`

	// URL locates the artifact.
	URL string `json:"url" yaml:"url"`

	// Caption is optional display text.
	Caption string `json:"caption,omitempty" yaml:"caption,omitempty"`
}

// Analysis holds quality metrics reported by the generation backend for a
// completed section.
type Analysis struct {
	// ReadabilityScore is the backend's readability estimate (0-100).
	ReadabilityScore float64 `json:"readability_score" yaml:"readability_score"`

	// WordCount is the generated text's word count as reported by the backend.
	WordCount int `json:"word_count" yaml:"word_count"`

	// Notes carries free-form reviewer guidance.
	Notes string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// RunState tracks a section's progress through one generation run.
type RunState string

const (
	RunPending    RunState = "pending"
	RunRequesting RunState = "requesting"
	RunStreaming  RunState = "streaming"
	RunComplete   RunState = "complete"
	RunFailed     RunState = "failed"
)
