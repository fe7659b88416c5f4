// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "fmt"

// MessageKind discriminates the backend push-channel message variants.
type MessageKind string

const (
	KindStarted  MessageKind = "started"
	KindChunk    MessageKind = "chunk"
	KindComplete MessageKind = "complete"
	KindAnalysis MessageKind = "analysis"
)

// BackendMessage is one frame on the generation backend's push channel.
// The channel carries messages for all sections of a document interleaved;
// SectionID routes each frame to its section.
type BackendMessage struct {
	// Kind selects the variant: started, chunk, complete, analysis.
	Kind MessageKind `json:"kind"`

	// SectionID identifies the section this frame belongs to.
	SectionID string `json:"section_id"`

	// Text is the chunk payload for Kind=chunk and the final full text
	// for Kind=complete. Empty otherwise.
	Text string `json:"text,omitempty"`

	// Media lists artifacts delivered with Kind=complete.
	Media []MediaElement `json:"media,omitempty"`

	// Analysis carries quality metrics for Kind=complete or Kind=analysis.
	Analysis *Analysis `json:"analysis,omitempty"`
}

// Validate checks a decoded frame before dispatch. Frames from the backend
// are untrusted; anything that fails validation is dropped at the channel
// boundary.
func (m BackendMessage) Validate() error {
	switch m.Kind {
	case KindStarted, KindChunk, KindComplete, KindAnalysis:
	default:
		return fmt.Errorf("unknown message kind %q", m.Kind)
	}
	if m.SectionID == "" {
		return fmt.Errorf("%s message missing section_id", m.Kind)
	}
	if m.Kind == KindAnalysis && m.Analysis == nil {
		return fmt.Errorf("analysis message for %s missing payload", m.SectionID)
	}
	return nil
}

// GenerateCommand is the frame the engine sends on the push channel to
// request generation of one section.
type GenerateCommand struct {
	// Action is always "write".
	Action string `json:"action"`

	// SectionID identifies the section to generate.
	SectionID string `json:"section_id"`

	// SectionTitle is the section's display name, used for prompting.
	SectionTitle string `json:"section_title"`

	// Context is the document-level context payload.
	Context string `json:"context,omitempty"`
}
