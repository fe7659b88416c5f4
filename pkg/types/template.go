// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// TemplateSection describes one section in a document template.
type TemplateSection struct {
	// ID is the stable section identifier.
	ID string `json:"id" yaml:"id"`

	// Title is the section heading.
	Title string `json:"title" yaml:"title"`

	// Description explains what the section should cover. Sent to the
	// backend as part of the generation context.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Required marks sections the document cannot omit.
	Required bool `json:"required" yaml:"required"`

	// WordLimit caps the section length. Zero means unlimited.
	WordLimit int `json:"word_limit,omitempty" yaml:"word_limit,omitempty"`
}

// Template holds a document's section plan from a template YAML file.
type Template struct {
	// Name identifies the template (e.g. "grant-proposal").
	Name string `json:"name" yaml:"name"`

	// Context is document-level context sent with every generation request.
	Context string `json:"context,omitempty" yaml:"context,omitempty"`

	// Sections lists the document's sections in order.
	Sections []TemplateSection `json:"sections" yaml:"sections"`
}
