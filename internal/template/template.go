// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package template loads document templates: the YAML section plans a
// document session is initialized from.
package template

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/proposal-engine/pkg/types"
)

// Load reads and validates a template YAML file.
func Load(path string) (*types.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading template: %w", err)
	}
	var tpl types.Template
	if err := yaml.Unmarshal(data, &tpl); err != nil {
		return nil, fmt.Errorf("parsing template: %w", err)
	}
	if err := Validate(&tpl); err != nil {
		return nil, fmt.Errorf("invalid template %s: %w", path, err)
	}
	return &tpl, nil
}

// Validate checks a template's section plan: at least one section, and
// every section with a unique non-empty id and a title.
func Validate(tpl *types.Template) error {
	if len(tpl.Sections) == 0 {
		return fmt.Errorf("template has no sections")
	}
	seen := make(map[string]bool, len(tpl.Sections))
	for i, sec := range tpl.Sections {
		if sec.ID == "" {
			return fmt.Errorf("section %d has no id", i)
		}
		if sec.Title == "" {
			return fmt.Errorf("section %q has no title", sec.ID)
		}
		if seen[sec.ID] {
			return fmt.Errorf("duplicate section id %q", sec.ID)
		}
		if sec.WordLimit < 0 {
			return fmt.Errorf("section %q has negative word limit", sec.ID)
		}
		seen[sec.ID] = true
	}
	return nil
}

// Sections expands a template's plan into the initial section list for a
// document session. Content starts empty.
func Sections(tpl *types.Template) []types.Section {
	out := make([]types.Section, len(tpl.Sections))
	for i, sec := range tpl.Sections {
		out[i] = types.Section{
			ID:        sec.ID,
			Title:     sec.Title,
			Required:  sec.Required,
			WordLimit: sec.WordLimit,
		}
	}
	return out
}
