// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package gateway

import "fmt"

// FallbackText returns the deterministic placeholder written into a section
// when generation fails. It is parameterized only by the section title,
// contains no error details, and reads as an organization-agnostic draft
// stub so the document stays visually complete while signalling that the
// section still needs attention.
func FallbackText(sectionTitle string) string {
	return fmt.Sprintf(
		"[%s]\n\nThis section could not be generated automatically. "+
			"Replace this placeholder with your own text for %q, or use "+
			"Regenerate to try again.",
		sectionTitle, sectionTitle)
}
