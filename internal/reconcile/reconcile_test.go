// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package reconcile

import "testing"

func TestResolve(t *testing.T) {
	tests := []struct {
		name       string
		divergence DivergencePolicy
		existing   string
		incoming   string
		userEdit   bool
		want       string
	}{
		{
			name:     "user edit always wins",
			existing: "Our mission is to",
			incoming: "Our mission",
			userEdit: true,
			want:     "Our mission",
		},
		{
			name:     "user edit may clear content",
			existing: "generated text",
			incoming: "",
			userEdit: true,
			want:     "",
		},
		{
			name:     "empty section adopts incoming",
			existing: "",
			incoming: "Hello.",
			want:     "Hello.",
		},
		{
			name:     "growth adopts incoming",
			existing: "Hel",
			incoming: "Hello.",
			want:     "Hello.",
		},
		{
			name:     "stale shorter write is dropped",
			existing: "Hello, world.",
			incoming: "Hello",
			want:     "Hello, world.",
		},
		{
			name:     "divergent write appends behind existing",
			existing: "My own notes",
			incoming: "Generated intro.",
			want:     "My own notes\n\nGenerated intro.",
		},
		{
			name:       "divergent write overwrites under overwrite policy",
			divergence: Overwrite,
			existing:   "My own notes",
			incoming:   "Generated intro.",
			want:       "Generated intro.",
		},
		{
			name:     "identical content is idempotent",
			existing: "Hello.",
			incoming: "Hello.",
			want:     "Hello.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Reconciler{Divergence: tt.divergence}
			got := r.Resolve(tt.existing, tt.incoming, tt.userEdit)
			if got != tt.want {
				t.Errorf("Resolve(%q, %q, %v) = %q, want %q",
					tt.existing, tt.incoming, tt.userEdit, got, tt.want)
			}
		})
	}
}

func TestResolveNeverShrinksAutomatedWrites(t *testing.T) {
	// Monotonic growth: an automated write must never produce shorter
	// content than the section already holds.
	r := Reconciler{}
	cases := [][2]string{
		{"Hello, world.", "Hello"},
		{"abc", "abc"},
		{"abc", "abcdef"},
		{"user text", "machine text"},
		{"", "anything"},
	}
	for _, c := range cases {
		got := r.Resolve(c[0], c[1], false)
		if len(got) < len(c[0]) {
			t.Errorf("Resolve(%q, %q, false) shrank content to %q", c[0], c[1], got)
		}
	}
}

func TestResumeOffset(t *testing.T) {
	tests := []struct {
		name     string
		existing string
		target   string
		want     int
		wantOK   bool
	}{
		{"empty section starts at zero", "", "Hello.", 0, true},
		{"prefix resumes after existing", "Hel", "Hello.", 3, true},
		{"full content resumes at end", "Hello.", "Hello.", 6, true},
		{"divergent content cannot resume", "Goodbye", "Hello.", 0, false},
		{"existing longer than target cannot resume", "Hello. And more.", "Hello.", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResumeOffset(tt.existing, tt.target)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ResumeOffset(%q, %q) = (%d, %v), want (%d, %v)",
					tt.existing, tt.target, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
