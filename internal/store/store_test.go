// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"fmt"
	"sync"
	"testing"

	"github.com/pdiddy/proposal-engine/pkg/types"
)

func twoSections() []types.Section {
	return []types.Section{
		{ID: "exec", Title: "Executive Summary", Required: true},
		{ID: "budget", Title: "Budget", WordLimit: 300},
	}
}

func TestReplaceAllAndList(t *testing.T) {
	s := New()
	s.ReplaceAll(twoSections())

	list := s.List()
	if len(list) != 2 {
		t.Fatalf("len(List()) = %d, want 2", len(list))
	}
	if list[0].ID != "exec" || list[1].ID != "budget" {
		t.Errorf("order = %q, %q; want exec, budget", list[0].ID, list[1].ID)
	}

	sec, ok := s.Get("budget")
	if !ok {
		t.Fatal("Get(budget) not found")
	}
	if sec.WordLimit != 300 {
		t.Errorf("WordLimit = %d, want 300", sec.WordLimit)
	}
}

func TestReplaceAllDropsDuplicateIDs(t *testing.T) {
	s := New()
	s.ReplaceAll([]types.Section{
		{ID: "exec", Title: "First"},
		{ID: "exec", Title: "Second"},
	})
	if got := len(s.List()); got != 1 {
		t.Fatalf("len(List()) = %d, want 1", got)
	}
	sec, _ := s.Get("exec")
	if sec.Title != "First" {
		t.Errorf("Title = %q, want First", sec.Title)
	}
}

func TestSetAppliesUpdaterToLatestSnapshot(t *testing.T) {
	s := New()
	s.ReplaceAll(twoSections())

	s.Set("exec", func(sec types.Section) types.Section {
		sec.Content = "Hello"
		sec.Streaming = true
		return sec
	})
	s.Set("exec", func(sec types.Section) types.Section {
		sec.Content += ", world."
		return sec
	})

	sec, _ := s.Get("exec")
	if sec.Content != "Hello, world." {
		t.Errorf("Content = %q, want %q", sec.Content, "Hello, world.")
	}
	if !sec.Streaming {
		t.Error("Streaming = false, want true")
	}
}

func TestSetUnknownIDIsNoOp(t *testing.T) {
	s := New()
	s.ReplaceAll(twoSections())

	called := false
	s.Set("missing", func(sec types.Section) types.Section {
		called = true
		return sec
	})
	if called {
		t.Error("updater ran for unknown id")
	}
	if got := len(s.List()); got != 2 {
		t.Errorf("len(List()) = %d, want 2", got)
	}
}

func TestSetCannotChangeID(t *testing.T) {
	s := New()
	s.ReplaceAll(twoSections())

	s.Set("exec", func(sec types.Section) types.Section {
		sec.ID = "hijacked"
		return sec
	})
	if _, ok := s.Get("exec"); !ok {
		t.Error("exec disappeared after updater changed ID")
	}
	if _, ok := s.Get("hijacked"); ok {
		t.Error("updater was able to rename a section")
	}
}

func TestRemove(t *testing.T) {
	s := New()
	s.ReplaceAll(twoSections())
	s.Remove("exec")

	if _, ok := s.Get("exec"); ok {
		t.Error("exec still present after Remove")
	}
	list := s.List()
	if len(list) != 1 || list[0].ID != "budget" {
		t.Errorf("List() = %v, want only budget", list)
	}

	s.Remove("exec") // idempotent
}

func TestSubscribeNotifiesAndCancels(t *testing.T) {
	s := New()
	var notified int
	cancel := s.Subscribe(func(snapshot []types.Section) {
		notified++
	})

	s.ReplaceAll(twoSections())
	s.Set("exec", func(sec types.Section) types.Section {
		sec.Content = "x"
		return sec
	})
	if notified != 2 {
		t.Errorf("notified = %d, want 2", notified)
	}

	cancel()
	s.Set("exec", func(sec types.Section) types.Section { return sec })
	if notified != 2 {
		t.Errorf("notified after cancel = %d, want 2", notified)
	}
}

func TestConcurrentSetsDoNotLoseWrites(t *testing.T) {
	s := New()
	s.ReplaceAll([]types.Section{{ID: "exec"}})

	const writers = 8
	const perWriter = 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				s.Set("exec", func(sec types.Section) types.Section {
					sec.Content += "."
					return sec
				})
			}
		}()
	}
	wg.Wait()

	sec, _ := s.Get("exec")
	if got, want := len(sec.Content), writers*perWriter; got != want {
		t.Errorf("len(Content) = %d, want %d", got, want)
	}
}

func TestListReturnsCopies(t *testing.T) {
	s := New()
	s.ReplaceAll(twoSections())

	list := s.List()
	list[0].Content = "mutated"
	sec, _ := s.Get(list[0].ID)
	if sec.Content == "mutated" {
		t.Error("List() exposed internal state")
	}
}

func TestSubscribersSeeSnapshotsInMutationOrder(t *testing.T) {
	s := New()
	s.ReplaceAll([]types.Section{{ID: "exec", Title: "Executive Summary"}})

	// Delivery is serialized, so the callback needs no locking of its own.
	var lengths []int
	s.Subscribe(func(sections []types.Section) {
		lengths = append(lengths, len(sections[0].Content))
	})

	const writers, perWriter = 4, 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				s.Set("exec", func(sec types.Section) types.Section {
					sec.Content += "x"
					return sec
				})
			}
		}()
	}
	wg.Wait()

	for i := 1; i < len(lengths); i++ {
		if lengths[i] < lengths[i-1] {
			t.Fatalf("snapshot %d out of order: content length %d after %d", i, lengths[i], lengths[i-1])
		}
	}
}

func ExampleStore_Set() {
	s := New()
	s.ReplaceAll([]types.Section{{ID: "exec", Title: "Executive Summary"}})
	s.Set("exec", func(sec types.Section) types.Section {
		sec.Content = "We propose..."
		return sec
	})
	sec, _ := s.Get("exec")
	fmt.Println(sec.Content)
	// Output: We propose...
}
