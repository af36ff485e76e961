package store_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/MrWong99/kioskvoice/internal/store"
)

func TestMemory_RecentOldestFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := store.NewMemory(10)
	for i := range 4 {
		sid := "a"
		if i%2 == 1 {
			sid = "b"
		}
		if err := m.Append(ctx, store.Turn{SessionID: sid, User: fmt.Sprintf("u%d", i)}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := m.Recent(ctx, "a", 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 || got[0].User != "u0" || got[1].User != "u2" {
		t.Errorf("Recent(a) = %+v, want u0, u2", got)
	}
	if got[0].At.IsZero() {
		t.Error("Append did not stamp At")
	}

	all, _ := m.Recent(ctx, "", 3)
	if len(all) != 3 || all[0].User != "u1" || all[2].User != "u3" {
		t.Errorf("Recent(all, 3) = %+v, want u1..u3", all)
	}
}

func TestMemory_EvictsOldest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := store.NewMemory(3)
	for i := range 5 {
		_ = m.Append(ctx, store.Turn{User: fmt.Sprintf("u%d", i)})
	}
	got, _ := m.Recent(ctx, "", 0)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, want := range []string{"u2", "u3", "u4"} {
		if got[i].User != want {
			t.Errorf("turn %d = %q, want %q", i, got[i].User, want)
		}
	}
}
