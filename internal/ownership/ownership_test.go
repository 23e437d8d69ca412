package ownership

import (
	"context"
	"testing"

	"github.com/riftlobby/matchcore/internal/errs"
	"github.com/riftlobby/matchcore/internal/kv/kvtest"
)

func TestRegisterPlayerMatchClaimsOwnership(t *testing.T) {
	r := New(kvtest.New())
	ctx := context.Background()

	if err := r.RegisterPlayerMatch(ctx, "Player1", "match-1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	got, ok, err := r.GetMatchFor(ctx, "Player1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok || got != "match-1" {
		t.Fatalf("match = %q, ok=%v, want match-1", got, ok)
	}
}

func TestRegisterPlayerMatchRejectsConflict(t *testing.T) {
	r := New(kvtest.New())
	ctx := context.Background()

	if err := r.RegisterPlayerMatch(ctx, "Player1", "match-1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	err := r.RegisterPlayerMatch(ctx, "Player1", "match-2")
	if errs.Of(err) != errs.AlreadyOwned {
		t.Fatalf("err = %v, want AlreadyOwned", err)
	}
}

func TestRegisterPlayerMatchIsIdempotentForSameMatch(t *testing.T) {
	r := New(kvtest.New())
	ctx := context.Background()

	if err := r.RegisterPlayerMatch(ctx, "Player1", "match-1"); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.RegisterPlayerMatch(ctx, "Player1", "match-1"); err != nil {
		t.Fatalf("second register should be a no-op success: %v", err)
	}
}

func TestRegisterRosterRollsBackOnConflict(t *testing.T) {
	r := New(kvtest.New())
	ctx := context.Background()

	if err := r.RegisterPlayerMatch(ctx, "Player5", "other-match"); err != nil {
		t.Fatalf("seed conflict: %v", err)
	}

	roster := []string{"Player1", "Player2", "Player3", "Player4", "Player5"}
	err := r.RegisterRoster(ctx, roster, "match-1")
	if errs.Of(err) != errs.AlreadyOwned {
		t.Fatalf("err = %v, want AlreadyOwned", err)
	}

	for _, p := range roster[:4] {
		if _, ok, _ := r.GetMatchFor(ctx, p); ok {
			t.Fatalf("%s should have been rolled back", p)
		}
	}
	got, ok, _ := r.GetMatchFor(ctx, "Player5")
	if !ok || got != "other-match" {
		t.Fatalf("Player5 ownership should remain untouched by the failed roster, got %q", got)
	}
}

func TestClearMatchPlayersOnlyRemovesOwnMatch(t *testing.T) {
	store := kvtest.New()
	r := New(store)
	ctx := context.Background()

	roster := []string{"Player1", "Player2"}
	if err := r.RegisterRoster(ctx, roster, "match-1"); err != nil {
		t.Fatalf("register roster: %v", err)
	}
	// Player2 has since moved on to a newer match; clearing match-1 must
	// not clobber that newer ownership.
	if err := store.Set(ctx, playerKey("Player2"), "match-2", 0); err != nil {
		t.Fatalf("move Player2 to match-2: %v", err)
	}

	if err := r.ClearMatchPlayers(ctx, "match-1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := r.GetMatchFor(ctx, "Player1"); ok {
		t.Fatal("Player1 ownership should be cleared")
	}
	got, ok, _ := r.GetMatchFor(ctx, "Player2")
	if !ok || got != "match-2" {
		t.Fatalf("Player2 ownership = %q, ok=%v, want match-2 left in place", got, ok)
	}
}
