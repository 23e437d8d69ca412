package playerstate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/riftlobby/matchcore/internal/errs"
	"github.com/riftlobby/matchcore/internal/kv/kvtest"
	"github.com/riftlobby/matchcore/internal/model"
)

func TestGetDefaultsToAvailable(t *testing.T) {
	r := New(kvtest.New(), time.Hour)

	state, err := r.Get(context.Background(), "NewPlayer")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if state != model.Available {
		t.Fatalf("state = %s, want AVAILABLE", state)
	}
}

func TestSetWalksTheHappyPathLifecycle(t *testing.T) {
	r := New(kvtest.New(), time.Hour)
	ctx := context.Background()
	name := "Player1"

	path := []model.PlayerState{
		model.InQueue, model.InMatchFound, model.InDraft, model.InGame, model.Available,
	}
	for _, next := range path {
		if err := r.Set(ctx, name, next); err != nil {
			t.Fatalf("set %s: %v", next, err)
		}
		got, err := r.Get(ctx, name)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got != next {
			t.Fatalf("state = %s, want %s", got, next)
		}
	}
}

func TestSetRejectsIllegalTransition(t *testing.T) {
	r := New(kvtest.New(), time.Hour)
	ctx := context.Background()

	err := r.Set(ctx, "Player1", model.InDraft)
	if err == nil {
		t.Fatal("expected illegal transition from AVAILABLE to IN_DRAFT")
	}
	if errs.Of(err) != errs.IllegalTransition {
		t.Fatalf("error kind = %v, want IllegalTransition", errs.Of(err))
	}
	if !errors.Is(err, errs.ErrIllegalTransition) {
		t.Fatal("errors.Is should match the IllegalTransition sentinel")
	}
}

func TestSetRejectsQueueToDraftSkippingMatchFound(t *testing.T) {
	r := New(kvtest.New(), time.Hour)
	ctx := context.Background()
	if err := r.Set(ctx, "Player1", model.InQueue); err != nil {
		t.Fatalf("set in_queue: %v", err)
	}
	if err := r.Set(ctx, "Player1", model.InDraft); errs.Of(err) != errs.IllegalTransition {
		t.Fatalf("expected IllegalTransition, got %v", err)
	}
}

func TestForceSetBypassesTheGraph(t *testing.T) {
	r := New(kvtest.New(), time.Hour)
	ctx := context.Background()

	if err := r.ForceSet(ctx, "Player1", model.InGame); err != nil {
		t.Fatalf("force-set: %v", err)
	}
	got, err := r.Get(ctx, "Player1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != model.InGame {
		t.Fatalf("state = %s, want IN_GAME", got)
	}
}

func TestNameFromKeyRoundTrips(t *testing.T) {
	name := "SomePlayer"
	k := key(name)
	if got := NameFromKey(k); got != model.NormalizeName(name) {
		t.Fatalf("NameFromKey(%s) = %s, want %s", k, got, model.NormalizeName(name))
	}
}
