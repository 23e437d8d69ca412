package gamemonitor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/riftlobby/matchcore/internal/adapters/adapterstest"
	"github.com/riftlobby/matchcore/internal/errs"
	"github.com/riftlobby/matchcore/internal/kv/kvtest"
	"github.com/riftlobby/matchcore/internal/model"
	"github.com/riftlobby/matchcore/internal/ownership"
	"github.com/riftlobby/matchcore/internal/playerstate"
)

func seedInGameMatch(t *testing.T, sql *adapterstest.SqlStore, players *playerstate.Registry, own *ownership.Registry) model.Match {
	t.Helper()
	ctx := context.Background()
	team1 := []model.RosterSlot{{SummonerName: "A"}, {SummonerName: "B"}, {SummonerName: "C"}, {SummonerName: "D"}, {SummonerName: "E"}}
	team2 := []model.RosterSlot{{SummonerName: "F"}, {SummonerName: "G"}, {SummonerName: "H"}, {SummonerName: "I"}, {SummonerName: "J"}}
	match := model.Match{
		ID:              "match-1",
		Status:          model.MatchInGame,
		Team1:           team1,
		Team2:           team2,
		AverageMmrTeam1: 1000,
		AverageMmrTeam2: 1000,
	}
	if err := sql.CreateMatch(ctx, match); err != nil {
		t.Fatalf("seed match: %v", err)
	}
	roster := match.Roster()
	if err := own.RegisterRoster(ctx, roster, match.ID); err != nil {
		t.Fatalf("register roster: %v", err)
	}
	for _, name := range roster {
		if err := players.ForceSet(ctx, name, model.InGame); err != nil {
			t.Fatalf("force-set %s: %v", name, err)
		}
	}
	return match
}

func newTestEngine(timeout time.Duration) (*Engine, *adapterstest.SqlStore, *playerstate.Registry, *ownership.Registry) {
	store := kvtest.New()
	sql := adapterstest.New()
	players := playerstate.New(store, time.Hour)
	own := ownership.New(store)
	e := New(Config{
		Locker:    kvtest.NewLocker(),
		KV:        store,
		SQL:       sql,
		Players:   players,
		Ownership: own,
		Timeout:   timeout,
	})
	return e, sql, players, own
}

func TestFinishAppliesZeroSumLPDeltas(t *testing.T) {
	e, sql, players, own := newTestEngine(time.Hour)
	match := seedInGameMatch(t, sql, players, own)
	ctx := context.Background()

	if err := e.Finish(ctx, "match-1", 1, "declared"); err != nil {
		t.Fatalf("finish: %v", err)
	}

	sum := 0
	for _, name := range match.Roster() {
		p, ok, err := sql.GetPlayer(ctx, name)
		if err != nil {
			t.Fatalf("get player %s: %v", name, err)
		}
		if ok {
			sum += p.CustomLp
		}
	}
	if sum != 0 {
		t.Fatalf("sum of LP deltas = %d, want 0 (team-pair conservation)", sum)
	}
}

func TestFinishDeletesTheMatchRow(t *testing.T) {
	e, sql, players, own := newTestEngine(time.Hour)
	seedInGameMatch(t, sql, players, own)
	ctx := context.Background()

	if err := e.Finish(ctx, "match-1", 1, "declared"); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if _, ok, _ := sql.GetMatch(ctx, "match-1"); ok {
		t.Fatal("match row should be deleted after finish")
	}
}

func TestFinishResetsRosterToAvailable(t *testing.T) {
	e, sql, players, own := newTestEngine(time.Hour)
	match := seedInGameMatch(t, sql, players, own)
	ctx := context.Background()

	if err := e.Finish(ctx, "match-1", 2, "declared"); err != nil {
		t.Fatalf("finish: %v", err)
	}
	for _, name := range match.Roster() {
		state, err := players.Get(ctx, name)
		if err != nil {
			t.Fatalf("get state %s: %v", name, err)
		}
		if state != model.Available {
			t.Fatalf("%s state = %s, want AVAILABLE", name, state)
		}
	}
}

func TestFinishIsRejectedOnceAlreadyCompleted(t *testing.T) {
	e, sql, players, own := newTestEngine(time.Hour)
	seedInGameMatch(t, sql, players, own)
	ctx := context.Background()

	if err := e.Finish(ctx, "match-1", 1, "declared"); err != nil {
		t.Fatalf("first finish: %v", err)
	}
	// The row is gone, so a second Finish call must report UnknownMatch
	// rather than silently recomputing LP a second time.
	err := e.Finish(ctx, "match-1", 1, "declared")
	if errs.Of(err) != errs.UnknownMatch {
		t.Fatalf("err = %v, want UnknownMatch", err)
	}
}

func TestFinishRejectsMatchNotInGame(t *testing.T) {
	e, sql, players, own := newTestEngine(time.Hour)
	match := seedInGameMatch(t, sql, players, own)
	ctx := context.Background()

	match.Status = model.MatchDraft
	if err := sql.UpdateMatch(ctx, match); err != nil {
		t.Fatalf("set draft status: %v", err)
	}
	err := e.Finish(ctx, "match-1", 1, "declared")
	if errs.Of(err) != errs.NotInPhase {
		t.Fatalf("err = %v, want NotInPhase", err)
	}
}

func TestTickExpiryCancelsStaleGameWithTimeoutReason(t *testing.T) {
	e, sql, players, own := newTestEngine(time.Hour)
	match := seedInGameMatch(t, sql, players, own)
	ctx := context.Background()

	staleStart := time.Now().Add(-2 * time.Hour).UnixMilli()
	if err := e.kvStore.HashPutAll(ctx, activeGamesKey, map[string]string{
		match.ID: fmt.Sprintf("%d", staleStart),
	}); err != nil {
		t.Fatalf("seed active game: %v", err)
	}

	if err := e.TickExpiry(ctx); err != nil {
		t.Fatalf("tick expiry: %v", err)
	}
	if _, ok, _ := sql.GetMatch(ctx, "match-1"); ok {
		t.Fatal("expired match should have been finished and deleted")
	}
}

func TestTickExpiryLeavesFreshGamesAlone(t *testing.T) {
	e, sql, players, own := newTestEngine(time.Hour)
	match := seedInGameMatch(t, sql, players, own)
	ctx := context.Background()

	if err := e.kvStore.HashPutAll(ctx, activeGamesKey, map[string]string{
		match.ID: fmt.Sprintf("%d", time.Now().UnixMilli()),
	}); err != nil {
		t.Fatalf("seed active game: %v", err)
	}

	if err := e.TickExpiry(ctx); err != nil {
		t.Fatalf("tick expiry: %v", err)
	}
	if _, ok, _ := sql.GetMatch(ctx, "match-1"); !ok {
		t.Fatal("a fresh game should not be cancelled")
	}
}

func TestVoteWinnerFinishesOnceSixBallotsAgree(t *testing.T) {
	e, sql, players, own := newTestEngine(time.Hour)
	match := seedInGameMatch(t, sql, players, own)
	ctx := context.Background()

	voters := match.Roster()[:5]
	for _, name := range voters {
		if err := e.VoteWinner(ctx, "match-1", name, 1); err != nil {
			t.Fatalf("vote by %s: %v", name, err)
		}
	}
	if _, ok, _ := sql.GetMatch(ctx, "match-1"); !ok {
		t.Fatal("match should still be in progress at 5 votes")
	}

	if err := e.VoteWinner(ctx, "match-1", match.Roster()[5], 1); err != nil {
		t.Fatalf("sixth vote: %v", err)
	}
	if _, ok, _ := sql.GetMatch(ctx, "match-1"); ok {
		t.Fatal("match should be finished once six ballots agree")
	}
}

func TestSpectatorActionRejectsNonRosterActor(t *testing.T) {
	e, sql, players, own := newTestEngine(time.Hour)
	seedInGameMatch(t, sql, players, own)
	ctx := context.Background()

	err := e.SpectatorAction(ctx, "match-1", "Outsider", "mute", "A")
	if errs.Of(err) != errs.AlreadyOwned {
		t.Fatalf("err = %v, want AlreadyOwned", err)
	}
}

func TestSpectatorActionRejectsUnknownAction(t *testing.T) {
	e, sql, players, own := newTestEngine(time.Hour)
	seedInGameMatch(t, sql, players, own)
	ctx := context.Background()

	err := e.SpectatorAction(ctx, "match-1", "A", "kick", "B")
	if errs.Of(err) != errs.IllegalTransition {
		t.Fatalf("err = %v, want IllegalTransition", err)
	}
}

func TestSpectatorActionAllowsRosterMember(t *testing.T) {
	e, sql, players, own := newTestEngine(time.Hour)
	seedInGameMatch(t, sql, players, own)
	ctx := context.Background()

	if err := e.SpectatorAction(ctx, "match-1", "A", "mute", "B"); err != nil {
		t.Fatalf("spectator action: %v", err)
	}
}
