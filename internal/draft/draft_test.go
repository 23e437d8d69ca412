package draft

import (
	"context"
	"testing"
	"time"

	"github.com/riftlobby/matchcore/internal/adapters/adapterstest"
	"github.com/riftlobby/matchcore/internal/errs"
	"github.com/riftlobby/matchcore/internal/kv/kvtest"
	"github.com/riftlobby/matchcore/internal/model"
)

func seedMatch(t *testing.T, sql *adapterstest.SqlStore) model.Match {
	t.Helper()
	team1 := []model.RosterSlot{{SummonerName: "A"}, {SummonerName: "B"}, {SummonerName: "C"}, {SummonerName: "D"}, {SummonerName: "E"}}
	team2 := []model.RosterSlot{{SummonerName: "F"}, {SummonerName: "G"}, {SummonerName: "H"}, {SummonerName: "I"}, {SummonerName: "J"}}
	match := model.Match{
		ID:     "match-1",
		Status: model.MatchDraft,
		Team1:  team1,
		Team2:  team2,
	}
	match.PickBanData = model.NewDraftState(match.ID, rosterNames(team1), rosterNames(team2))
	if err := sql.CreateMatch(context.Background(), match); err != nil {
		t.Fatalf("seed match: %v", err)
	}
	return match
}

func newTestEngine() (*Engine, *adapterstest.SqlStore) {
	sql := adapterstest.New()
	e := New(Config{
		Locker:        kvtest.NewLocker(),
		SQL:           sql,
		ActionTimeout: 30 * time.Second,
	})
	return e, sql
}

func TestProcessActionRejectsOutOfTurnIndex(t *testing.T) {
	e, sql := newTestEngine()
	seedMatch(t, sql)
	ctx := context.Background()

	err := e.ProcessAction(ctx, "match-1", 5, "Annie", "A")
	if errs.Of(err) != errs.OutOfTurn {
		t.Fatalf("err = %v, want OutOfTurn", err)
	}
}

func TestProcessActionRejectsWrongTeam(t *testing.T) {
	e, sql := newTestEngine()
	seedMatch(t, sql)
	ctx := context.Background()

	// Action 0 is a ban by team 1; "F" is on team 2.
	err := e.ProcessAction(ctx, "match-1", 0, "Annie", "F")
	if errs.Of(err) != errs.WrongTeam {
		t.Fatalf("err = %v, want WrongTeam", err)
	}
}

func TestProcessActionRejectsDuplicateChampion(t *testing.T) {
	e, sql := newTestEngine()
	seedMatch(t, sql)
	ctx := context.Background()

	if err := e.ProcessAction(ctx, "match-1", 0, "Annie", "A"); err != nil {
		t.Fatalf("first action: %v", err)
	}
	// Action 1 is a ban by team 2; "F" is on team 2.
	err := e.ProcessAction(ctx, "match-1", 1, "Annie", "F")
	if errs.Of(err) != errs.ChampionUsed {
		t.Fatalf("err = %v, want ChampionUsed", err)
	}
}

func TestProcessActionAdvancesCurrentIndex(t *testing.T) {
	e, sql := newTestEngine()
	seedMatch(t, sql)
	ctx := context.Background()

	if err := e.ProcessAction(ctx, "match-1", 0, "Annie", "A"); err != nil {
		t.Fatalf("process: %v", err)
	}
	match, _, _ := sql.GetMatch(ctx, "match-1")
	if match.PickBanData.CurrentIndex != 1 {
		t.Fatalf("currentIndex = %d, want 1", match.PickBanData.CurrentIndex)
	}
}

func TestSkippedChampionsDoNotCollideWithEachOther(t *testing.T) {
	e, sql := newTestEngine()
	seedMatch(t, sql)
	ctx := context.Background()

	if err := e.ProcessAction(ctx, "match-1", 0, model.SkippedChampion, model.SystemTimeoutPlayer); err != nil {
		t.Fatalf("skip action 0: %v", err)
	}
	if err := e.ProcessAction(ctx, "match-1", 1, model.SkippedChampion, model.SystemTimeoutPlayer); err != nil {
		t.Fatalf("skip action 1 should not collide with the prior SKIPPED entry: %v", err)
	}
}

func TestTickTimeoutsSkipsStaleAction(t *testing.T) {
	e, sql := newTestEngine()
	match := seedMatch(t, sql)
	ctx := context.Background()

	match.PickBanData.LastActionStart = time.Now().Add(-time.Hour)
	if err := sql.UpdateMatch(ctx, match); err != nil {
		t.Fatalf("seed stale timestamp: %v", err)
	}

	if err := e.tickOne(ctx, match); err != nil {
		t.Fatalf("tick: %v", err)
	}
	updated, _, _ := sql.GetMatch(ctx, "match-1")
	if updated.PickBanData.Actions[0].ChampionID != model.SkippedChampion {
		t.Fatalf("action 0 championId = %q, want SKIPPED", updated.PickBanData.Actions[0].ChampionID)
	}
}

func TestConfirmRequiresDraftComplete(t *testing.T) {
	e, sql := newTestEngine()
	seedMatch(t, sql)
	ctx := context.Background()

	err := e.Confirm(ctx, "match-1", "A")
	if errs.Of(err) != errs.NotInPhase {
		t.Fatalf("err = %v, want NotInPhase", err)
	}
}

func TestConfirmAdvancesOnlyAfterAllTenConfirm(t *testing.T) {
	e, sql := newTestEngine()
	match := seedMatch(t, sql)
	ctx := context.Background()

	match.PickBanData.CurrentIndex = model.TotalActions
	gameStarted := false
	e.onGameStart = func(ctx context.Context, m model.Match) error {
		gameStarted = true
		return nil
	}
	if err := sql.UpdateMatch(ctx, match); err != nil {
		t.Fatalf("mark complete: %v", err)
	}

	roster := match.Roster()
	for i, name := range roster {
		if err := e.Confirm(ctx, "match-1", name); err != nil {
			t.Fatalf("confirm %s: %v", name, err)
		}
		if i < len(roster)-1 && gameStarted {
			t.Fatalf("game should not start before all ten confirm (at %d/%d)", i+1, len(roster))
		}
	}
	if !gameStarted {
		t.Fatal("expected game to start after all ten confirmations")
	}
}
