package acceptance

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/riftlobby/matchcore/internal/adapters/adapterstest"
	"github.com/riftlobby/matchcore/internal/errs"
	"github.com/riftlobby/matchcore/internal/kv"
	"github.com/riftlobby/matchcore/internal/kv/kvtest"
	"github.com/riftlobby/matchcore/internal/model"
	"github.com/riftlobby/matchcore/internal/ownership"
	"github.com/riftlobby/matchcore/internal/playerstate"
)

var rosterNames = []string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J"}

func newTestEngine(timeout time.Duration) (*Engine, kv.Store, *adapterstest.SqlStore, *playerstate.Registry, *ownership.Registry) {
	store := kvtest.New()
	sql := adapterstest.New()
	players := playerstate.New(store, time.Hour)
	own := ownership.New(store)
	e := New(Config{
		KV:        store,
		Locker:    kvtest.NewLocker(),
		SQL:       sql,
		Players:   players,
		Ownership: own,
		Timeout:   timeout,
		BotDelay:  time.Millisecond,
	})
	return e, store, sql, players, own
}

// seedMatch queues all ten roster members, then runs StartAcceptance so
// the engine under test sees the same state the queue engine's
// onMatchFound handoff would have produced.
func seedMatch(t *testing.T, ctx context.Context, e *Engine, sql *adapterstest.SqlStore) model.Match {
	t.Helper()
	team1 := []model.RosterSlot{{SummonerName: "A"}, {SummonerName: "B"}, {SummonerName: "C"}, {SummonerName: "D"}, {SummonerName: "E"}}
	team2 := []model.RosterSlot{{SummonerName: "F"}, {SummonerName: "G"}, {SummonerName: "H"}, {SummonerName: "I"}, {SummonerName: "J"}}
	match := model.Match{
		ID:     "match-1",
		Status: model.MatchFound,
		Team1:  team1,
		Team2:  team2,
	}

	for _, name := range rosterNames {
		if err := sql.UpsertQueueEntry(ctx, model.QueueEntry{
			SummonerName:     name,
			AcceptanceStatus: model.AcceptanceAwaiting,
			JoinTime:         time.Now(),
		}); err != nil {
			t.Fatalf("seed queue entry for %s: %v", name, err)
		}
		if err := e.players.Set(ctx, name, model.InQueue); err != nil {
			t.Fatalf("queue state for %s: %v", name, err)
		}
	}

	if err := e.StartAcceptance(ctx, match); err != nil {
		t.Fatalf("start acceptance: %v", err)
	}
	return match
}

func TestAcceptTwiceBySamePlayerIsIdempotent(t *testing.T) {
	e, store, sql, _, _ := newTestEngine(30 * time.Second)
	ctx := context.Background()
	seedMatch(t, ctx, e, sql)

	if err := e.Accept(ctx, "match-1", "A"); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	if err := e.Accept(ctx, "match-1", "A"); err != nil {
		t.Fatalf("second accept for the same player should be a no-op, got: %v", err)
	}

	entries, err := store.HashGetAll(ctx, acceptHashKey("match-1"))
	if err != nil {
		t.Fatalf("read acceptance hash: %v", err)
	}
	if len(entries) != 10 {
		t.Fatalf("acceptance hash has %d entries, want 10 (no duplicate entries from the repeated accept)", len(entries))
	}
	if entries[model.NormalizeName("A")] != entryAccepted {
		t.Fatalf("A's entry = %q, want accepted", entries[model.NormalizeName("A")])
	}

	status, _, err := store.HashGet(ctx, metaKey("match-1"), "status")
	if err != nil {
		t.Fatalf("read status: %v", err)
	}
	if status != statusWaiting {
		t.Fatalf("status = %q, want waiting (only one of ten accepted)", status)
	}
}

func TestAcceptAdvancesToDraftOnlyOnceAllTenAccept(t *testing.T) {
	e, _, sql, players, _ := newTestEngine(30 * time.Second)
	ctx := context.Background()
	seedMatch(t, ctx, e, sql)

	draftStarts := 0
	e.onDraftStart = func(ctx context.Context, m model.Match) error {
		draftStarts++
		return nil
	}

	for i, name := range rosterNames {
		// Accept "A" twice before moving on, to exercise the idempotent
		// path inside the same cohort run.
		if name == "A" {
			if err := e.Accept(ctx, "match-1", name); err != nil {
				t.Fatalf("accept %s: %v", name, err)
			}
		}
		if err := e.Accept(ctx, "match-1", name); err != nil {
			t.Fatalf("accept %s: %v", name, err)
		}
		if i < len(rosterNames)-1 && draftStarts != 0 {
			t.Fatalf("draft should not start before all ten accept (at %d/%d)", i+1, len(rosterNames))
		}
	}
	if draftStarts != 1 {
		t.Fatalf("draft started %d times, want exactly 1", draftStarts)
	}

	match, ok, err := sql.GetMatch(ctx, "match-1")
	if err != nil {
		t.Fatalf("get match: %v", err)
	}
	if !ok {
		t.Fatal("match should still exist after advancing to draft")
	}
	if match.Status != model.MatchDraft {
		t.Fatalf("match status = %s, want draft", match.Status)
	}

	for _, name := range rosterNames {
		state, err := players.Get(ctx, name)
		if err != nil {
			t.Fatalf("get state for %s: %v", name, err)
		}
		if state != model.InDraft {
			t.Fatalf("%s state = %s, want IN_DRAFT", name, state)
		}
		if _, ok, err := sql.GetQueueEntry(ctx, name); err != nil {
			t.Fatalf("get queue entry for %s: %v", name, err)
		} else if ok {
			t.Fatalf("%s should have been removed from the queue on advance", name)
		}
	}
}

func TestDeclineCancelsAndResetsTheOtherNine(t *testing.T) {
	e, store, sql, players, own := newTestEngine(30 * time.Second)
	ctx := context.Background()
	seedMatch(t, ctx, e, sql)

	if err := e.Decline(ctx, "match-1", "F"); err != nil {
		t.Fatalf("decline: %v", err)
	}

	if _, ok, err := sql.GetMatch(ctx, "match-1"); err != nil {
		t.Fatalf("get match: %v", err)
	} else if ok {
		t.Fatal("declined match should have been deleted")
	}

	if _, ok, err := sql.GetQueueEntry(ctx, "F"); err != nil {
		t.Fatalf("get queue entry for F: %v", err)
	} else if ok {
		t.Fatal("declining player should have been removed from the queue")
	}

	for _, name := range rosterNames {
		if name == "F" {
			continue
		}
		entry, ok, err := sql.GetQueueEntry(ctx, name)
		if err != nil {
			t.Fatalf("get queue entry for %s: %v", name, err)
		}
		if !ok {
			t.Fatalf("%s should remain in the queue after a teammate declines", name)
		}
		if entry.AcceptanceStatus != model.AcceptanceIdle {
			t.Fatalf("%s acceptanceStatus = %v, want AcceptanceIdle", name, entry.AcceptanceStatus)
		}
		state, err := players.Get(ctx, name)
		if err != nil {
			t.Fatalf("get state for %s: %v", name, err)
		}
		if state != model.InQueue {
			t.Fatalf("%s state = %s, want IN_QUEUE", name, state)
		}
		if _, ok, err := own.GetMatchFor(ctx, name); err != nil {
			t.Fatalf("get ownership for %s: %v", name, err)
		} else if ok {
			t.Fatalf("%s should no longer be owned by the cancelled match", name)
		}
	}

	if entries, err := store.HashGetAll(ctx, acceptHashKey("match-1")); err != nil {
		t.Fatalf("read acceptance hash: %v", err)
	} else if len(entries) != 0 {
		t.Fatalf("acceptance hash should be cleared, has %d entries", len(entries))
	}
	if meta, err := store.HashGetAll(ctx, metaKey("match-1")); err != nil {
		t.Fatalf("read metadata: %v", err)
	} else if len(meta) != 0 {
		t.Fatalf("metadata should be cleared, has %d entries", len(meta))
	}
}

func TestDeclineAfterStatusAlreadyResolvedIsRejected(t *testing.T) {
	e, _, sql, _, _ := newTestEngine(30 * time.Second)
	ctx := context.Background()
	seedMatch(t, ctx, e, sql)

	if err := e.Decline(ctx, "match-1", "A"); err != nil {
		t.Fatalf("decline: %v", err)
	}
	// The match is already torn down; a second accept/decline against the
	// same matchId must not resurrect it.
	err := e.Accept(ctx, "match-1", "B")
	if errs.Of(err) != errs.NotInPhase {
		t.Fatalf("err = %v, want NotInPhase", err)
	}
}

func TestTickTimeoutsDeclinesFirstPendingPlayerAfterThirtySeconds(t *testing.T) {
	e, store, sql, players, _ := newTestEngine(30 * time.Second)
	ctx := context.Background()
	seedMatch(t, ctx, e, sql)

	// "A" accepts so the timeout path has to skip past an already-resolved
	// entry to find the first still-pending player.
	if err := e.Accept(ctx, "match-1", "A"); err != nil {
		t.Fatalf("accept A: %v", err)
	}

	if err := store.HashPutAll(ctx, metaKey("match-1"), map[string]string{
		"startTimeMs": timeMillis(time.Now().Add(-31 * time.Second)),
	}); err != nil {
		t.Fatalf("rewind start time: %v", err)
	}

	if err := e.TickTimeouts(ctx); err != nil {
		t.Fatalf("tick timeouts: %v", err)
	}

	if _, ok, err := sql.GetMatch(ctx, "match-1"); err != nil {
		t.Fatalf("get match: %v", err)
	} else if ok {
		t.Fatal("match should have been cancelled by the timeout tick")
	}

	// "A" already accepted, so "B" is the first pending roster member and
	// should be the one the timeout declined on behalf of: removed from the
	// queue and back to AVAILABLE, unlike the nine who return to IN_QUEUE.
	state, err := players.Get(ctx, "B")
	if err != nil {
		t.Fatalf("get state for B: %v", err)
	}
	if state != model.Available {
		t.Fatalf("B state = %s, want AVAILABLE (declined by timeout and removed from the queue)", state)
	}
}

func TestTickTimeoutsLeavesMatchWaitingBeforeThirtySeconds(t *testing.T) {
	e, _, sql, _, _ := newTestEngine(30 * time.Second)
	ctx := context.Background()
	seedMatch(t, ctx, e, sql)

	if err := e.TickTimeouts(ctx); err != nil {
		t.Fatalf("tick timeouts: %v", err)
	}

	match, ok, err := sql.GetMatch(ctx, "match-1")
	if err != nil {
		t.Fatalf("get match: %v", err)
	}
	if !ok {
		t.Fatal("match should still exist, the countdown has not elapsed yet")
	}
	if match.Status != model.MatchFound {
		t.Fatalf("match status = %s, want match_found", match.Status)
	}
}

func timeMillis(t time.Time) string {
	return fmt.Sprintf("%d", t.UnixMilli())
}
