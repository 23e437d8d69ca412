package queue

import (
	"context"
	"testing"
	"time"

	"github.com/riftlobby/matchcore/internal/adapters/adapterstest"
	"github.com/riftlobby/matchcore/internal/kv/kvtest"
	"github.com/riftlobby/matchcore/internal/model"
	"github.com/riftlobby/matchcore/internal/playerstate"
)

func newTestEngine() (*Engine, *adapterstest.SqlStore, *playerstate.Registry) {
	sql := adapterstest.New()
	players := playerstate.New(kvtest.New(), time.Hour)
	e := New(Config{
		KV:      kvtest.New(),
		Locker:  kvtest.NewLocker(),
		SQL:     sql,
		Players: players,
	})
	return e, sql, players
}

func buildCohort() []model.QueueEntry {
	type spec struct {
		name             string
		primary, secondary model.Lane
		mmr              int
	}
	specs := []spec{
		{"A", model.LaneTop, model.LaneJungle, 1100},
		{"B", model.LaneJungle, model.LaneTop, 1050},
		{"C", model.LaneMid, model.LaneSupport, 1200},
		{"D", model.LaneBot, model.LaneMid, 900},
		{"E", model.LaneSupport, model.LaneBot, 950},
		{"F", model.LaneTop, model.LaneJungle, 1000},
		{"G", model.LaneJungle, model.LaneTop, 1000},
		{"H", model.LaneMid, model.LaneSupport, 1000},
		{"I", model.LaneBot, model.LaneMid, 1000},
		{"J", model.LaneSupport, model.LaneBot, 1000},
	}
	now := time.Now()
	entries := make([]model.QueueEntry, len(specs))
	for i, s := range specs {
		entries[i] = model.QueueEntry{
			SummonerName:  s.name,
			PrimaryLane:   s.primary,
			SecondaryLane: s.secondary,
			CustomMmr:     s.mmr,
			JoinTime:      now.Add(time.Duration(i) * time.Second),
		}
	}
	return entries
}

func TestAssignLanesFillsAllFiveLanesByPrimary(t *testing.T) {
	assigned := assignLanes(buildCohort())
	if len(assigned) != 10 {
		t.Fatalf("assigned = %d, want 10", len(assigned))
	}
	byLane := make(map[model.Lane]int)
	for _, a := range assigned {
		byLane[a.lane]++
	}
	for _, lane := range model.OrderedLanes {
		if byLane[lane] != 2 {
			t.Fatalf("lane %s has %d players, want 2", lane, byLane[lane])
		}
	}
}

func TestAssignLanesAutofillsWhenNoCandidate(t *testing.T) {
	now := time.Now()
	cohort := make([]model.QueueEntry, 10)
	for i := 0; i < 10; i++ {
		cohort[i] = model.QueueEntry{
			SummonerName:  string(rune('A' + i)),
			PrimaryLane:   model.LaneTop,
			SecondaryLane: model.LaneTop,
			CustomMmr:     1000,
			JoinTime:      now.Add(time.Duration(i) * time.Second),
		}
	}
	assigned := assignLanes(cohort)
	autofilled := 0
	for _, a := range assigned {
		if a.autofill {
			autofilled++
		}
	}
	if autofilled != 8 {
		t.Fatalf("autofilled = %d, want 8 (only 2 of 10 can get their top preference)", autofilled)
	}
}

func TestSplitTeamsProducesOnePerLanePerTeam(t *testing.T) {
	assigned := assignLanes(buildCohort())
	team1, team2 := splitTeams(assigned)
	if len(team1) != 5 || len(team2) != 5 {
		t.Fatalf("team sizes = %d/%d, want 5/5", len(team1), len(team2))
	}
	lanes1 := make(map[model.Lane]bool)
	lanes2 := make(map[model.Lane]bool)
	for _, a := range team1 {
		lanes1[a.lane] = true
	}
	for _, a := range team2 {
		lanes2[a.lane] = true
	}
	if len(lanes1) != 5 || len(lanes2) != 5 {
		t.Fatal("each team must contain exactly one player per lane")
	}
}

func TestFormCohortProducesBalancedRosterOfTen(t *testing.T) {
	cohort, match := formCohort(buildCohort())
	if len(cohort) != 10 {
		t.Fatalf("cohort size = %d, want 10", len(cohort))
	}
	if len(match.Team1) != 5 || len(match.Team2) != 5 {
		t.Fatalf("match rosters = %d/%d, want 5/5", len(match.Team1), len(match.Team2))
	}
	seen := make(map[string]bool)
	for _, name := range match.Roster() {
		if seen[name] {
			t.Fatalf("player %s appears twice in the roster", name)
		}
		seen[name] = true
	}
	if len(seen) != 10 {
		t.Fatalf("roster has %d distinct players, want 10", len(seen))
	}
}

func TestJoinTransitionsToInQueueAndPersists(t *testing.T) {
	e, sql, players := newTestEngine()
	ctx := context.Background()

	player := model.Player{SummonerName: "Player1", Region: "na", BaseMmr: 1000}
	if err := e.Join(ctx, player, model.LaneTop, model.LaneJungle); err != nil {
		t.Fatalf("join: %v", err)
	}

	state, err := players.Get(ctx, "Player1")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state != model.InQueue {
		t.Fatalf("state = %s, want IN_QUEUE", state)
	}
	if _, ok, _ := sql.GetQueueEntry(ctx, "Player1"); !ok {
		t.Fatal("expected a queue row for Player1")
	}
}

func TestJoinRejectsPlayerInGame(t *testing.T) {
	e, _, players := newTestEngine()
	ctx := context.Background()

	if err := players.ForceSet(ctx, "Player1", model.InGame); err != nil {
		t.Fatalf("force-set: %v", err)
	}

	player := model.Player{SummonerName: "Player1"}
	err := e.Join(ctx, player, model.LaneTop, model.LaneJungle)
	if err == nil {
		t.Fatal("expected join to be rejected while player is IN_GAME")
	}
}

func TestLeaveClearsQueueEntryAndState(t *testing.T) {
	e, sql, players := newTestEngine()
	ctx := context.Background()

	player := model.Player{SummonerName: "Player1"}
	if err := e.Join(ctx, player, model.LaneTop, model.LaneJungle); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := e.Leave(ctx, "Player1"); err != nil {
		t.Fatalf("leave: %v", err)
	}

	if _, ok, _ := sql.GetQueueEntry(ctx, "Player1"); ok {
		t.Fatal("queue entry should be removed after leave")
	}
	state, _ := players.Get(ctx, "Player1")
	if state != model.Available {
		t.Fatalf("state = %s, want AVAILABLE", state)
	}
}

