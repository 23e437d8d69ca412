// Package adapters defines the narrow external-collaborator interfaces
// (C10): SQL persistence, the real game client, chat/notification
// delivery, and ranked-data lookups. None of these concerns are built
// out here — the HTTP/WebSocket edge, any concrete game client, and any
// chat integration are all explicitly external — so besides the SQL
// store every interface here ships only a no-op stub (the game-client and
// chat stubs log each call; the ranked-data stub returns an empty rank
// silently), injected at construction per the wiring design.
package adapters

import (
	"context"

	"github.com/riftlobby/matchcore/internal/model"
)

// SqlStore is the §6 SQL surface: queue_players, custom_matches, and
// players, as Go methods. The core consumes and writes these fields but
// owns no schema migrations — internal/store is the sole implementation.
type SqlStore interface {
	// UpsertQueueEntry inserts or updates a player's queue row.
	UpsertQueueEntry(ctx context.Context, entry model.QueueEntry) error
	// DeleteQueueEntry removes a player's queue row, if present.
	DeleteQueueEntry(ctx context.Context, summonerName string) error
	// ListQueueEntries returns every queued player ordered by join time.
	ListQueueEntries(ctx context.Context) ([]model.QueueEntry, error)
	// GetQueueEntry returns one player's queue row, if present.
	GetQueueEntry(ctx context.Context, summonerName string) (model.QueueEntry, bool, error)

	// CreateMatch inserts a new match row.
	CreateMatch(ctx context.Context, match model.Match) error
	// UpdateMatch overwrites an existing match row in full.
	UpdateMatch(ctx context.Context, match model.Match) error
	// GetMatch returns one match row, if present.
	GetMatch(ctx context.Context, matchID string) (model.Match, bool, error)
	// ListMatchesByStatus returns every match row currently at status.
	ListMatchesByStatus(ctx context.Context, status model.MatchStatus) ([]model.Match, error)
	// DeleteMatch removes a match row entirely (terminal cleanup).
	DeleteMatch(ctx context.Context, matchID string) error

	// GetPlayer returns a player's identity/rating row, if present.
	GetPlayer(ctx context.Context, summonerName string) (model.Player, bool, error)
	// UpsertPlayer inserts or updates a player's identity/rating row.
	UpsertPlayer(ctx context.Context, player model.Player) error
	// ApplyLPDeltas adds each named player's delta to their stored
	// customLp in one call, used by gamemonitor.Finish.
	ApplyLPDeltas(ctx context.Context, deltas map[string]int) error
}

// GameClientBridge starts a match in the real game client once a draft
// completes, and later polls/ends it. No concrete implementation is
// shipped; NoopGameClientBridge logs the calls it receives so the
// gamemonitor wiring has something to call during development and
// tests.
type GameClientBridge interface {
	StartGame(ctx context.Context, matchID string, team1, team2 []model.RosterSlot) error
	EndGame(ctx context.Context, matchID string) error
}

// ChatBridge sends one-off notifications (e.g. "your match is ready") to
// a single summoner name. Routed bus events do not pass through it; they
// reach sessions through bus.Deliverer. The real implementation is the
// HTTP/WebSocket edge; this module ships only a logging stub.
type ChatBridge interface {
	Notify(ctx context.Context, summonerName, message string) error
}

// RankedDataBridge performs read-only external rank/stat lookups. Its
// only caller is engine.LookupRank; the queue engine does not consult it
// when forming teams. A failed lookup is logged by that caller and
// reported as an empty rank, never surfaced to the player.
type RankedDataBridge interface {
	LookupRank(ctx context.Context, summonerName string) (rank string, err error)
}
