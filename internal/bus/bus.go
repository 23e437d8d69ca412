// Package bus implements the event bus / broadcaster (C8): every
// state-changing operation in the match lifecycle publishes a typed JSON
// event on a named channel; every replica subscribes to the full pattern
// set and fans events out to its own locally-connected sessions.
package bus

import (
	"context"
	"encoding/json"
	"time"
)

// Channel names from §6's event catalogue.
const (
	ChannelQueueUpdate       = "queue:update"
	ChannelQueuePlayerJoined = "queue:player_joined"
	ChannelQueuePlayerLeft   = "queue:player_left"
	ChannelMatchFound        = "match:found"
	ChannelMatchAcceptance   = "match:acceptance"
	ChannelDraftStarting     = "draft_starting"
	ChannelDraftUpdated      = "draft_updated"
	ChannelDraftCompleted    = "draft_completed"
	ChannelDraftConfirmed    = "draft_confirmed"
	ChannelDraftSnapshot     = "draft_snapshot"
	ChannelMatchGameReady    = "match_game_ready"
	ChannelGameStarted       = "game_started"
	ChannelMatchCancelled    = "match_cancelled"
	ChannelGameWinnerVote    = "game:winner_vote"
	ChannelGameFinished      = "game_finished"
	ChannelSpectatorMute     = "spectator:mute"
	ChannelSpectatorUnmute   = "spectator:unmute"
	ChannelSpectatorAdd      = "spectator:add"
	ChannelSpectatorRemove   = "spectator:remove"
)

// directedChannels are delivered only to the roster's currently connected
// sessions, never broadcast to every client — per §4.8.
var directedChannels = map[string]bool{
	ChannelMatchFound:      true,
	ChannelMatchAcceptance: true,
	ChannelDraftStarting:   true,
	ChannelDraftUpdated:    true,
	ChannelDraftCompleted:  true,
	ChannelDraftConfirmed:  true,
	ChannelDraftSnapshot:   true,
	ChannelMatchGameReady:  true,
	ChannelGameStarted:     true,
}

// Directed reports whether events on channel must be restricted to a
// roster rather than broadcast to every connected client.
func Directed(channel string) bool {
	return directedChannels[channel]
}

// Envelope is the JSON wrapper every published event carries: a type tag
// and a server timestamp, matching "JSON payloads; all include `type` and
// a server `timestamp`" from §6.
type Envelope struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	// Recipients, when non-empty, restricts delivery to these summoner
	// names (case-insensitive) regardless of whether the channel is
	// broadcast-eligible; used for the per-player PlayerFailedAccept-style
	// notices that target one roster member.
	Recipients []string `json:"-"`
}

// Publisher publishes a typed payload on a named channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, eventType string, payload interface{}, recipients ...string) error
}

// Subscriber delivers every Envelope published to any channel matching
// the configured pattern set to handler, until ctx is cancelled.
type Subscriber interface {
	Subscribe(ctx context.Context, patterns []string, handler func(channel string, env Envelope)) error
}

// Transport is the minimal capability a concrete pub/sub backend exposes;
// Redis' PubSub (pattern-subscribe) is the only implementation shipped.
type Transport interface {
	Publisher
	Subscriber
}
