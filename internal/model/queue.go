package model

import "time"

// AcceptanceStatus is the per-queue-entry acceptance marker.
type AcceptanceStatus int

const (
	AcceptanceIdle     AcceptanceStatus = 0
	AcceptanceAwaiting AcceptanceStatus = -1
	AcceptanceAccepted AcceptanceStatus = 1
	AcceptanceDeclined AcceptanceStatus = 2
)

// QueueEntry is a single player's presence in the matchmaking queue.
type QueueEntry struct {
	PlayerID         string           `json:"playerId"`
	SummonerName     string           `json:"summonerName"`
	Region           string           `json:"region"`
	CustomLp         int              `json:"customLp"`
	CustomMmr        int              `json:"customMmr"`
	PrimaryLane      Lane             `json:"primaryLane"`
	SecondaryLane    Lane             `json:"secondaryLane"`
	JoinTime         time.Time        `json:"joinTime"`
	QueuePosition    int              `json:"queuePosition"`
	AcceptanceStatus AcceptanceStatus `json:"acceptanceStatus"`
}

// WaitDuration is how long the entry has been queued. The matcher does not
// call it; it orders by comparing JoinTime directly.
func (q QueueEntry) WaitDuration(now time.Time) time.Duration {
	return now.Sub(q.JoinTime)
}
