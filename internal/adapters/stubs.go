package adapters

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/riftlobby/matchcore/internal/model"
)

// NoopGameClientBridge logs every call and returns success, standing in
// for the third-party game client this module never talks to directly.
type NoopGameClientBridge struct {
	Log *logrus.Entry
}

func (n NoopGameClientBridge) log() *logrus.Entry {
	if n.Log == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return n.Log
}

func (n NoopGameClientBridge) StartGame(ctx context.Context, matchID string, team1, team2 []model.RosterSlot) error {
	n.log().WithField("matchId", matchID).Info("stub: would start game client session")
	return nil
}

func (n NoopGameClientBridge) EndGame(ctx context.Context, matchID string) error {
	n.log().WithField("matchId", matchID).Info("stub: would end game client session")
	return nil
}

// NoopChatBridge logs notifications instead of delivering them, for use
// until the edge wires in a real transport.
type NoopChatBridge struct {
	Log *logrus.Entry
}

func (n NoopChatBridge) Notify(ctx context.Context, summonerName, message string) error {
	log := n.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log.WithFields(logrus.Fields{"to": summonerName}).Info("stub notify: " + message)
	return nil
}

// NoopRankedDataBridge always reports an empty rank, simulating a
// downstream system this deployment hasn't wired up yet without ever
// failing the caller outright.
type NoopRankedDataBridge struct{}

func (NoopRankedDataBridge) LookupRank(ctx context.Context, summonerName string) (string, error) {
	return "", nil
}
