package bus

import (
	"context"

	"github.com/sirupsen/logrus"
)

// SessionLookup resolves a summoner name to zero or more locally
// connected session IDs on this replica; a per-replica in-memory map
// mutated only on connect/disconnect, read as a lock-free snapshot, per
// §5's "Session registry" resource.
type SessionLookup interface {
	SessionsFor(summonerName string) []string
}

// Deliverer sends an already-rendered event to one local session. Send
// failures are logged and swallowed by the Router; they never fail the
// publish path (§4.8) and never roll back state (§7).
type Deliverer interface {
	DeliverToSession(ctx context.Context, sessionID string, env Envelope) error
}

// Router implements the replica-local fan-out half of C8: on receipt of
// an Envelope from the Subscriber, it decides who on this replica should
// receive it — the connected sessions of the envelope's explicit
// Recipients when it carries any, otherwise those of the roster the
// caller supplies — and hands each to Deliverer.
type Router struct {
	sessions  SessionLookup
	deliverer Deliverer
	log       *logrus.Entry
}

// NewRouter builds a Router over a session lookup and a send sink.
func NewRouter(sessions SessionLookup, deliverer Deliverer, log *logrus.Entry) *Router {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Router{sessions: sessions, deliverer: deliverer, log: log}
}

// Route dispatches one received envelope to its local recipients. roster
// is the full set of summoner names this event's channel cares about for
// directed delivery (the caller — typically the component that decoded
// the payload — supplies it since only it knows the payload shape); for
// broadcast channels it is the set to fan out to. On either kind of
// channel a non-empty env.Recipients takes the place of roster.
func (r *Router) Route(ctx context.Context, channel string, env Envelope, roster []string) {
	var targets []string
	if Directed(channel) {
		names := env.Recipients
		if len(names) == 0 {
			names = roster
		}
		for _, name := range names {
			targets = append(targets, r.sessions.SessionsFor(name)...)
		}
	} else {
		// Broadcast channels still honor an explicit Recipients list when
		// the publisher set one (e.g. a single-player notice riding a
		// broadcast channel), otherwise fan out to everyone this replica
		// knows about via roster (the caller passes the full connected
		// set for broadcast channels it wants resolved this way; an empty
		// roster with no Recipients delivers to no session).
		if len(env.Recipients) > 0 {
			for _, name := range env.Recipients {
				targets = append(targets, r.sessions.SessionsFor(name)...)
			}
		} else {
			for _, name := range roster {
				targets = append(targets, r.sessions.SessionsFor(name)...)
			}
		}
	}

	for _, sessionID := range targets {
		if err := r.deliverer.DeliverToSession(ctx, sessionID, env); err != nil {
			r.log.WithError(err).WithFields(logrus.Fields{
				"channel": channel,
				"session": sessionID,
			}).Debug("send failed, dropping for this session")
		}
	}
}
