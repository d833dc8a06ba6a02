// Package persistence implements PersistenceStore (SPEC_FULL.md § 6.5): an
// append-only per-conversation turn log plus last-active-agent lookup for
// resume. Grounded on the teacher's ent/schema append-only timeline-event
// convention and pkg/session/manager.go's map+RWMutex shape for the
// in-memory fallback.
package persistence

import (
	"context"
	"time"
)

// TurnRecord is one persisted row of the turn log.
type TurnRecord struct {
	ConversationID    string
	Seq               int64
	UserText          string
	AgentText         string
	ActiveAgentAfter  string // empty if no agent left active after this turn
	CreatedAt         time.Time
}

// Store is the PersistenceStore collaborator contract. Implementations must
// tolerate concurrent writes across different conversations; ordering within
// a single conversation is guaranteed by the caller (the Manager owning that
// conversation dispatches turns serially — § 5).
type Store interface {
	// AppendTurn records one completed turn, assigning it the next
	// monotonic Seq for its conversation.
	AppendTurn(ctx context.Context, rec TurnRecord) error

	// History returns up to limit turns for conversationID in ascending Seq
	// order, the most recent limit if more exist — used both by the
	// history() API operation and by PushBridge's catch-up query.
	History(ctx context.Context, conversationID string, limit int) ([]TurnRecord, error)

	// LastActiveAgent returns the ActiveAgentAfter of the most recent turn
	// for conversationID, and whether any turn exists at all — used by
	// Manager's resume=true path.
	LastActiveAgent(ctx context.Context, conversationID string) (string, bool, error)

	Close() error
}
