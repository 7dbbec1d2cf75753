// Package storage implements the session memory contract: an append-only
// per-session message log with bounded pruning, behind a Store port with
// in-memory, Redis and SQLite backends.
package storage

import (
	"context"
	"time"

	"smartdesk/internal/core"
)

// Store is the session memory port. Append is the only mutator besides
// pruning; it assigns a monotonically increasing id and a timestamp and
// enforces the prune policy afterwards. Recent returns up to n messages
// ordered oldest to newest (all messages when n <= 0).
type Store interface {
	Append(ctx context.Context, sessionID string, msg core.Message) (core.Message, error)
	Recent(ctx context.Context, sessionID string, n int) ([]core.Message, error)
	Prune(ctx context.Context, sessionID string) (int, error)
	Clear(ctx context.Context, sessionID string) error
	Close() error
}

// PrunePolicy bounds a session log by count and/or age. Whichever bounds are
// configured are enforced together. Pruning removes oldest-first and never
// removes the most recent message, so a non-empty session stays non-empty.
type PrunePolicy struct {
	MaxMessages int
	MaxAge      time.Duration
}

// drop returns how many messages to remove from the head of msgs.
func (p PrunePolicy) drop(msgs []core.Message, now time.Time) int {
	if len(msgs) <= 1 {
		return 0
	}

	n := 0
	if p.MaxMessages > 0 && len(msgs) > p.MaxMessages {
		n = len(msgs) - p.MaxMessages
	}
	if p.MaxAge > 0 {
		cutoff := now.Add(-p.MaxAge)
		for n < len(msgs) && msgs[n].Timestamp.Before(cutoff) {
			n++
		}
	}
	if n >= len(msgs) {
		n = len(msgs) - 1
	}
	return n
}

func tail(msgs []core.Message, n int) []core.Message {
	if n <= 0 || len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}
