package storage

import (
	"context"
	"sync"
	"time"

	"smartdesk/internal/core"
)

type sessionLog struct {
	nextID int64
	msgs   []core.Message
}

// MemoryStore is an in-process implementation for development and tests.
// A single mutex serializes appends from the foreground turn and the
// background reminder writer, so ids are never duplicated or skipped.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*sessionLog
	policy   PrunePolicy
	now      func() time.Time
}

func NewMemoryStore(policy PrunePolicy) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*sessionLog),
		policy:   policy,
		now:      time.Now,
	}
}

func (m *MemoryStore) session(sessionID string) *sessionLog {
	s, ok := m.sessions[sessionID]
	if !ok {
		s = &sessionLog{nextID: 1}
		m.sessions[sessionID] = s
	}
	return s
}

func (m *MemoryStore) Append(ctx context.Context, sessionID string, msg core.Message) (core.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.session(sessionID)
	msg.ID = s.nextID
	s.nextID++
	if msg.Timestamp.IsZero() {
		msg.Timestamp = m.now()
	}
	s.msgs = append(s.msgs, msg)

	if n := m.policy.drop(s.msgs, m.now()); n > 0 {
		s.msgs = append([]core.Message(nil), s.msgs[n:]...)
	}
	return msg, nil
}

func (m *MemoryStore) Recent(ctx context.Context, sessionID string, n int) ([]core.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	out := tail(s.msgs, n)
	// Copy so callers never observe a partially appended log.
	return append([]core.Message(nil), out...), nil
}

func (m *MemoryStore) Prune(ctx context.Context, sessionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return 0, nil
	}
	n := m.policy.drop(s.msgs, m.now())
	if n > 0 {
		s.msgs = append([]core.Message(nil), s.msgs[n:]...)
	}
	return n, nil
}

func (m *MemoryStore) Clear(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

func (m *MemoryStore) Close() error { return nil }
