package reminder

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartdesk/internal/core"
	"smartdesk/internal/storage"
)

type fakeSource struct {
	mu     sync.Mutex
	events []core.Event
	err    error
}

func (f *fakeSource) UpcomingEvents(ctx context.Context, _ string, _ time.Duration) ([]core.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events, f.err
}

func (f *fakeSource) set(events []core.Event, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events, f.err = events, err
}

func waitForMessages(t *testing.T, store storage.Store, sessionID string, n int) []core.Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		msgs, err := store.Recent(context.Background(), sessionID, 0)
		require.NoError(t, err)
		if len(msgs) >= n {
			return msgs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d messages", n)
	return nil
}

func TestPollerAppendsSystemReminder(t *testing.T) {
	store := storage.NewMemoryStore(storage.PrunePolicy{})
	source := &fakeSource{events: []core.Event{
		{ID: "ev1", Title: "Standup", Start: time.Now().Add(10 * time.Minute)},
	}}

	p := NewPoller(source, store, Config{
		SessionID: "s1",
		Interval:  10 * time.Millisecond,
		Window:    30 * time.Minute,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	msgs := waitForMessages(t, store, "s1", 1)
	cancel()
	<-done

	assert.Equal(t, core.RoleSystem, msgs[0].Role)
	assert.Equal(t, core.IntentCalendar, msgs[0].Intent)
	assert.Contains(t, msgs[0].Text, "Standup")
}

func TestPollerRemindsOnce(t *testing.T) {
	store := storage.NewMemoryStore(storage.PrunePolicy{})
	source := &fakeSource{events: []core.Event{
		{ID: "ev1", Title: "Review", Start: time.Now().Add(5 * time.Minute)},
	}}

	p := NewPoller(source, store, Config{
		SessionID: "s1",
		Interval:  5 * time.Millisecond,
		Window:    30 * time.Minute,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	waitForMessages(t, store, "s1", 1)
	// Many more scan cycles pass; the same event must not repeat.
	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	msgs, err := store.Recent(context.Background(), "s1", 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestPollerPicksUpNewEvents(t *testing.T) {
	store := storage.NewMemoryStore(storage.PrunePolicy{})
	source := &fakeSource{events: []core.Event{
		{ID: "ev1", Title: "First", Start: time.Now().Add(5 * time.Minute)},
	}}

	p := NewPoller(source, store, Config{
		SessionID: "s1",
		Interval:  5 * time.Millisecond,
		Window:    30 * time.Minute,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	waitForMessages(t, store, "s1", 1)
	source.set([]core.Event{
		{ID: "ev1", Title: "First", Start: time.Now().Add(5 * time.Minute)},
		{ID: "ev2", Title: "Second", Start: time.Now().Add(10 * time.Minute)},
	}, nil)

	msgs := waitForMessages(t, store, "s1", 2)
	cancel()
	<-done

	assert.Contains(t, msgs[1].Text, "Second")
}

func TestPollerSwallowsSourceErrors(t *testing.T) {
	store := storage.NewMemoryStore(storage.PrunePolicy{})
	source := &fakeSource{err: core.ErrAuthExpired}

	p := NewPoller(source, store, Config{
		SessionID: "s1",
		Interval:  5 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	msgs, err := store.Recent(context.Background(), "s1", 0)
	require.NoError(t, err)
	assert.Empty(t, msgs, "errors never become user-visible messages")
}

func TestReminderText(t *testing.T) {
	soon := core.Event{Title: "Sync", Start: time.Now().Add(15 * time.Minute)}
	assert.Contains(t, reminderText(soon), `"Sync" starts in`)

	starting := core.Event{Title: "Sync", Start: time.Now()}
	assert.Contains(t, reminderText(starting), "starting now")
}
