// Package reminder runs the proactive calendar agent: a periodic scan of
// upcoming events whose reminders flow through a bounded queue into session
// memory as system messages. The single consumer is the only background
// writer, so the foreground turn never contends on more than the store's
// own append lock.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"smartdesk/internal/core"
	"smartdesk/internal/logger"
	"smartdesk/internal/storage"
)

// EventSource is the calendar surface the poller needs.
type EventSource interface {
	UpcomingEvents(ctx context.Context, userID string, window time.Duration) ([]core.Event, error)
}

type Config struct {
	SessionID string
	UserID    string
	Interval  time.Duration
	Window    time.Duration
	QueueSize int
}

// Poller scans for events starting within the window and reminds about each
// one exactly once.
type Poller struct {
	source EventSource
	store  storage.Store
	cfg    Config
	log    zerolog.Logger

	queue chan string

	mu       sync.Mutex
	reminded map[string]time.Time
}

func NewPoller(source EventSource, store storage.Store, cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Window <= 0 {
		cfg.Window = 30 * time.Minute
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.UserID == "" {
		cfg.UserID = cfg.SessionID
	}
	return &Poller{
		source:   source,
		store:    store,
		cfg:      cfg,
		log:      logger.With("reminder"),
		queue:    make(chan string, cfg.QueueSize),
		reminded: make(map[string]time.Time),
	}
}

// Run starts the scan loop and the queue consumer; it returns when ctx is
// canceled.
func (p *Poller) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		p.scanLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		p.consume(ctx)
	}()

	wg.Wait()
}

func (p *Poller) scanLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	defer close(p.queue)

	for {
		p.scan(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// scan enqueues one reminder per not-yet-announced upcoming event. A full
// queue drops the reminder; the next scan will retry it.
func (p *Poller) scan(ctx context.Context) {
	events, err := p.source.UpcomingEvents(ctx, p.cfg.UserID, p.cfg.Window)
	if err != nil {
		// Proactive reminders never surface errors to the user.
		if !errors.Is(err, core.ErrAuthExpired) {
			p.log.Warn().Err(err).Msg("reminder scan failed")
		}
		return
	}

	for _, ev := range events {
		if !p.markReminded(ev.ID) {
			continue
		}
		text := reminderText(ev)
		select {
		case p.queue <- text:
		default:
			p.unmark(ev.ID)
			p.log.Warn().Str("event_id", ev.ID).Msg("reminder queue full, deferring")
		}
	}
	p.expireMarks()
}

func (p *Poller) consume(ctx context.Context) {
	for text := range p.queue {
		_, err := p.store.Append(ctx, p.cfg.SessionID, core.Message{
			Role:   core.RoleSystem,
			Text:   text,
			Intent: core.IntentCalendar,
		})
		if err != nil {
			p.log.Error().Err(err).Msg("failed to append reminder")
		}
	}
}

func (p *Poller) markReminded(eventID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, seen := p.reminded[eventID]; seen {
		return false
	}
	p.reminded[eventID] = time.Now()
	return true
}

func (p *Poller) unmark(eventID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.reminded, eventID)
}

// expireMarks drops announcement records older than a day so the map stays
// bounded for long-lived sessions.
func (p *Poller) expireMarks() {
	p.mu.Lock()
	defer p.mu.Unlock()
	cutoff := time.Now().Add(-24 * time.Hour)
	for id, at := range p.reminded {
		if at.Before(cutoff) {
			delete(p.reminded, id)
		}
	}
}

func reminderText(ev core.Event) string {
	until := time.Until(ev.Start).Round(time.Minute)
	if until < time.Minute {
		return fmt.Sprintf("Reminder: %q is starting now.", ev.Title)
	}
	return fmt.Sprintf("Reminder: %q starts in %s (%s).",
		ev.Title, until, ev.Start.Format("15:04"))
}
