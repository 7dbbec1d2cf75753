// Package router holds the decision logic of the assistant: it classifies an
// incoming message, invokes exactly one provider handler, formats the result
// and appends the reply to session memory. Handler failures become
// system-role messages; they never crash the turn loop and never fall
// through to another handler.
package router

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"smartdesk/internal/core"
	"smartdesk/internal/format"
	"smartdesk/internal/logger"
	"smartdesk/internal/storage"
)

// ErrBusy is returned when a route is refused because another handler call
// is still in flight for the same session. Requests are not preemptible.
var ErrBusy = errors.New("a request is already in flight for this session")

// ChatProvider is the LLM surface the router needs.
type ChatProvider interface {
	Complete(ctx context.Context, persona core.Persona, history []core.Message, text string) (string, error)
	Summarize(ctx context.Context, text string) (string, error)
	AnalyzeDocument(ctx context.Context, persona core.Persona, fileName, content, question string) (string, error)
}

type SearchProvider interface {
	Query(ctx context.Context, query string) (*core.SearchResult, error)
}

type OCRProvider interface {
	Extract(ctx context.Context, att core.Attachment) (string, error)
}

type CalendarProvider interface {
	UpcomingEvents(ctx context.Context, userID string, window time.Duration) ([]core.Event, error)
}

// Config carries the per-session routing parameters.
type Config struct {
	Persona core.Persona

	// UserID keys calendar credentials; defaults to the session id.
	UserID string

	// ContextWindow is how many recent messages feed the chat handler.
	ContextWindow int

	// CalendarWindow bounds how far ahead calendar queries look.
	CalendarWindow time.Duration
}

// Outcome is the result of one routed turn. Result is nil when the handler
// failed; Reply is then the system-role error message.
type Outcome struct {
	Intent core.Intent
	Result core.HandlerResult
	Reply  core.Message
}

type Router struct {
	store      storage.Store
	classifier Classifier
	chat       ChatProvider
	search     SearchProvider
	ocr        OCRProvider
	calendar   CalendarProvider
	cfg        Config
	log        zerolog.Logger

	mu       sync.Mutex
	inFlight map[string]bool
}

func New(store storage.Store, classifier Classifier, chat ChatProvider, search SearchProvider, ocr OCRProvider, calendar CalendarProvider, cfg Config) *Router {
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = 10
	}
	if cfg.CalendarWindow <= 0 {
		cfg.CalendarWindow = 7 * 24 * time.Hour
	}
	return &Router{
		store:      store,
		classifier: classifier,
		chat:       chat,
		search:     search,
		ocr:        ocr,
		calendar:   calendar,
		cfg:        cfg,
		log:        logger.With("router"),
		inFlight:   make(map[string]bool),
	}
}

func (r *Router) acquire(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFlight[sessionID] {
		return false
	}
	r.inFlight[sessionID] = true
	return true
}

func (r *Router) release(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inFlight, sessionID)
}

// Route processes one user turn: classify, record the user message, invoke
// the selected handler, append exactly one reply. At most one route per
// session may be in flight.
func (r *Router) Route(ctx context.Context, sessionID string, msg core.Message) (*Outcome, error) {
	if !r.acquire(sessionID) {
		return nil, ErrBusy
	}
	defer r.release(sessionID)

	intent := r.classifier.Classify(msg)
	msg.Role = core.RoleUser
	msg.Intent = intent

	log := r.log.With().Str("session_id", sessionID).Str("intent", string(intent)).Logger()
	log.Info().Msg("routing message")

	stored, err := r.store.Append(ctx, sessionID, msg)
	if err != nil {
		log.Error().Err(err).Msg("failed to record user message")
		return nil, err
	}

	history, err := r.store.Recent(ctx, sessionID, r.cfg.ContextWindow)
	if err != nil {
		// Degrade to an empty context rather than failing the turn.
		log.Warn().Err(err).Msg("failed to load recent context")
		history = nil
	}
	// The handler receives the context without the turn's own message.
	if n := len(history); n > 0 && history[n-1].ID == stored.ID {
		history = history[:n-1]
	}

	result, handlerErr := r.dispatch(ctx, intent, msg, history)
	if handlerErr != nil {
		log.Warn().Err(handlerErr).Msg("handler failed")
		reply := r.appendReply(ctx, sessionID, core.Message{
			Role: core.RoleSystem,
			Text: errorText(intent, handlerErr),
		})
		return &Outcome{Intent: intent, Reply: reply}, nil
	}

	reply := r.appendReply(ctx, sessionID, core.Message{
		Role:   core.RoleAssistant,
		Text:   format.Format(result),
		Intent: intent,
	})
	return &Outcome{Intent: intent, Result: result, Reply: reply}, nil
}

// appendReply best-effort appends the assistant or system reply. A storage
// failure here must not lose the reply text, so the unsaved message is
// still returned for display.
func (r *Router) appendReply(ctx context.Context, sessionID string, msg core.Message) core.Message {
	stored, err := r.store.Append(ctx, sessionID, msg)
	if err != nil {
		r.log.Error().Err(err).Str("session_id", sessionID).Msg("failed to append reply")
		msg.Timestamp = time.Now()
		return msg
	}
	return stored
}

// dispatch invokes the single handler bound to the intent. It never calls
// two handlers for one message.
func (r *Router) dispatch(ctx context.Context, intent core.Intent, msg core.Message, history []core.Message) (core.HandlerResult, error) {
	switch intent {
	case core.IntentOCR:
		return r.handleOCR(ctx, msg)
	case core.IntentCalendar:
		return r.handleCalendar(ctx, msg)
	case core.IntentSearch:
		return r.handleSearch(ctx, msg)
	case core.IntentSummarize:
		return r.handleSummarize(ctx, msg, history)
	default:
		reply, err := r.chat.Complete(ctx, r.cfg.Persona, history, msg.Text)
		if err != nil {
			return nil, err
		}
		return &core.ChatResult{Reply: reply}, nil
	}
}

func (r *Router) handleOCR(ctx context.Context, msg core.Message) (core.HandlerResult, error) {
	var att core.Attachment
	for _, a := range msg.Attachments {
		if a.IsImage() || a.IsDocument() {
			att = a
			break
		}
	}

	text, err := r.ocr.Extract(ctx, att)
	if err != nil {
		return nil, err
	}

	result := &core.OCRResult{FileName: att.Name, Text: text}
	if text != "" && strings.TrimSpace(msg.Text) != "" {
		analysis, err := r.chat.AnalyzeDocument(ctx, r.cfg.Persona, att.Name, text, msg.Text)
		if err != nil {
			// Extraction succeeded; return it rather than failing the turn.
			r.log.Warn().Err(err).Msg("document analysis failed, returning raw text")
		} else {
			result.Analysis = analysis
		}
	}
	return result, nil
}

func (r *Router) handleCalendar(ctx context.Context, msg core.Message) (core.HandlerResult, error) {
	if r.calendar == nil {
		return nil, fmt.Errorf("%w: calendar is not configured", core.ErrAuthExpired)
	}
	userID := r.cfg.UserID
	if userID == "" {
		userID = "default"
	}
	events, err := r.calendar.UpcomingEvents(ctx, userID, r.cfg.CalendarWindow)
	if err != nil {
		return nil, err
	}
	return &core.CalendarResult{Events: events}, nil
}

var reSearchPrefix = regexp.MustCompile(`(?i)^\s*(/search\s+|search\s+for\s+|look\s+up\s+|web\s*search\s+)`)

func (r *Router) handleSearch(ctx context.Context, msg core.Message) (core.HandlerResult, error) {
	if r.search == nil {
		return nil, fmt.Errorf("%w: web search is not configured", core.ErrProviderUnavailable)
	}
	query := reSearchPrefix.ReplaceAllString(msg.Text, "")
	query = strings.TrimSpace(query)
	if query == "" {
		query = strings.TrimSpace(msg.Text)
	}
	return r.search.Query(ctx, query)
}

func (r *Router) handleSummarize(ctx context.Context, msg core.Message, history []core.Message) (core.HandlerResult, error) {
	target := summaryTarget(msg, history)
	if target == "" {
		return &core.SummaryResult{
			Summary: "Please provide the text you'd like me to summarize.",
		}, nil
	}
	summary, err := r.chat.Summarize(ctx, target)
	if err != nil {
		return nil, err
	}
	return &core.SummaryResult{Summary: summary}, nil
}

// summaryTarget picks what to condense: substantial text in the message
// itself wins, otherwise the recent conversation.
func summaryTarget(msg core.Message, history []core.Message) string {
	stripped := reSummarize.ReplaceAllString(msg.Text, "")
	if len(strings.Fields(stripped)) >= 20 {
		return strings.TrimSpace(stripped)
	}

	var b strings.Builder
	for _, m := range history {
		if m.Role == core.RoleSystem {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Text)
	}
	return strings.TrimSpace(b.String())
}

func errorText(intent core.Intent, err error) string {
	if errors.Is(err, core.ErrAuthExpired) {
		return "Your calendar session has expired. Please reconnect your Google Calendar to use calendar features."
	}
	return fmt.Sprintf("Sorry, the %s request failed: %v. Please try again.", intent, err)
}
