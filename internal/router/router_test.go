package router

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartdesk/internal/core"
	"smartdesk/internal/storage"
)

type stubChat struct {
	reply   string
	summary string
	err     error
	entered chan struct{}
	block   chan struct{}
	calls   int
}

func (s *stubChat) Complete(ctx context.Context, _ core.Persona, _ []core.Message, _ string) (string, error) {
	s.calls++
	if s.entered != nil {
		select {
		case s.entered <- struct{}{}:
		default:
		}
	}
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.reply, s.err
}

func (s *stubChat) Summarize(ctx context.Context, _ string) (string, error) {
	s.calls++
	return s.summary, s.err
}

func (s *stubChat) AnalyzeDocument(ctx context.Context, _ core.Persona, _, _, _ string) (string, error) {
	return "analysis", s.err
}

type stubSearch struct {
	gotQuery string
	result   *core.SearchResult
	err      error
}

func (s *stubSearch) Query(ctx context.Context, query string) (*core.SearchResult, error) {
	s.gotQuery = query
	return s.result, s.err
}

type stubOCR struct {
	text string
	err  error
}

func (s *stubOCR) Extract(ctx context.Context, _ core.Attachment) (string, error) {
	return s.text, s.err
}

type stubCalendar struct {
	events []core.Event
	err    error
}

func (s *stubCalendar) UpcomingEvents(ctx context.Context, _ string, _ time.Duration) ([]core.Event, error) {
	return s.events, s.err
}

func newTestRouter(chat *stubChat, search *stubSearch, ocr *stubOCR, cal *stubCalendar) (*Router, storage.Store) {
	store := storage.NewMemoryStore(storage.PrunePolicy{})
	var sp SearchProvider
	if search != nil {
		sp = search
	}
	var cp CalendarProvider
	if cal != nil {
		cp = cal
	}
	rt := New(store, NewRuleClassifier(), chat, sp, ocr, cp, Config{
		Persona: core.Persona{Name: "Test", Personality: "terse"},
	})
	return rt, store
}

func TestRouteChatSuccess(t *testing.T) {
	ctx := context.Background()
	chat := &stubChat{reply: "hello there"}
	rt, store := newTestRouter(chat, nil, &stubOCR{}, nil)

	out, err := rt.Route(ctx, "s1", core.Message{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, core.IntentChat, out.Intent)
	assert.Equal(t, "hello there", out.Reply.Text)
	assert.Equal(t, core.RoleAssistant, out.Reply.Role)

	msgs, err := store.Recent(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2, "exactly one user message plus one reply")
	assert.Equal(t, core.RoleUser, msgs[0].Role)
	assert.Equal(t, core.IntentChat, msgs[0].Intent)
	assert.Equal(t, core.RoleAssistant, msgs[1].Role)
}

func TestRouteHandlerFailureBecomesSystemMessage(t *testing.T) {
	ctx := context.Background()
	chat := &stubChat{err: core.ErrProviderUnavailable}
	rt, store := newTestRouter(chat, nil, &stubOCR{}, nil)

	out, err := rt.Route(ctx, "s1", core.Message{Text: "hi"})
	require.NoError(t, err, "handler failures do not fail the route")
	assert.Nil(t, out.Result)
	assert.Equal(t, core.RoleSystem, out.Reply.Role)
	assert.Contains(t, out.Reply.Text, "chat request failed")

	msgs, err := store.Recent(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, core.RoleUser, msgs[0].Role, "user message survives the failure")
	assert.Equal(t, core.RoleSystem, msgs[1].Role)
}

func TestRouteChatTimeout(t *testing.T) {
	ctx := context.Background()
	chat := &stubChat{err: context.DeadlineExceeded}
	rt, store := newTestRouter(chat, nil, &stubOCR{}, nil)

	out, err := rt.Route(ctx, "s1", core.Message{Text: "slow question"})
	require.NoError(t, err)
	assert.Equal(t, core.RoleSystem, out.Reply.Role)

	msgs, err := store.Recent(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2, "exactly one system message follows the timeout")
	assert.Equal(t, "slow question", msgs[0].Text, "the user message is preserved")
	assert.Equal(t, core.RoleSystem, msgs[1].Role)
}

func TestRouteAuthExpiredSuggestsReconnect(t *testing.T) {
	ctx := context.Background()
	cal := &stubCalendar{err: core.ErrAuthExpired}
	rt, _ := newTestRouter(&stubChat{}, nil, &stubOCR{}, cal)

	out, err := rt.Route(ctx, "s1", core.Message{Text: "what meetings do I have"})
	require.NoError(t, err)
	assert.Equal(t, core.IntentCalendar, out.Intent)
	assert.Contains(t, out.Reply.Text, "reconnect")
}

func TestRouteRejectsConcurrentTurn(t *testing.T) {
	ctx := context.Background()
	entered := make(chan struct{}, 1)
	block := make(chan struct{})
	chat := &stubChat{reply: "ok", entered: entered, block: block}
	rt, _ := newTestRouter(chat, nil, &stubOCR{}, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := rt.Route(ctx, "s1", core.Message{Text: "first"})
		assert.NoError(t, err)
	}()

	// Once the handler is running, the session slot is held.
	<-entered
	_, err := rt.Route(ctx, "s1", core.Message{Text: "second"})
	assert.ErrorIs(t, err, ErrBusy)

	close(block)
	wg.Wait()

	// The slot is released after the turn completes.
	_, err = rt.Route(ctx, "s1", core.Message{Text: "third"})
	assert.NoError(t, err)
}

func TestRouteSearchStripsCommandPrefix(t *testing.T) {
	ctx := context.Background()
	search := &stubSearch{result: &core.SearchResult{Query: "q", Claims: []core.Claim{
		{Text: "a fact", SourceTitle: "Source", SourceURL: "https://example.com"},
	}}}
	rt, _ := newTestRouter(&stubChat{}, search, &stubOCR{}, nil)

	_, err := rt.Route(ctx, "s1", core.Message{Text: "search for the meeting room policy"})
	require.NoError(t, err)
	assert.Equal(t, "the meeting room policy", search.gotQuery)
}

func TestRouteSearchUnconfigured(t *testing.T) {
	ctx := context.Background()
	rt, _ := newTestRouter(&stubChat{}, nil, &stubOCR{}, nil)

	out, err := rt.Route(ctx, "s1", core.Message{Text: "/search anything"})
	require.NoError(t, err)
	assert.Equal(t, core.RoleSystem, out.Reply.Role)
	assert.Contains(t, out.Reply.Text, "search request failed")
}

func TestRouteOCRWithAnalysis(t *testing.T) {
	ctx := context.Background()
	ocr := &stubOCR{text: "Invoice total: 42 THB"}
	rt, _ := newTestRouter(&stubChat{}, nil, ocr, nil)

	out, err := rt.Route(ctx, "s1", core.Message{
		Text:        "how much did I pay?",
		Attachments: []core.Attachment{{Name: "invoice.png", MIME: "image/png"}},
	})
	require.NoError(t, err)
	assert.Equal(t, core.IntentOCR, out.Intent)
	res, ok := out.Result.(*core.OCRResult)
	require.True(t, ok)
	assert.Equal(t, "Invoice total: 42 THB", res.Text)
	assert.Equal(t, "analysis", res.Analysis)
}

func TestRouteOCRAnalysisFailureReturnsRawText(t *testing.T) {
	ctx := context.Background()
	chat := &stubChat{err: core.ErrProviderUnavailable}
	ocr := &stubOCR{text: "extracted"}
	rt, _ := newTestRouter(chat, nil, ocr, nil)

	out, err := rt.Route(ctx, "s1", core.Message{
		Text:        "explain this",
		Attachments: []core.Attachment{{Name: "doc.pdf", MIME: "application/pdf"}},
	})
	require.NoError(t, err)
	res, ok := out.Result.(*core.OCRResult)
	require.True(t, ok)
	assert.Equal(t, "extracted", res.Text)
	assert.Empty(t, res.Analysis)
}

func TestRouteSummarizeShortMessageUsesHistory(t *testing.T) {
	ctx := context.Background()
	chat := &stubChat{reply: "reply", summary: "the gist"}
	rt, store := newTestRouter(chat, nil, &stubOCR{}, nil)

	_, err := store.Append(ctx, "s1", core.Message{Role: core.RoleUser, Text: "we talked about the budget"})
	require.NoError(t, err)

	out, err := rt.Route(ctx, "s1", core.Message{Text: "summarize that"})
	require.NoError(t, err)
	assert.Equal(t, core.IntentSummarize, out.Intent)
	assert.Equal(t, "the gist", out.Reply.Text)
}

func TestRouteSummarizeNothingToSummarize(t *testing.T) {
	ctx := context.Background()
	chat := &stubChat{summary: "should not be used"}
	rt, _ := newTestRouter(chat, nil, &stubOCR{}, nil)

	out, err := rt.Route(ctx, "s1", core.Message{Text: "summarize"})
	require.NoError(t, err)
	assert.True(t, strings.Contains(out.Reply.Text, "provide the text"))
	assert.Zero(t, chat.calls, "no model call for an empty target")
}

func TestSummaryTargetPrefersSubstantialMessageText(t *testing.T) {
	long := "summarize " + strings.Repeat("word ", 25)
	got := summaryTarget(core.Message{Text: long}, []core.Message{
		{Role: core.RoleUser, Text: "ignored history"},
	})
	assert.NotContains(t, got, "ignored history")
	assert.Contains(t, got, "word")
}
