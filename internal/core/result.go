package core

import "time"

// HandlerResult is the tagged output of a single handler invocation. The
// formatter dispatches on the concrete type, so the set is closed.
type HandlerResult interface {
	Kind() Intent
}

// ChatResult is a plain completion from the LLM.
type ChatResult struct {
	Reply string
}

func (ChatResult) Kind() Intent { return IntentChat }

// SummaryResult is a condensed rendition of prior content.
type SummaryResult struct {
	Summary string
}

func (SummaryResult) Kind() Intent { return IntentSummarize }

// Claim is one statement from a search answer together with the source that
// supports it. Formatting keeps the link adjacent to the claim.
type Claim struct {
	Text        string
	SourceTitle string
	SourceURL   string
}

// SearchResult is the outcome of a web search: one claim per source.
type SearchResult struct {
	Query  string
	Claims []Claim
}

func (SearchResult) Kind() Intent { return IntentSearch }

// OCRResult is extracted document or image text, optionally with an LLM
// analysis when the user asked a question alongside the upload.
type OCRResult struct {
	FileName string
	Text     string
	Analysis string
}

func (OCRResult) Kind() Intent { return IntentOCR }

// Event is one calendar entry with its structured fields.
type Event struct {
	ID        string
	Title     string
	Start     time.Time
	End       time.Time
	Location  string
	Attendees []string
}

// CalendarResult is a set of upcoming events plus optional free-text insight.
// Structured fields render before the insight.
type CalendarResult struct {
	Events  []Event
	Insight string
}

func (CalendarResult) Kind() Intent { return IntentCalendar }
