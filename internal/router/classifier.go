package router

import (
	"regexp"

	"smartdesk/internal/core"
)

// Classifier derives an intent from an incoming message. The rule-table
// implementation below is deterministic; the interface keeps a learned
// classifier pluggable behind the same route call.
type Classifier interface {
	Classify(msg core.Message) core.Intent
}

// rule is one entry of the ordered classification table. First match wins;
// ties are broken by table order, never by input order.
type rule struct {
	intent core.Intent
	match  func(msg core.Message) bool
}

var (
	// Explicit search-command syntax. Checked before calendar keywords so
	// "search for the meeting room policy" routes to search.
	reSearchCommand = regexp.MustCompile(`(?i)^\s*(/search\b|search\s+for\b|look\s+up\b|web\s*search\b)`)

	reCalendarKeyword = regexp.MustCompile(`(?i)\b(meeting|schedule|calendar|availability|appointment)s?\b`)
	reTimePhrase      = regexp.MustCompile(`(?i)\b(tomorrow|today|tonight|next\s+(week|month)|at\s+\d{1,2}(:\d{2})?\s*(am|pm)?)\b`)
	reReminder        = regexp.MustCompile(`(?i)\bremind\s+me\b`)

	reSummarize = regexp.MustCompile(`(?i)\b(summari[sz]e|tl;?dr|condense|recap)\b`)
)

// RuleClassifier classifies by a fixed priority order: attachments beat
// everything, then the rule table, then the per-turn search toggle, then
// chat as the ambiguity fallback (never an error).
type RuleClassifier struct {
	rules []rule
}

func NewRuleClassifier() *RuleClassifier {
	return &RuleClassifier{
		rules: []rule{
			{core.IntentSearch, func(m core.Message) bool {
				return reSearchCommand.MatchString(m.Text)
			}},
			{core.IntentCalendar, func(m core.Message) bool {
				return reCalendarKeyword.MatchString(m.Text)
			}},
			{core.IntentCalendar, func(m core.Message) bool {
				return reReminder.MatchString(m.Text) && reTimePhrase.MatchString(m.Text)
			}},
			{core.IntentSearch, func(m core.Message) bool {
				return m.SearchMode
			}},
			{core.IntentSummarize, func(m core.Message) bool {
				return reSummarize.MatchString(m.Text)
			}},
		},
	}
}

func (c *RuleClassifier) Classify(msg core.Message) core.Intent {
	for _, a := range msg.Attachments {
		if a.IsImage() || a.IsDocument() {
			return core.IntentOCR
		}
	}
	for _, r := range c.rules {
		if r.match(msg) {
			return r.intent
		}
	}
	return core.IntentChat
}
