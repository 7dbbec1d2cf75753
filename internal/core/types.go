package core

import (
	"strings"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Intent is the classified purpose of an incoming message. Exactly one
// handler is bound to each intent.
type Intent string

const (
	IntentCalendar  Intent = "calendar"
	IntentSearch    Intent = "search"
	IntentOCR       Intent = "ocr"
	IntentSummarize Intent = "summarize"
	IntentChat      Intent = "chat"
)

// Attachment is an opaque blob attached to a message. The router only looks
// at the name and MIME type; content is passed through to the OCR provider.
type Attachment struct {
	Name string `json:"name"`
	MIME string `json:"mime"`
	Data []byte `json:"data,omitempty"`
}

// IsImage reports whether the attachment is a raster image the OCR engine
// can read.
func (a Attachment) IsImage() bool {
	if strings.HasPrefix(a.MIME, "image/") {
		return true
	}
	name := strings.ToLower(a.Name)
	for _, ext := range []string{".png", ".jpg", ".jpeg"} {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// IsDocument reports whether the attachment is a text-bearing document
// (PDF or plain text).
func (a Attachment) IsDocument() bool {
	switch a.MIME {
	case "application/pdf", "text/plain", "text/markdown":
		return true
	}
	name := strings.ToLower(a.Name)
	for _, ext := range []string{".pdf", ".txt", ".md"} {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// Message is one entry in a session log. Immutable once appended; ID and
// Timestamp are assigned by the store.
type Message struct {
	ID          int64        `json:"id"`
	Role        Role         `json:"role"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
	Intent      Intent       `json:"intent,omitempty"`

	// SearchMode marks a turn for which the user enabled the per-turn
	// web-search toggle. Not persisted as routing state, only as a record
	// of how the turn was classified.
	SearchMode bool `json:"search_mode,omitempty"`
}

// Persona configures the assistant's system prompt and memory bound.
// Immutable after load for the session lifetime.
type Persona struct {
	Name        string `yaml:"name" json:"name"`
	Personality string `yaml:"personality" json:"personality"`
	MemoryLimit int    `yaml:"memory_limit" json:"memory_limit"`

	// CalendarReminders enables the background reminder poller.
	CalendarReminders bool `yaml:"calendar_reminders" json:"calendar_reminders"`
}
