// Package format renders handler results into display text. Formatting is
// pure: no side effects, no network calls; any enrichment happens before.
package format

import (
	"fmt"
	"strings"

	"smartdesk/internal/core"
)

// Format renders a handler result for display. Dispatch is over the closed
// set of result types; an unknown type renders as empty text.
func Format(res core.HandlerResult) string {
	switch r := res.(type) {
	case *core.ChatResult:
		return r.Reply
	case *core.SummaryResult:
		return r.Summary
	case *core.SearchResult:
		return formatSearch(r)
	case *core.OCRResult:
		return formatOCR(r)
	case *core.CalendarResult:
		return formatCalendar(r)
	}
	return ""
}

// formatSearch keeps each source link adjacent to the claim it supports:
// one claim, one link, on the same line. No trailing link list.
func formatSearch(r *core.SearchResult) string {
	if len(r.Claims) == 0 {
		return fmt.Sprintf("No results found for %q. Try a different query.", r.Query)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Here is what I found for %q:\n", r.Query)
	for _, c := range r.Claims {
		fmt.Fprintf(&b, "- %s ([%s](%s))\n", strings.TrimSpace(c.Text), c.SourceTitle, c.SourceURL)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatOCR(r *core.OCRResult) string {
	if r.Text == "" {
		return fmt.Sprintf("No text found in %s. Please make sure the file contains clear, readable text.", r.FileName)
	}
	if r.Analysis != "" {
		return r.Analysis
	}
	return fmt.Sprintf("Processed %s. Extracted content:\n\n%s", r.FileName, r.Text)
}

// formatCalendar renders structured fields (time, attendees, location)
// before any free-text insight.
func formatCalendar(r *core.CalendarResult) string {
	if len(r.Events) == 0 {
		if r.Insight != "" {
			return r.Insight
		}
		return "No upcoming events found."
	}

	var b strings.Builder
	b.WriteString("Upcoming calendar events:\n")
	for _, ev := range r.Events {
		fmt.Fprintf(&b, "\n%s\n", ev.Title)
		fmt.Fprintf(&b, "  When: %s", ev.Start.Format("Mon Jan 2, 15:04"))
		if !ev.End.IsZero() {
			fmt.Fprintf(&b, " - %s", ev.End.Format("15:04"))
		}
		b.WriteString("\n")
		if len(ev.Attendees) > 0 {
			fmt.Fprintf(&b, "  Attendees: %s\n", strings.Join(ev.Attendees, ", "))
		}
		if ev.Location != "" {
			fmt.Fprintf(&b, "  Where: %s\n", ev.Location)
		}
	}
	if r.Insight != "" {
		fmt.Fprintf(&b, "\n%s\n", r.Insight)
	}
	return strings.TrimRight(b.String(), "\n")
}
