package core

import "testing"

func TestHandlerResultKinds(t *testing.T) {
	tests := []struct {
		res  HandlerResult
		want Intent
	}{
		{&ChatResult{}, IntentChat},
		{&SummaryResult{}, IntentSummarize},
		{&SearchResult{}, IntentSearch},
		{&OCRResult{}, IntentOCR},
		{&CalendarResult{}, IntentCalendar},
	}
	for _, tt := range tests {
		if got := tt.res.Kind(); got != tt.want {
			t.Errorf("%T.Kind() = %s, want %s", tt.res, got, tt.want)
		}
	}
}
