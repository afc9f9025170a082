package triage_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/AgriNextGen/agrinext-jobs/internal/triage"
)

func TestClassify(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name         string
		subject      string
		body         string
		wantCategory string
		wantPriority string
	}{
		{
			name:         "refund beats order when both mentioned",
			subject:      "Refund for my order",
			body:         "I want my money back for order 123",
			wantCategory: "refunds",
			wantPriority: "normal",
		},
		{
			name:         "payment complaint is high priority",
			subject:      "Charged twice",
			body:         "My card was charged twice, this is wrong",
			wantCategory: "payments",
			wantPriority: "high",
		},
		{
			name:         "fraud is urgent",
			subject:      "Unauthorized charge",
			body:         "There is a fraud charge on my card",
			wantCategory: "payments",
			wantPriority: "urgent",
		},
		{
			name:         "pickup question",
			subject:      "When is my box ready for pickup?",
			body:         "",
			wantCategory: "pickup",
			wantPriority: "normal",
		},
		{
			name:         "unmatched text falls through to other",
			subject:      "Hello there",
			body:         "Just saying hi",
			wantCategory: "other",
			wantPriority: "normal",
		},
		{
			name:         "empty ticket never fails",
			subject:      "",
			body:         "",
			wantCategory: "other",
			wantPriority: "low",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := triage.Classify(tc.subject, tc.body)
			assert.Equal(t, tc.wantCategory, got.Category)
			assert.Equal(t, tc.wantPriority, got.Priority)
			assert.NotEmpty(t, got.Summary)
		})
	}
}

func TestClassify_SummaryPrefersSubject(t *testing.T) {
	t.Parallel()
	got := triage.Classify("Subject line", "Body text")
	assert.Equal(t, "Subject line", got.Summary)

	got = triage.Classify("", "Body only")
	assert.Equal(t, "Body only", got.Summary)
}

func TestClassify_SummaryTruncatesOnRuneBoundary(t *testing.T) {
	t.Parallel()

	// "x" plus 3-byte runes puts the 120-byte mark inside a rune.
	subject := "x" + strings.Repeat("€", 60)
	got := triage.Classify(subject, "")

	assert.True(t, utf8.ValidString(got.Summary), "summary is not valid UTF-8: %q", got.Summary)
	assert.True(t, strings.HasSuffix(got.Summary, "…"))
	assert.LessOrEqual(t, len(got.Summary), 120+len("…"))
}

func TestSummarizeTimeline(t *testing.T) {
	t.Parallel()

	summary, priority := triage.SummarizeTimeline(nil)
	assert.Equal(t, "no events recorded", summary)
	assert.Equal(t, triage.PriorityLow, priority)

	summary, priority = triage.SummarizeTimeline([]string{"order.created", "payment.captured"})
	assert.Equal(t, "2 events: order.created=1, payment.captured=1", summary)
	assert.Equal(t, triage.PriorityNormal, priority)

	// Majority failures escalate the priority.
	summary, priority = triage.SummarizeTimeline([]string{
		"payment.failed", "payment.failed", "order.created",
	})
	assert.Equal(t, triage.PriorityHigh, priority)
	assert.Contains(t, summary, "payment.failed=2")
	assert.Contains(t, summary, "(2 failures)")
}
