// Package triage provides deterministic, non-LLM fallbacks for support
// triage: keyword-based category/priority classification and aggregate-count
// timeline summaries. These fallbacks are the implementation — they never
// depend on an external AI provider being reachable.
package triage

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// Suggestion is a triage classification for a support ticket.
type Suggestion struct {
	Category string
	Priority string
	Summary  string
}

// Priorities, lowest to highest.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// categoryKeywords maps a category to the keywords that select it. First
// category (in match order below) with a hit wins.
var categoryKeywords = map[string][]string{
	"payments": {"payment", "charge", "charged", "card", "invoice", "billing"},
	"refunds":  {"refund", "money back", "reimburse"},
	"pickup":   {"pickup", "pick up", "collection", "ready"},
	"orders":   {"order", "basket", "produce", "delivery", "box"},
	"account":  {"login", "password", "account", "email address"},
}

// matchOrder fixes the category precedence: a ticket mentioning both a refund
// and an order is a refund ticket.
var matchOrder = []string{"refunds", "payments", "pickup", "orders", "account"}

var urgentKeywords = []string{"urgent", "immediately", "asap", "legal", "fraud", "unauthorised", "unauthorized"}
var highKeywords = []string{"missing", "wrong", "broken", "failed", "error", "not working", "complaint"}

// Classify produces a category/priority suggestion from a ticket's subject
// and body. Either field may be empty; an entirely empty ticket classifies as
// other/low rather than failing.
func Classify(subject, body string) Suggestion {
	text := strings.ToLower(subject + " " + body)

	category := "other"
	for _, cat := range matchOrder {
		if containsAny(text, categoryKeywords[cat]) {
			category = cat
			break
		}
	}

	priority := PriorityNormal
	switch {
	case strings.TrimSpace(text) == "":
		priority = PriorityLow
	case containsAny(text, urgentKeywords):
		priority = PriorityUrgent
	case containsAny(text, highKeywords):
		priority = PriorityHigh
	}

	return Suggestion{
		Category: category,
		Priority: priority,
		Summary:  summarize(subject, body),
	}
}

// SummarizeTimeline reduces a sequence of workflow event types to a count
// summary, flagging failure-heavy timelines. Returns the summary text and a
// priority reflecting how anomalous the timeline looks.
func SummarizeTimeline(eventTypes []string) (string, string) {
	if len(eventTypes) == 0 {
		return "no events recorded", PriorityLow
	}

	counts := make(map[string]int)
	failures := 0
	for _, et := range eventTypes {
		counts[et]++
		if strings.Contains(et, "fail") || strings.Contains(et, "error") {
			failures++
		}
	}

	types := make([]string, 0, len(counts))
	for et := range counts {
		types = append(types, et)
	}
	sort.Strings(types)

	parts := make([]string, 0, len(types))
	for _, et := range types {
		parts = append(parts, fmt.Sprintf("%s=%d", et, counts[et]))
	}
	summary := fmt.Sprintf("%d events: %s", len(eventTypes), strings.Join(parts, ", "))

	priority := PriorityNormal
	if failures*2 > len(eventTypes) {
		priority = PriorityHigh
		summary += fmt.Sprintf(" (%d failures)", failures)
	}
	return summary, priority
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// summarize returns the subject, or the leading part of the body when the
// subject is empty.
func summarize(subject, body string) string {
	s := strings.TrimSpace(subject)
	if s == "" {
		s = strings.TrimSpace(body)
	}
	const maxLen = 120
	if len(s) > maxLen {
		// Back up to a rune boundary so the cut never splits a multi-byte
		// character.
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "…"
	}
	if s == "" {
		s = "(empty ticket)"
	}
	return s
}
