// Package analysis computes the daily speech metrics behind guardian
// reports: word count, lexical diversity and speaking rate.
package analysis

import (
	"strings"

	"carecall-backend/internal/store"
)

// Metrics summarizes one day of a senior's utterances.
type Metrics struct {
	WordCount    int
	TTR          float64 // type-token ratio, unique words over total
	SpeakingRate float64 // words per minute over the day's span
}

// Compute derives metrics from the day's logs. Only the senior's own
// utterances count; assistant turns would skew every number.
func Compute(logs []store.ConversationLog) Metrics {
	var tokens []string
	var first, last *store.ConversationLog

	for i := range logs {
		log := &logs[i]
		if log.Speaker != store.SpeakerSenior {
			continue
		}
		tokens = append(tokens, strings.Fields(log.Transcript)...)
		if first == nil {
			first = log
		}
		last = log
	}

	m := Metrics{WordCount: len(tokens)}
	if len(tokens) == 0 {
		return m
	}

	seen := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		seen[strings.ToLower(tok)] = struct{}{}
	}
	m.TTR = float64(len(seen)) / float64(len(tokens))

	span := last.Timestamp.Sub(first.Timestamp)
	if span <= 0 {
		// A single utterance has no span; report the raw count.
		m.SpeakingRate = float64(m.WordCount)
		return m
	}
	m.SpeakingRate = float64(m.WordCount) / span.Minutes()
	return m
}
