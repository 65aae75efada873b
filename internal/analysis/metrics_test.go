package analysis

import (
	"math"
	"testing"
	"time"

	"carecall-backend/internal/store"
)

func log(speaker, text string, ts time.Time) store.ConversationLog {
	return store.ConversationLog{Speaker: speaker, Transcript: text, Timestamp: ts}
}

func TestComputeCountsOnlySeniorWords(t *testing.T) {
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	logs := []store.ConversationLog{
		log(store.SpeakerSenior, "오늘 날씨가 좋네요", base),
		log(store.SpeakerAI, "네 정말 좋은 날씨예요 산책 다녀오세요", base.Add(10*time.Second)),
		log(store.SpeakerSenior, "산책을 다녀왔어요", base.Add(2*time.Minute)),
	}

	m := Compute(logs)
	if m.WordCount != 5 {
		t.Fatalf("expected 5 words, got %d", m.WordCount)
	}
	if m.TTR != 1.0 {
		t.Fatalf("expected TTR 1.0 for all-unique words, got %f", m.TTR)
	}
	if math.Abs(m.SpeakingRate-2.5) > 1e-9 {
		t.Fatalf("expected 2.5 words/min over 2 minutes, got %f", m.SpeakingRate)
	}
}

func TestComputeRepeatedWordsLowerTTR(t *testing.T) {
	base := time.Now()
	logs := []store.ConversationLog{
		log(store.SpeakerSenior, "네 네 네 좋아요", base),
	}

	m := Compute(logs)
	if m.WordCount != 4 {
		t.Fatalf("expected 4 words, got %d", m.WordCount)
	}
	if m.TTR != 0.5 {
		t.Fatalf("expected TTR 0.5, got %f", m.TTR)
	}
	// One log has no time span, so the rate falls back to the count.
	if m.SpeakingRate != 4 {
		t.Fatalf("expected rate 4, got %f", m.SpeakingRate)
	}
}

func TestComputeEmptyDay(t *testing.T) {
	m := Compute(nil)
	if m.WordCount != 0 || m.TTR != 0 || m.SpeakingRate != 0 {
		t.Fatalf("expected zero metrics, got %+v", m)
	}
}
