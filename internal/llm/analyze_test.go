package llm

import (
	"context"
	"errors"
	"testing"
)

func TestParseAnalysisDirectJSON(t *testing.T) {
	got, err := ParseAnalysis(`{"summary":"건강 이야기","mood":"calm","risk_level":"low"}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Summary != "건강 이야기" || got.Mood != "calm" || got.RiskLevel != "low" {
		t.Fatalf("unexpected analysis %+v", got)
	}
}

func TestParseAnalysisFencedBlock(t *testing.T) {
	text := "Here you go:\n```json\n{\"summary\":\"ok\",\"mood\":\"happy\",\"risk_level\":\"low\"}\n```"
	got, err := ParseAnalysis(text)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Summary != "ok" || got.Mood != "happy" || got.RiskLevel != "low" {
		t.Fatalf("unexpected analysis %+v", got)
	}
}

func TestParseAnalysisEmbeddedInProse(t *testing.T) {
	text := `분석 결과는 다음과 같습니다. {"summary":"외로움 호소","mood":"sad","risk_level":"medium"} 참고하세요.`
	got, err := ParseAnalysis(text)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Mood != "sad" || got.RiskLevel != "medium" {
		t.Fatalf("unexpected analysis %+v", got)
	}
}

func TestParseAnalysisNoJSON(t *testing.T) {
	_, err := ParseAnalysis("오늘 대화는 평온했습니다.")
	if !errors.Is(err, ErrAnalysisParse) {
		t.Fatalf("expected ErrAnalysisParse, got %v", err)
	}
}

type staticProvider struct {
	text string
	err  error
}

func (p *staticProvider) Chat(context.Context, ChatRequest) (string, error) {
	return p.text, p.err
}

func TestReplyFallsBackOnEmptyCompletion(t *testing.T) {
	gen := NewGenerator(&staticProvider{text: ""}, 5)

	reply, training, err := gen.Reply(context.Background(), nil, Profile{Name: "김영희", Age: 80})
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if training != nil {
		t.Fatalf("unexpected training module %+v", training)
	}
	if reply != FallbackReply {
		t.Fatalf("expected fallback reply, got %q", reply)
	}
}

func TestReplyDetectsTrainingEnvelope(t *testing.T) {
	gen := NewGenerator(&staticProvider{
		text: `{"reply":"퀴즈를 풀어볼까요?","training":{"type":"training","tts_prompt":"퀴즈 시간이에요!","module_type":"quiz","module_id":"memory-1"}}`,
	}, 5)

	reply, training, err := gen.Reply(context.Background(), nil, Profile{Name: "김영희", Age: 80})
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if training == nil {
		t.Fatal("expected a training module")
	}
	if training.TTSPrompt != "퀴즈 시간이에요!" || training.ModuleType != "quiz" {
		t.Fatalf("unexpected training module %+v", training)
	}
	if reply != "퀴즈를 풀어볼까요?" {
		t.Fatalf("unexpected reply %q", reply)
	}
}

func TestAnalyzeEmptyCompletion(t *testing.T) {
	gen := NewGenerator(&staticProvider{text: ""}, 5)

	_, err := gen.Analyze(context.Background(), "AI: 안녕하세요\n어르신: 네\n", Profile{Name: "김영희"})
	if !errors.Is(err, ErrAnalysisParse) {
		t.Fatalf("expected ErrAnalysisParse, got %v", err)
	}
}
