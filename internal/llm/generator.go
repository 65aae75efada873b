package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrAnalysisParse marks an analysis response that could not be coerced into
// the expected JSON shape after every fallback stage.
var ErrAnalysisParse = errors.New("llm: failed to parse analysis JSON")

// FallbackReply is returned when the model produced no usable reply text.
const FallbackReply = "죄송합니다, 다시 말씀해 주시겠어요?"

// HistoryTurn is one prior utterance handed to the reply prompt.
type HistoryTurn struct {
	Speaker string // "senior" | "ai"
	Text    string
}

// Profile is the read-only senior context used to personalize prompts.
type Profile struct {
	Name        string
	Age         int
	Preferences string
}

// Analysis is the structured end-of-call result.
type Analysis struct {
	Summary   string `json:"summary"`
	Mood      string `json:"mood"`
	RiskLevel string `json:"risk_level"`
}

// TrainingModule is an optional structured payload the model may emit instead
// of a plain spoken reply, describing a cognitive-training exercise.
type TrainingModule struct {
	Type       string         `json:"type"`
	TTSPrompt  string         `json:"tts_prompt"`
	ModuleType string         `json:"module_type"`
	ModuleData map[string]any `json:"module_data"`
	ModuleID   string         `json:"module_id"`
}

// Generator builds prompts and interprets completions for the two personas
// the pipeline needs: companion replies and end-of-call analysis.
type Generator struct {
	provider     Provider
	historyLimit int
}

func NewGenerator(provider Provider, historyLimit int) *Generator {
	if historyLimit <= 0 {
		historyLimit = 5
	}
	return &Generator{provider: provider, historyLimit: historyLimit}
}

const replyPersona = "You are a warm, caring Korean-speaking AI companion " +
	"talking to an elderly person. Always respond in polite, natural Korean, " +
	"in 1-2 sentences, showing empathy and interest in their daily life and well-being."

const analysisPersona = "You are an expert mental health and wellness analyst. " +
	"You analyze conversations with elderly users and return ONLY valid JSON " +
	"with the keys summary, mood, risk_level in Korean."

// Reply generates a short conversational response. It never returns empty
// text: an empty or unrecognizable completion falls back to FallbackReply.
// When the completion carries a training payload, it is returned alongside
// the spoken text.
func (g *Generator) Reply(ctx context.Context, history []HistoryTurn, profile Profile) (string, *TrainingModule, error) {
	req := ChatRequest{
		Messages: []Message{
			{Role: "system", Content: replyPersona},
			{Role: "user", Content: g.replyPrompt(history, profile)},
		},
	}

	text, err := g.provider.Chat(ctx, req)
	if err != nil {
		return "", nil, err
	}

	reply, training := splitTraining(text)
	reply = strings.TrimSpace(reply)
	if reply == "" {
		reply = FallbackReply
	}
	return reply, training, nil
}

// Analyze runs the analysis persona over a full transcript and parses the
// structured result out of the completion.
func (g *Generator) Analyze(ctx context.Context, transcript string, profile Profile) (Analysis, error) {
	temp := 0.3 // lower temperature keeps the JSON output stable
	req := ChatRequest{
		Messages: []Message{
			{Role: "system", Content: analysisPersona},
			{Role: "user", Content: analysisPrompt(transcript, profile)},
		},
		Temperature: &temp,
	}

	text, err := g.provider.Chat(ctx, req)
	if err != nil {
		return Analysis{}, err
	}
	if strings.TrimSpace(text) == "" {
		return Analysis{}, fmt.Errorf("%w: empty completion", ErrAnalysisParse)
	}
	return ParseAnalysis(text)
}

func (g *Generator) replyPrompt(history []HistoryTurn, profile Profile) string {
	var b strings.Builder

	name := profile.Name
	if name == "" {
		name = "어르신"
	}
	fmt.Fprintf(&b, "대화 상대: %s", name)
	if profile.Age > 0 {
		fmt.Fprintf(&b, " (%d세)", profile.Age)
	}
	if profile.Preferences != "" {
		fmt.Fprintf(&b, "\n관심사: %s", profile.Preferences)
	}

	b.WriteString("\n\n최근 대화:\n")
	recent := history
	if len(recent) > g.historyLimit {
		recent = recent[len(recent)-g.historyLimit:]
	}
	for _, turn := range recent {
		b.WriteString(SpeakerDisplay(turn.Speaker) + ": " + turn.Text + "\n")
	}

	b.WriteString("\n위 대화를 바탕으로, 따뜻하고 친근한 톤으로 1-2문장의 짧은 한국어 응답을 생성해주세요. ")
	b.WriteString("어르신의 말씀에 공감하고 자연스럽게 대화를 이어가세요.")
	return b.String()
}

func analysisPrompt(transcript string, profile Profile) string {
	name := profile.Name
	if name == "" {
		name = "어르신"
	}
	subject := name
	if profile.Age > 0 {
		subject = fmt.Sprintf("%s (%d세)", name, profile.Age)
	}

	return fmt.Sprintf(`다음은 %s와의 대화 내용입니다:

%s

위 대화를 분석하여 다음 정보를 JSON 형식으로 제공해주세요:

1. summary: 대화 내용을 2-3문장으로 요약
2. mood: 어르신의 전반적인 기분 평가 (happy, sad, neutral, anxious, depressed 중 선택)
3. risk_level: 건강/안전 위험도 평가 (low, medium, high 중 선택)

응답은 반드시 다음과 같은 유효한 JSON 형식이어야 합니다:
{
  "summary": "대화 요약 내용",
  "mood": "기분 상태",
  "risk_level": "위험도"
}

JSON만 출력하고 다른 설명은 포함하지 마세요.`, subject, transcript)
}

// SpeakerDisplay renders a turn speaker for prompt and transcript text.
func SpeakerDisplay(speaker string) string {
	if speaker == "ai" {
		return "AI"
	}
	return "어르신"
}

var (
	fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	analysisRe   = regexp.MustCompile(`(?s)\{[^{}]*"summary"[^{}]*"mood"[^{}]*"risk_level"[^{}]*\}`)
)

// ParseAnalysis coerces completion text into an Analysis. Models do not
// reliably emit pure JSON, so three stages are tried: direct parse, a fenced
// code block, then any {...summary...mood...risk_level...} substring.
func ParseAnalysis(text string) (Analysis, error) {
	var out Analysis
	if err := json.Unmarshal([]byte(text), &out); err == nil {
		return out, nil
	}

	if m := fencedJSONRe.FindStringSubmatch(text); m != nil {
		if err := json.Unmarshal([]byte(m[1]), &out); err == nil {
			return out, nil
		}
	}

	if m := analysisRe.FindString(text); m != "" {
		if err := json.Unmarshal([]byte(m), &out); err == nil {
			return out, nil
		}
	}

	return Analysis{}, fmt.Errorf("%w: %s", ErrAnalysisParse, truncateText(text))
}

// splitTraining checks whether the completion is a structured envelope with a
// training payload. Plain text passes through untouched.
func splitTraining(text string) (string, *TrainingModule) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return text, nil
	}
	var envelope struct {
		Reply    string          `json:"reply"`
		Training *TrainingModule `json:"training"`
	}
	if err := json.Unmarshal([]byte(trimmed), &envelope); err != nil {
		return text, nil
	}
	if envelope.Training == nil {
		if envelope.Reply != "" {
			return envelope.Reply, nil
		}
		return text, nil
	}
	return envelope.Reply, envelope.Training
}

func truncateText(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		return s[:200]
	}
	return s
}
