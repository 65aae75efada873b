// Package quiz serves the cognitive quiz and records submissions.
package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"carecall-backend/internal/store"
)

var (
	// ErrEmptyAnswers means a submission carried no answers.
	ErrEmptyAnswers = errors.New("quiz: no answers submitted")
	// ErrUnknownQuiz means the submitted quiz id does not exist.
	ErrUnknownQuiz = errors.New("quiz: unknown quiz")
)

// Option is one selectable answer.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question is one multiple-choice question.
type Question struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Options []Option `json:"options"`
}

// Quiz is a fixed set of questions served to every senior.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// memoryQuiz is the current fixed assessment. Content is static so the
// questions stay comparable across sessions.
var memoryQuiz = Quiz{
	ID:    "memory-1",
	Title: "기억력 평가",
	Questions: []Question{
		{
			ID:   "q1",
			Text: "오늘은 무슨 요일인가요?",
			Options: []Option{
				{ID: "q1_opt1", Text: "월요일"},
				{ID: "q1_opt2", Text: "수요일"},
				{ID: "q1_opt3", Text: "금요일"},
				{ID: "q1_opt4", Text: "일요일"},
			},
		},
		{
			ID:   "q2",
			Text: "다음 중 계절이 아닌 것은 무엇인가요?",
			Options: []Option{
				{ID: "q2_opt1", Text: "봄"},
				{ID: "q2_opt2", Text: "여름"},
				{ID: "q2_opt3", Text: "구름"},
				{ID: "q2_opt4", Text: "겨울"},
			},
		},
		{
			ID:   "q3",
			Text: "100에서 7을 빼면 얼마인가요?",
			Options: []Option{
				{ID: "q3_opt1", Text: "93"},
				{ID: "q3_opt2", Text: "97"},
				{ID: "q3_opt3", Text: "83"},
				{ID: "q3_opt4", Text: "103"},
			},
		},
	},
}

type Service struct {
	repo *store.Repo
}

func NewService(repo *store.Repo) *Service { return &Service{repo: repo} }

// Get returns the quiz for a senior. The same fixed quiz is served to
// everyone for now; the senior id keeps the signature stable for
// personalized quizzes later.
func (s *Service) Get(seniorID string) Quiz {
	return memoryQuiz
}

// Submit stores the raw answers without grading them. Answers are kept
// as submitted JSON so the scoring model can change without touching
// old rows.
func (s *Service) Submit(ctx context.Context, seniorID, quizID string, answers map[string]string) error {
	if quizID != memoryQuiz.ID {
		return ErrUnknownQuiz
	}
	if len(answers) == 0 {
		return ErrEmptyAnswers
	}
	raw, err := json.Marshal(answers)
	if err != nil {
		return err
	}
	return s.repo.CreateQuizSubmission(ctx, &store.QuizSubmission{
		SeniorID:    seniorID,
		QuizID:      quizID,
		Answers:     string(raw),
		SubmittedAt: time.Now(),
	})
}
