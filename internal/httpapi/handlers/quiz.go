package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"carecall-backend/internal/quiz"
)

// GetQuiz returns the current cognitive quiz.
func (h *Handler) GetQuiz(c *gin.Context) {
	seniorID := c.Query("senior_id")
	if seniorID == "" {
		Fail(c, http.StatusBadRequest, "senior_id is required")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "quiz": h.Quiz.Get(seniorID)})
}

type quizSubmitRequest struct {
	SeniorID string            `json:"senior_id" binding:"required"`
	QuizID   string            `json:"quiz_id" binding:"required"`
	Answers  map[string]string `json:"answers"`
}

// SubmitQuiz records a senior's answers verbatim.
func (h *Handler) SubmitQuiz(c *gin.Context) {
	var req quizSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, http.StatusBadRequest, "senior_id and quiz_id are required")
		return
	}

	err := h.Quiz.Submit(c.Request.Context(), req.SeniorID, req.QuizID, req.Answers)
	switch {
	case errors.Is(err, quiz.ErrEmptyAnswers):
		Fail(c, http.StatusBadRequest, "answers are required")
	case errors.Is(err, quiz.ErrUnknownQuiz):
		Fail(c, http.StatusNotFound, "quiz not found")
	case err != nil:
		h.fail(c, err)
	default:
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "answers recorded"})
	}
}
