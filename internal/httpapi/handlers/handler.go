// Package handlers implements the gin endpoints for calls, the
// object-storage pipeline, reports and the quiz.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"carecall-backend/internal/conversation"
	"carecall-backend/internal/logger"
	"carecall-backend/internal/quiz"
	"carecall-backend/internal/store"
)

type Handler struct {
	Conv *conversation.Service
	Quiz *quiz.Service
	Repo *store.Repo
	Log  *logger.Logger
}

func New(conv *conversation.Service, quizSvc *quiz.Service, repo *store.Repo, log *logger.Logger) *Handler {
	return &Handler{Conv: conv, Quiz: quizSvc, Repo: repo, Log: log}
}

// fail maps service errors onto HTTP statuses. Client mistakes come
// back as themselves; everything upstream or unknown is sanitized.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, conversation.ErrEmptyAudio),
		errors.Is(err, conversation.ErrEmptyTranscript):
		Fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, conversation.ErrCallBusy):
		Fail(c, http.StatusConflict, err.Error())
	case errors.Is(err, conversation.ErrNoTurns),
		errors.Is(err, gorm.ErrRecordNotFound):
		Fail(c, http.StatusNotFound, "call not found")
	case errors.Is(err, conversation.ErrUpstream):
		h.Log.WithRequest(c.Request).WithError(err).Error("upstream failure")
		Fail(c, http.StatusBadGateway, "upstream service failed")
	default:
		h.Log.WithRequest(c.Request).WithError(err).Error("request failed")
		Fail(c, http.StatusInternalServerError, "internal error")
	}
}
