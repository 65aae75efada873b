package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

type startRequest struct {
	SeniorID string `json:"senior_id" binding:"required"`
}

// StartConversation opens a call and returns the opening greeting.
func (h *Handler) StartConversation(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, http.StatusBadRequest, "senior_id is required")
		return
	}

	res, err := h.Conv.StartCall(c.Request.Context(), req.SeniorID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"call_id": res.CallID,
		"ai_text": res.AIText,
		"tts_url": res.TTSURL,
		"message": "call started",
	})
}

// ReplyToConversation accepts one audio turn as multipart form data.
func (h *Handler) ReplyToConversation(c *gin.Context) {
	seniorID := c.PostForm("senior_id")
	callID := c.PostForm("call_id")
	if seniorID == "" || callID == "" {
		Fail(c, http.StatusBadRequest, "senior_id and call_id are required")
		return
	}

	audio, mimeType, err := formAudio(c, "audio")
	if err != nil {
		Fail(c, http.StatusBadRequest, "audio file is required")
		return
	}

	res, err := h.Conv.SubmitReply(c.Request.Context(), seniorID, callID, audio, mimeType)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"ai_text":     res.AIText,
		"senior_text": res.SeniorText,
		"tts_url":     res.TTSURL,
		"message":     "reply generated",
	})
}

type endRequest struct {
	SeniorID string `json:"senior_id" binding:"required"`
	CallID   string `json:"call_id" binding:"required"`
}

// EndConversation closes a call and returns the stored analysis.
func (h *Handler) EndConversation(c *gin.Context) {
	var req endRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, http.StatusBadRequest, "senior_id and call_id are required")
		return
	}

	res, err := h.Conv.EndCall(c.Request.Context(), req.SeniorID, req.CallID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"summary":    res.Summary,
		"mood":       res.Mood,
		"risk_level": res.RiskLevel,
		"message":    "call ended",
	})
}

// formAudio reads one uploaded file field and returns its bytes and
// declared content type.
func formAudio(c *gin.Context, field string) ([]byte, string, error) {
	header, err := c.FormFile(field)
	if err != nil {
		return nil, "", err
	}
	f, err := header.Open()
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", err
	}
	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "audio/mpeg"
	}
	return data, mimeType, nil
}
