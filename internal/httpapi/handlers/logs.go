package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HandleConversation runs the object-storage pipeline on an uploaded
// recording. The response is either a training-module JSON payload or
// the synthesized reply audio with a signed link in X-Audio-Url.
func (h *Handler) HandleConversation(c *gin.Context) {
	seniorID := c.PostForm("seniorId")
	guardianID := c.PostForm("guardianId")
	if seniorID == "" || guardianID == "" {
		Fail(c, http.StatusBadRequest, "seniorId and guardianId are required")
		return
	}

	header, err := c.FormFile("audio_file")
	if err != nil {
		Fail(c, http.StatusBadRequest, "audio_file is required")
		return
	}
	audio, _, err := formAudio(c, "audio_file")
	if err != nil {
		Fail(c, http.StatusBadRequest, "audio_file is unreadable")
		return
	}

	res, err := h.Conv.HandleConversation(c.Request.Context(), seniorID, guardianID, header.Filename, audio)
	if err != nil {
		h.fail(c, err)
		return
	}

	if res.Training != nil {
		c.JSON(http.StatusOK, gin.H{
			"type":        "training",
			"tts_prompt":  res.Training.TTSPrompt,
			"module_type": res.Training.ModuleType,
			"module_data": res.Training.ModuleData,
			"module_id":   res.Training.ModuleID,
			"audio_url":   res.TrainingAudioURL,
		})
		return
	}

	c.Header("X-Audio-Url", res.AudioURL)
	c.Data(http.StatusOK, "audio/mpeg", res.Audio)
}

// ListConversationLogs returns a senior's recent logs, newest first.
func (h *Handler) ListConversationLogs(c *gin.Context) {
	seniorID := c.Query("senior_id")
	if seniorID == "" {
		Fail(c, http.StatusBadRequest, "senior_id is required")
		return
	}

	logs, err := h.Conv.ListLogs(c.Request.Context(), seniorID)
	if err != nil {
		h.fail(c, err)
		return
	}

	items := make([]gin.H, 0, len(logs))
	for _, log := range logs {
		items = append(items, gin.H{
			"id":              log.ID,
			"speaker":         log.Speaker,
			"transcript":      log.Transcript,
			"audio_url":       log.AudioURL,
			"analysis_status": log.AnalysisStatus,
			"timestamp":       log.Timestamp,
		})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "logs": items})
}

// ListAnalysisReports returns a guardian's daily reports, newest first.
func (h *Handler) ListAnalysisReports(c *gin.Context) {
	guardianID := c.Query("guardian_id")
	if guardianID == "" {
		Fail(c, http.StatusBadRequest, "guardian_id is required")
		return
	}

	reports, err := h.Repo.ListReportsByGuardian(c.Request.Context(), guardianID)
	if err != nil {
		h.fail(c, err)
		return
	}

	items := make([]gin.H, 0, len(reports))
	for _, report := range reports {
		items = append(items, gin.H{
			"id":            report.ID,
			"senior_id":     report.SeniorID,
			"date":          report.Date,
			"sentiment":     report.Sentiment,
			"word_count":    report.WordCount,
			"ttr":           report.TTR,
			"speaking_rate": report.SpeakingRate,
			"summary":       report.Summary,
		})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "reports": items})
}
