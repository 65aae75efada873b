package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"carecall-backend/internal/httpapi/handlers"
	"carecall-backend/internal/logger"
)

// NewRouter wires the endpoints and the request log middleware.
func NewRouter(h *handlers.Handler, log *logger.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery(), requestLog(log))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, "not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, "method not allowed")
	})

	// Both spellings answer directly; no redirect for probes.
	r.GET("/health", h.Health)
	r.GET("/health/", h.Health)

	conv := r.Group("/conversation")
	{
		conv.POST("/start", h.StartConversation)
		conv.POST("/reply", h.ReplyToConversation)
		conv.POST("/end", h.EndConversation)
	}

	v1 := r.Group("/api/v1")
	{
		v1.POST("/conversation", h.HandleConversation)
		v1.GET("/conversation", h.ListConversationLogs)
		v1.GET("/analysis/reports", h.ListAnalysisReports)
	}

	qz := r.Group("/quiz")
	{
		qz.GET("/list", h.GetQuiz)
		qz.POST("/submit", h.SubmitQuiz)
	}

	return r
}

func requestLog(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithRequest(c.Request).
			WithField("status", c.Writer.Status()).
			WithField("duration_ms", time.Since(start).Milliseconds()).
			Info("request")
	}
}
