package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// registerRoutes sets up all API routes on the Gin router.
func (s *Server) registerRoutes(router *gin.Engine) {
	router.GET("/health", s.handleHealth)

	api := router.Group("/api")

	// Language worker.
	api.POST("/gemini/chat", s.handleGeminiChat)
	api.POST("/chat", s.handleProcessQuery)
	api.POST("/text-to-speech", s.handleTextToSpeech)
	api.POST("/speech-to-text", s.handleSpeechToText)
	api.POST("/audio-to-text", s.handleAudioToText)
	api.POST("/escalate", s.handleEscalate)

	authGroup := api.Group("/auth")
	authGroup.POST("/send-otp", s.handleSendOTP)
	authGroup.POST("/login", s.handleLogin)

	session := api.Group("/session")
	session.POST("/create", s.handleCreateSession)
	session.POST("/message", s.handleAddMessage)
	session.PATCH("/msg-feedback", s.handleMessageFeedback)
	session.PATCH("/session-feedback", s.handleSessionFeedback)
	session.PATCH("/preferences", s.handlePreferences)
	session.GET("/user/:userId", s.handleUserSessions)
	session.GET("/:sessionId", s.handleGetSession)
	session.POST("/:sessionId/end", s.handleEndSession)

	admin := api.Group("/admin")
	admin.POST("/unanswered", s.handleAddUnanswered)
	admin.PATCH("/unanswered/:id/answer", s.handleAnswerUnanswered)
	admin.GET("/unanswered/pending", s.handlePendingUnanswered)
	admin.GET("/unanswered/answered", s.handleAnsweredUnanswered)

	conv := api.Group("/conversation")
	conv.POST("", s.handleOpenConversation)
	conv.POST("/:id/message", s.handleConversationMessage)
	conv.PATCH("/:id/language", s.handleConversationLanguage)
	conv.POST("/:id/close", s.handleCloseConversation)
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.opts.Health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	st := s.opts.Health.Status()
	status, code := "ok", http.StatusOK
	if !st.Alive {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "worker": st})
}
