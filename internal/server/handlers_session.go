package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/bankline/internal/sessions"
)

type createSessionRequest struct {
	UserID      string `json:"userId"`
	SessionName string `json:"sessionName"`
	Language    string `json:"language"`
	Location    string `json:"location"`
}

func (s *Server) handleCreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	sess, err := s.opts.Sessions.Create(c.Request.Context(), req.UserID, sessions.CreateOpts{
		Name:     req.SessionName,
		Language: req.Language,
		Location: req.Location,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success", "message": "Session created successfully", "session": sess})
}

type addMessageRequest struct {
	SessionID string `json:"sessionId"`
	Question  string `json:"question"`
	Answer    string `json:"answer"`
}

func (s *Server) handleAddMessage(c *gin.Context) {
	var req addMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	ctx := c.Request.Context()
	if _, err := s.opts.Sessions.AddMessage(ctx, req.SessionID, req.Question, req.Answer); err != nil {
		s.writeError(c, err)
		return
	}
	s.respondSession(c, req.SessionID, "Message added successfully")
}

type messageFeedbackRequest struct {
	SessionID    string `json:"sessionId"`
	MessageIndex *int   `json:"messageIndex"`
	Feedback     *int   `json:"feedback"`
}

func (s *Server) handleMessageFeedback(c *gin.Context) {
	var req messageFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" || req.Feedback == nil {
		fail(c, http.StatusBadRequest, "Session ID and feedback are required")
		return
	}
	if err := s.opts.Sessions.MessageFeedback(c.Request.Context(), req.SessionID, req.MessageIndex, *req.Feedback); err != nil {
		s.writeError(c, err)
		return
	}
	s.respondSession(c, req.SessionID, "Message feedback updated successfully")
}

type sessionFeedbackRequest struct {
	SessionID             string `json:"sessionId"`
	SessionFeedbackRating *int   `json:"sessionFeedbackRating"`
	SessionFeedbackText   string `json:"sessionFeedbackText"`
}

func (s *Server) handleSessionFeedback(c *gin.Context) {
	var req sessionFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" || req.SessionFeedbackRating == nil {
		fail(c, http.StatusBadRequest, "Session ID and session feedback rating are required")
		return
	}
	err := s.opts.Sessions.SessionFeedback(c.Request.Context(), req.SessionID, *req.SessionFeedbackRating, req.SessionFeedbackText)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.respondSession(c, req.SessionID, "Session feedback updated successfully")
}

type preferencesRequest struct {
	SessionID string `json:"sessionId"`
	Language  string `json:"language"`
	Location  string `json:"location"`
}

func (s *Server) handlePreferences(c *gin.Context) {
	var req preferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	sess, err := s.opts.Sessions.UpdatePreferences(c.Request.Context(), req.SessionID, req.Language, req.Location)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Session preferences updated successfully", "session": sess})
}

func (s *Server) handleUserSessions(c *gin.Context) {
	list, err := s.opts.Sessions.ListByUser(c.Request.Context(), c.Param("userId"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "results": len(list), "sessions": list})
}

func (s *Server) handleGetSession(c *gin.Context) {
	sess, err := s.opts.Sessions.Get(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "session": sess})
}

func (s *Server) handleEndSession(c *gin.Context) {
	id := c.Param("sessionId")
	if err := s.opts.Sessions.End(c.Request.Context(), id); err != nil {
		s.writeError(c, err)
		return
	}
	s.respondSession(c, id, "Session ended successfully")
}

// respondSession replies with the current state of a session.
func (s *Server) respondSession(c *gin.Context, sessionID, message string) {
	sess, err := s.opts.Sessions.Get(c.Request.Context(), sessionID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": message, "session": sess})
}
