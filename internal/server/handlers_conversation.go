package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type openConversationRequest struct {
	Language string `json:"language"`
}

func (s *Server) handleOpenConversation(c *gin.Context) {
	var req openConversationRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	sess, reply := s.opts.Conversations.Open(req.Language)
	c.JSON(http.StatusCreated, gin.H{
		"conversationId": sess.ID,
		"phase":          sess.Phase,
		"language":       sess.Language,
		"reply":          reply.Text,
	})
}

type conversationMessageRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleConversationMessage(c *gin.Context) {
	var req conversationMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	reply, err := s.opts.Conversations.Send(c.Request.Context(), c.Param("id"), req.Message)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

type conversationLanguageRequest struct {
	Language string `json:"language"`
}

func (s *Server) handleConversationLanguage(c *gin.Context) {
	var req conversationLanguageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	sess, err := s.opts.Conversations.SetLanguage(c.Request.Context(), c.Param("id"), req.Language)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversationId": sess.ID, "phase": sess.Phase, "language": sess.Language})
}

type closeConversationRequest struct {
	Rating   *int   `json:"rating"`
	Feedback string `json:"feedback"`
}

func (s *Server) handleCloseConversation(c *gin.Context) {
	var req closeConversationRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	if err := s.opts.Conversations.Close(c.Request.Context(), c.Param("id"), req.Rating, req.Feedback); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Conversation closed"})
}
