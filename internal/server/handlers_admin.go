package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/bankline/internal/escalation"
	"github.com/zulandar/bankline/internal/models"
)

func (s *Server) handleAddUnanswered(c *gin.Context) {
	var req escalation.AddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	q, err := s.opts.Escalations.Add(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success", "message": "Unanswered question saved successfully", "data": q})
}

type escalateRequest struct {
	MobileNo  string `json:"mobileNo"`
	Question  string `json:"question"`
	SessionID string `json:"sessionId"`
}

// handleEscalate queues a question from the chat UI. The customer is always
// told when it is answered.
func (s *Server) handleEscalate(c *gin.Context) {
	var req escalateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	q, err := s.opts.Escalations.Add(c.Request.Context(), escalation.AddRequest{
		MobileNo:   req.MobileNo,
		Question:   req.Question,
		NotifyUser: true,
		SessionID:  req.SessionID,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success", "message": "Question escalated", "data": q})
}

type answerRequest struct {
	AdminAnswer string `json:"adminAnswer"`
}

func (s *Server) handleAnswerUnanswered(c *gin.Context) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Answer is required")
		return
	}
	q, err := s.opts.Escalations.Answer(c.Request.Context(), c.Param("id"), req.AdminAnswer)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Question answered successfully", "data": q})
}

func (s *Server) handlePendingUnanswered(c *gin.Context) {
	list, err := s.opts.Escalations.ListPending(c.Request.Context())
	s.respondQuestions(c, list, err)
}

func (s *Server) handleAnsweredUnanswered(c *gin.Context) {
	list, err := s.opts.Escalations.ListAnswered(c.Request.Context())
	s.respondQuestions(c, list, err)
}

func (s *Server) respondQuestions(c *gin.Context, list []models.UnansweredQuestion, err error) {
	if err != nil {
		s.writeError(c, err)
		return
	}
	if list == nil {
		list = []models.UnansweredQuestion{}
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "results": len(list), "data": list})
}
