package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/bankline/internal/auth"
	"github.com/zulandar/bankline/internal/bridge"
	"github.com/zulandar/bankline/internal/conversation"
	"github.com/zulandar/bankline/internal/escalation"
	"github.com/zulandar/bankline/internal/sessions"
)

type userFacing interface {
	UserMessage() string
}

// fail writes a client error.
func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"status": "fail", "message": message})
}

// writeError maps err onto a status code and the error JSON shape.
func (s *Server) writeError(c *gin.Context, err error) {
	var authErr *auth.AuthError
	var uf userFacing
	var verr *conversation.ValidationError
	var perr *bridge.ProtocolError
	var werr *bridge.WorkerError

	switch {
	case errors.As(err, &authErr):
		status := http.StatusBadRequest
		if authErr == auth.ErrUserNotFound {
			status = http.StatusNotFound
		}
		fail(c, status, authErr.Reason)
	case errors.As(err, &uf) && uf.UserMessage() != "":
		fail(c, http.StatusBadRequest, uf.UserMessage())
	case errors.As(err, &verr):
		fail(c, http.StatusBadRequest, "Invalid "+verr.Field)
	case errors.Is(err, sessions.ErrNotFound):
		fail(c, http.StatusNotFound, "Session not found")
	case errors.Is(err, escalation.ErrNotFound):
		fail(c, http.StatusNotFound, "Question not found")
	case errors.Is(err, conversation.ErrUnknownConversation):
		fail(c, http.StatusNotFound, "Conversation not found")
	case errors.Is(err, bridge.ErrWorkerUnavailable):
		s.serverError(c, http.StatusServiceUnavailable, err)
	case errors.Is(err, bridge.ErrCallTimeout):
		s.serverError(c, http.StatusGatewayTimeout, err)
	case errors.As(err, &perr), errors.As(err, &werr):
		s.serverError(c, http.StatusBadGateway, err)
	default:
		s.serverError(c, http.StatusInternalServerError, err)
	}
}

func (s *Server) serverError(c *gin.Context, status int, err error) {
	s.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	c.JSON(status, gin.H{"status": "error", "message": err.Error()})
}
