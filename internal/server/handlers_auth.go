package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/bankline/internal/auth"
)

type sendOTPRequest struct {
	Name     string `json:"name"`
	MobileNo string `json:"mobileNo"`
}

func (s *Server) handleSendOTP(c *gin.Context) {
	var req sendOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := s.opts.Auth.SendOTP(c.Request.Context(), req.Name, req.MobileNo); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "OTP sent successfully"})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	res, err := s.opts.Auth.Login(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"message":   "Login successful",
		"userId":    res.UserID,
		"sessionId": res.SessionID,
	})
}
