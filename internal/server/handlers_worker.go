package server

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type geminiChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	Language  string `json:"language"`
}

func (s *Server) handleGeminiChat(c *gin.Context) {
	var req geminiChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		fail(c, http.StatusBadRequest, "Message is required and cannot be empty")
		return
	}
	if req.Language == "" {
		req.Language = "en"
	}
	reply, err := s.opts.Chat.Chat(c.Request.Context(), strings.TrimSpace(req.Message), req.SessionID, req.Language)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

type processQueryRequest struct {
	Message   string `json:"message"`
	Language  string `json:"language"`
	SessionID string `json:"session_id"`
}

func (s *Server) handleProcessQuery(c *gin.Context) {
	var req processQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Message == "" || req.Language == "" {
		fail(c, http.StatusBadRequest, "Message and language are required")
		return
	}
	reply, err := s.opts.Worker.ProcessQuery(c.Request.Context(), req.Message, req.Language, req.SessionID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

type ttsRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

func (s *Server) handleTextToSpeech(c *gin.Context) {
	var req ttsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Text == "" || req.Language == "" {
		fail(c, http.StatusBadRequest, "Both text and language are required")
		return
	}
	speech, err := s.opts.Worker.TextToSpeech(c.Request.Context(), req.Text, req.Language)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, speech)
}

type sttRequest struct {
	AudioFilePath string `json:"audio_file_path"`
	LanguageCode  string `json:"language_code"`
}

func (s *Server) handleSpeechToText(c *gin.Context) {
	var req sttRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.AudioFilePath == "" || req.LanguageCode == "" {
		fail(c, http.StatusBadRequest, "Both audio_file_path and language_code are required")
		return
	}
	out, err := s.opts.Worker.SpeechToText(c.Request.Context(), req.AudioFilePath, req.LanguageCode)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// handleAudioToText stores an uploaded recording, transcribes it and
// removes it.
func (s *Server) handleAudioToText(c *gin.Context) {
	file, err := c.FormFile("audio")
	if err != nil {
		fail(c, http.StatusBadRequest, "No audio file uploaded")
		return
	}
	lang := c.PostForm("language_code")
	if lang == "" {
		fail(c, http.StatusBadRequest, "language_code is required")
		return
	}

	path := filepath.Join(s.opts.UploadDir, "bankline-"+uuid.NewString()+filepath.Ext(file.Filename))
	if err := c.SaveUploadedFile(file, path); err != nil {
		s.writeError(c, fmt.Errorf("server: save upload: %w", err))
		return
	}
	defer os.Remove(path)

	out, err := s.opts.Worker.SpeechToText(c.Request.Context(), path, lang)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
