// Package server exposes bankline over HTTP.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/zulandar/bankline/internal/auth"
	"github.com/zulandar/bankline/internal/bridge"
	"github.com/zulandar/bankline/internal/conversation"
	"github.com/zulandar/bankline/internal/escalation"
	"github.com/zulandar/bankline/internal/models"
	"github.com/zulandar/bankline/internal/sessions"
)

// AuthService logs users in with OTPs.
type AuthService interface {
	SendOTP(ctx context.Context, name, mobileNo string) error
	Login(ctx context.Context, req auth.LoginRequest) (*auth.LoginResult, error)
}

// SessionStore persists chat sessions.
type SessionStore interface {
	Create(ctx context.Context, userID string, opts sessions.CreateOpts) (*models.ChatSession, error)
	AddMessage(ctx context.Context, sessionID, question, answer string) (*models.SessionMessage, error)
	MessageFeedback(ctx context.Context, sessionID string, index *int, feedback int) error
	SessionFeedback(ctx context.Context, sessionID string, rating int, text string) error
	UpdatePreferences(ctx context.Context, sessionID, language, location string) (*models.ChatSession, error)
	ListByUser(ctx context.Context, userID string) ([]models.ChatSession, error)
	Get(ctx context.Context, sessionID string) (*models.ChatSession, error)
	End(ctx context.Context, sessionID string) error
}

// EscalationStore holds questions waiting for a human answer.
type EscalationStore interface {
	Add(ctx context.Context, req escalation.AddRequest) (*models.UnansweredQuestion, error)
	Answer(ctx context.Context, id, answer string) (*models.UnansweredQuestion, error)
	ListPending(ctx context.Context) ([]models.UnansweredQuestion, error)
	ListAnswered(ctx context.Context) ([]models.UnansweredQuestion, error)
}

// Conversations runs chat-widget conversations.
type Conversations interface {
	Open(language string) (conversation.Session, conversation.Reply)
	Send(ctx context.Context, id, text string) (conversation.Reply, error)
	SetLanguage(ctx context.Context, id, language string) (conversation.Session, error)
	Close(ctx context.Context, id string, rating *int, feedback string) error
}

// Worker is the language worker's non-chat functions.
type Worker interface {
	ProcessQuery(ctx context.Context, text, language, sessionID string) (bridge.ChatReply, error)
	TextToSpeech(ctx context.Context, text, language string) (bridge.Speech, error)
	SpeechToText(ctx context.Context, path, language string) (bridge.Transcription, error)
}

// Health reports the worker's state.
type Health interface {
	Status() bridge.Status
}

// Opts holds the services the server routes to.
type Opts struct {
	Auth          AuthService
	Sessions      SessionStore
	Escalations   EscalationStore
	Conversations Conversations
	Chat          conversation.BankingChat
	Worker        Worker
	Health        Health
	Port          int
	CORSOrigins   []string
	// UploadDir receives audio uploads while they are transcribed.
	UploadDir string
	Logger    zerolog.Logger
	Out       io.Writer
}

// Server is the HTTP API.
type Server struct {
	opts    Opts
	log     zerolog.Logger
	handler http.Handler
}

// New validates opts and builds the router.
func New(opts Opts) (*Server, error) {
	switch {
	case opts.Auth == nil:
		return nil, fmt.Errorf("server: auth is required")
	case opts.Sessions == nil:
		return nil, fmt.Errorf("server: sessions is required")
	case opts.Escalations == nil:
		return nil, fmt.Errorf("server: escalations is required")
	case opts.Conversations == nil:
		return nil, fmt.Errorf("server: conversations is required")
	case opts.Chat == nil:
		return nil, fmt.Errorf("server: chat is required")
	case opts.Worker == nil:
		return nil, fmt.Errorf("server: worker is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8000
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	if opts.UploadDir == "" {
		opts.UploadDir = os.TempDir()
	}

	s := &Server{opts: opts, log: opts.Logger.With().Str("component", "server").Logger()}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())
	s.registerRoutes(router)

	s.handler = cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         300,
	})(router)
	return s, nil
}

// Handler returns the root handler including CORS.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured port. It blocks until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.opts.Port),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if s.opts.Out != nil {
		fmt.Fprintf(s.opts.Out, "bankline API listening on http://localhost:%d\n", s.opts.Port)
	}
	s.log.Info().Int("port", s.opts.Port).Msg("listening")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// requestLogger logs one line per request.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	}
}
