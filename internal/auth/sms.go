package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/zulandar/bankline/internal/config"
	"golang.org/x/oauth2/clientcredentials"
)

// Sender delivers a text message to a mobile number.
type Sender interface {
	Send(ctx context.Context, mobileNo, text string) error
}

// NewSMSSender builds the sender selected by cfg.Provider.
func NewSMSSender(ctx context.Context, cfg config.SMSConfig, log zerolog.Logger) (Sender, error) {
	switch cfg.Provider {
	case "", "log":
		return NewLogSender(log), nil
	case "http":
		return NewHTTPSender(ctx, cfg)
	default:
		return nil, fmt.Errorf("auth: unsupported sms provider %q", cfg.Provider)
	}
}

// LogSender writes messages to the application log instead of sending them.
type LogSender struct {
	log zerolog.Logger
}

// NewLogSender returns a LogSender.
func NewLogSender(log zerolog.Logger) *LogSender {
	return &LogSender{log: log.With().Str("component", "sms").Logger()}
}

// Send logs the message.
func (s *LogSender) Send(_ context.Context, mobileNo, text string) error {
	s.log.Info().Str("to", mobileNo).Str("text", text).Msg("sms")
	return nil
}

// HTTPSender posts messages to an SMS gateway that authenticates with
// OAuth2 client credentials.
type HTTPSender struct {
	client *http.Client
	url    string
	from   string
}

type smsRequest struct {
	To   string `json:"to"`
	From string `json:"from,omitempty"`
	Text string `json:"text"`
}

// NewHTTPSender returns an HTTPSender whose client fetches and refreshes its
// token from cfg.TokenURL.
func NewHTTPSender(ctx context.Context, cfg config.SMSConfig) (*HTTPSender, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("auth: sms url is required")
	}
	if cfg.TokenURL == "" || cfg.ClientID == "" {
		return nil, fmt.Errorf("auth: sms token url and client id are required")
	}
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	return &HTTPSender{client: cc.Client(ctx), url: cfg.URL, from: cfg.Sender}, nil
}

// Send posts the message to the gateway.
func (s *HTTPSender) Send(ctx context.Context, mobileNo, text string) error {
	body, err := json.Marshal(smsRequest{To: mobileNo, From: s.from, Text: text})
	if err != nil {
		return fmt.Errorf("auth: encode sms: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("auth: build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("auth: send sms: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("auth: sms gateway returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
