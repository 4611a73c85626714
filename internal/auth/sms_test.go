package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/zulandar/bankline/internal/config"
)

func TestNewSMSSender_Providers(t *testing.T) {
	ctx := context.Background()

	s, err := NewSMSSender(ctx, config.SMSConfig{Provider: "log"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("log provider: %v", err)
	}
	if _, ok := s.(*LogSender); !ok {
		t.Errorf("sender = %T, want *LogSender", s)
	}
	if err := s.Send(ctx, "9876543210", "hi"); err != nil {
		t.Errorf("LogSender.Send: %v", err)
	}

	if _, err := NewSMSSender(ctx, config.SMSConfig{Provider: "carrier-pigeon"}, zerolog.Nop()); err == nil {
		t.Error("expected error for unknown provider")
	}
	if _, err := NewSMSSender(ctx, config.SMSConfig{Provider: "http"}, zerolog.Nop()); err == nil {
		t.Error("expected error for http provider without url")
	}
}

func TestHTTPSender_Send(t *testing.T) {
	token := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("grant_type") != "client_credentials" {
			http.Error(w, "bad grant", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok-1","token_type":"bearer","expires_in":3600}`))
	}))
	defer token.Close()

	var got smsRequest
	var auth string
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer gateway.Close()

	ctx := context.Background()
	s, err := NewHTTPSender(ctx, config.SMSConfig{
		Provider:     "http",
		URL:          gateway.URL,
		TokenURL:     token.URL,
		ClientID:     "bankline",
		ClientSecret: "secret",
		Sender:       "BNKLNE",
	})
	if err != nil {
		t.Fatalf("NewHTTPSender: %v", err)
	}
	if err := s.Send(ctx, "9876543210", "Your code is 123456"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if auth != "Bearer tok-1" {
		t.Errorf("Authorization = %q", auth)
	}
	if got.To != "9876543210" || got.From != "BNKLNE" || got.Text != "Your code is 123456" {
		t.Errorf("request = %+v", got)
	}
}

func TestHTTPSender_GatewayError(t *testing.T) {
	token := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok-1","token_type":"bearer"}`))
	}))
	defer token.Close()
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer gateway.Close()

	ctx := context.Background()
	s, err := NewHTTPSender(ctx, config.SMSConfig{URL: gateway.URL, TokenURL: token.URL, ClientID: "bankline"})
	if err != nil {
		t.Fatalf("NewHTTPSender: %v", err)
	}
	err = s.Send(ctx, "9876543210", "hi")
	if err == nil || !strings.Contains(err.Error(), "429") || !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("err = %v", err)
	}
}
