package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// fakeConversationAPI mimics the /api/conversation endpoints.
type fakeConversationAPI struct {
	mu       sync.Mutex
	messages []string
	language string
	closed   bool
}

func (f *fakeConversationAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/conversation", func(w http.ResponseWriter, r *http.Request) {
		var req struct{ Language string }
		json.NewDecoder(r.Body).Decode(&req)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{
			"conversationId": "c-1", "phase": "phone_request", "language": "en",
			"reply": "Welcome! Please provide your registered mobile number.",
		})
	})
	mux.HandleFunc("POST /api/conversation/c-1/message", func(w http.ResponseWriter, r *http.Request) {
		var req struct{ Message string }
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.messages = append(f.messages, req.Message)
		f.mu.Unlock()
		if req.Message == "fail" {
			w.WriteHeader(http.StatusServiceUnavailable)
			io.WriteString(w, `{"status":"error","message":"Language worker unavailable"}`)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"reply": "echo: " + req.Message, "phase": "phone_request"})
	})
	mux.HandleFunc("PATCH /api/conversation/c-1/language", func(w http.ResponseWriter, r *http.Request) {
		var req struct{ Language string }
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.language = req.Language
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{"conversationId": "c-1", "language": req.Language})
	})
	mux.HandleFunc("POST /api/conversation/c-1/close", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		io.WriteString(w, `{"status":"success"}`)
	})
	return mux
}

func TestChatLoop(t *testing.T) {
	api := &fakeConversationAPI{}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	in := scannerReader{bufioScanner("9876543210\n\n/lang hi\nfail\n/quit\nnever sent\n")}
	var out bytes.Buffer
	client := &chatClient{base: srv.URL, http: srv.Client()}

	if err := chatLoop(context.Background(), client, in, &out, ""); err != nil {
		t.Fatalf("chatLoop: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"Welcome! Please provide",
		"echo: 9876543210",
		"[language: hi]",
		"error: Language worker unavailable (503)",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if len(api.messages) != 2 || api.messages[0] != "9876543210" || api.messages[1] != "fail" {
		t.Errorf("messages = %v", api.messages)
	}
	if api.language != "hi" {
		t.Errorf("language = %q, want hi", api.language)
	}
	if !api.closed {
		t.Error("conversation should be closed on /quit")
	}
}

func TestChatLoop_EOFCloses(t *testing.T) {
	api := &fakeConversationAPI{}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	client := &chatClient{base: srv.URL, http: srv.Client()}
	if err := chatLoop(context.Background(), client, scannerReader{bufioScanner("hello\n")}, io.Discard, "en"); err != nil {
		t.Fatalf("chatLoop: %v", err)
	}
	if !api.closed {
		t.Error("conversation should be closed at EOF")
	}
}

func TestChatLoop_ServerDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client := &chatClient{base: srv.URL, http: http.DefaultClient}
	err := chatLoop(context.Background(), client, scannerReader{bufioScanner("")}, io.Discard, "")
	if err == nil || !strings.Contains(err.Error(), "open conversation") {
		t.Fatalf("err = %v", err)
	}
}

func TestChatCmd_Flags(t *testing.T) {
	cmd := newChatCmd()
	if got := cmd.Flags().Lookup("server").DefValue; got != "http://localhost:8000" {
		t.Errorf("--server default = %q", got)
	}
}

func bufioScanner(s string) *bufio.Scanner {
	return bufio.NewScanner(strings.NewReader(s))
}
