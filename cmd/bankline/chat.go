package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newChatCmd() *cobra.Command {
	var (
		serverURL string
		language  string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with a running bankline server from the terminal",
		Long: "Opens a conversation on a running server and relays each line you type. " +
			"Type /lang <code> to switch language, /quit to end the conversation.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, serverURL, language)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8000", "bankline server URL")
	cmd.Flags().StringVar(&language, "language", "", "conversation language (default from server)")
	return cmd
}

// lineReader yields one line of user input at a time.
type lineReader interface {
	ReadLine() (string, error)
}

type scannerReader struct{ s *bufio.Scanner }

func (r scannerReader) ReadLine() (string, error) {
	if !r.s.Scan() {
		if err := r.s.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.s.Text(), nil
}

func runChat(cmd *cobra.Command, serverURL, language string) error {
	in := cmd.InOrStdin()
	out := cmd.OutOrStdout()

	var lines lineReader = scannerReader{bufio.NewScanner(in)}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		state, err := term.MakeRaw(int(f.Fd()))
		if err != nil {
			return fmt.Errorf("terminal: %w", err)
		}
		defer term.Restore(int(f.Fd()), state)
		t := term.NewTerminal(struct {
			io.Reader
			io.Writer
		}{f, out}, "> ")
		lines, out = t, t
	}

	client := &chatClient{base: strings.TrimRight(serverURL, "/"), http: &http.Client{Timeout: 2 * time.Minute}}
	return chatLoop(cmd.Context(), client, lines, out, language)
}

// chatLoop opens a conversation and relays lines until EOF or /quit.
func chatLoop(ctx context.Context, c *chatClient, lines lineReader, out io.Writer, language string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	conv, err := c.open(ctx, language)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s\r\n", conv.Reply)

	for {
		line, err := lines.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return c.close(ctx, conv.ID)
			}
			return err
		}
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return c.close(ctx, conv.ID)
		case strings.HasPrefix(line, "/lang "):
			lang := strings.TrimSpace(strings.TrimPrefix(line, "/lang "))
			if err := c.setLanguage(ctx, conv.ID, lang); err != nil {
				fmt.Fprintf(out, "error: %v\r\n", err)
				continue
			}
			fmt.Fprintf(out, "[language: %s]\r\n", lang)
			continue
		}

		reply, err := c.send(ctx, conv.ID, line)
		if err != nil {
			fmt.Fprintf(out, "error: %v\r\n", err)
			continue
		}
		fmt.Fprintf(out, "%s\r\n", reply.Reply)
	}
}

// chatClient talks to the /api/conversation endpoints.
type chatClient struct {
	base string
	http *http.Client
}

type openedConversation struct {
	ID       string `json:"conversationId"`
	Phase    string `json:"phase"`
	Language string `json:"language"`
	Reply    string `json:"reply"`
}

type turnReply struct {
	Reply     string `json:"reply"`
	Phase     string `json:"phase"`
	Intent    string `json:"intent"`
	Escalated bool   `json:"escalated"`
}

func (c *chatClient) open(ctx context.Context, language string) (*openedConversation, error) {
	var conv openedConversation
	if err := c.do(ctx, http.MethodPost, "/api/conversation", map[string]string{"language": language}, &conv); err != nil {
		return nil, fmt.Errorf("open conversation: %w", err)
	}
	return &conv, nil
}

func (c *chatClient) send(ctx context.Context, id, text string) (*turnReply, error) {
	var r turnReply
	if err := c.do(ctx, http.MethodPost, "/api/conversation/"+id+"/message", map[string]string{"message": text}, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *chatClient) setLanguage(ctx context.Context, id, language string) error {
	return c.do(ctx, http.MethodPatch, "/api/conversation/"+id+"/language", map[string]string{"language": language}, nil)
}

func (c *chatClient) close(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/conversation/"+id+"/close", map[string]any{}, nil)
}

// do sends body as JSON and decodes a 2xx response into out. Error
// responses surface the server's message.
func (c *chatClient) do(ctx context.Context, method, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Message string `json:"message"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("%s (%d)", apiErr.Message, resp.StatusCode)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
