package bridge

import (
	"context"
	"encoding/json"
	"fmt"
)

// Worker function names.
const (
	FuncProcessQuery       = "process_query"
	FuncChat               = "simple_gemini_chat"
	FuncTextToSpeech       = "text_to_speech"
	FuncSpeechToText       = "speech_to_text"
	FuncSupportedLanguages = "get_supported_languages"
)

// Caller issues one call over the worker channel. *Dispatcher implements it.
type Caller interface {
	Call(ctx context.Context, fn string, args ...any) (json.RawMessage, error)
}

// ChatReply is the worker's answer to a banking question.
type ChatReply struct {
	Response  string `json:"response"`
	Intent    string `json:"intent"`
	Language  string `json:"language,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// Speech is synthesized audio for a piece of text.
type Speech struct {
	AudioBase64 string `json:"audio_base64"`
	Language    string `json:"language"`
	Text        string `json:"text"`
}

// Transcription is the text recognized in an audio file.
type Transcription struct {
	Transcription string `json:"transcription"`
	LanguageCode  string `json:"language_code"`
	AudioFilePath string `json:"audio_file_path"`
	Success       bool   `json:"success"`
}

// Languages lists the languages the worker understands.
type Languages struct {
	SupportedLanguages []string          `json:"supported_languages"`
	LanguageCodes      map[string]string `json:"language_codes"`
}

// Client exposes the worker's functions as typed methods.
type Client struct {
	caller Caller
}

// NewClient returns a Client that issues calls through caller.
func NewClient(caller Caller) *Client {
	return &Client{caller: caller}
}

// Chat sends an authenticated free-text question. A reply with intent
// "general_inquiry" must be escalated rather than shown.
func (c *Client) Chat(ctx context.Context, text, sessionID, language string) (ChatReply, error) {
	var out ChatReply
	err := c.invoke(ctx, &out, FuncChat, text, sessionID, language)
	return out, err
}

// ProcessQuery runs the intent pipeline for a query.
func (c *Client) ProcessQuery(ctx context.Context, text, language, sessionID string) (ChatReply, error) {
	var out ChatReply
	err := c.invoke(ctx, &out, FuncProcessQuery, text, language, sessionID)
	return out, err
}

// TextToSpeech synthesizes text in the given language.
func (c *Client) TextToSpeech(ctx context.Context, text, language string) (Speech, error) {
	var out Speech
	err := c.invoke(ctx, &out, FuncTextToSpeech, text, language)
	return out, err
}

// SpeechToText transcribes the audio file at path.
func (c *Client) SpeechToText(ctx context.Context, path, language string) (Transcription, error) {
	var out Transcription
	err := c.invoke(ctx, &out, FuncSpeechToText, path, language)
	return out, err
}

// SupportedLanguages asks the worker which languages it handles.
func (c *Client) SupportedLanguages(ctx context.Context) (Languages, error) {
	var out Languages
	err := c.invoke(ctx, &out, FuncSupportedLanguages)
	return out, err
}

// Raw issues fn with args and returns the undecoded response.
func (c *Client) Raw(ctx context.Context, fn string, args ...any) (json.RawMessage, error) {
	raw, err := c.caller.Call(ctx, fn, args...)
	if err != nil {
		return nil, err
	}
	if err := workerError(fn, raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) invoke(ctx context.Context, out any, fn string, args ...any) error {
	raw, err := c.Raw(ctx, fn, args...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &ProtocolError{Reason: fmt.Sprintf("decode %s result: %v", fn, err), Line: string(raw)}
	}
	return nil
}

// workerError returns a *WorkerError when raw is an object carrying an
// "error" field.
func workerError(fn string, raw json.RawMessage) error {
	var envelope struct {
		Error *string `json:"error"`
	}
	if len(raw) == 0 || raw[0] != '{' {
		return nil
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Error == nil {
		return nil
	}
	return &WorkerError{Func: fn, Message: *envelope.Error}
}
