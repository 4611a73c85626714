// Package openaichat answers banking questions with an OpenAI chat model
// instead of the language worker.
package openaichat

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"github.com/zulandar/bankline/internal/bridge"
)

// GeneralInquiry is the intent for questions no banking service covers.
const GeneralInquiry = "general_inquiry"

// Intents are the banking services the model may select.
var Intents = []string{
	"check_balance",
	"transfer_money",
	"loan_eligibility",
	"link_aadhaar",
	"activate_mobile_banking",
	"open_fd_rd",
	"card_services",
	"find_branch_atm",
	"mini_statement",
	"fraud_prevention",
	"rekyc_process",
	"reset_mpin",
}

const systemPrompt = `You are a banking assistant for an Indian public sector bank.
Classify the customer's message into exactly one intent and answer it briefly in the requested language.

Intents:
- check_balance: account balance via SMS or mobile banking
- transfer_money: RTGS, NEFT, IMPS or UPI transfers
- loan_eligibility: Kisan Credit Card eligibility and documentation
- link_aadhaar: linking Aadhaar to a bank account
- activate_mobile_banking: activating mobile banking
- open_fd_rd: opening a fixed or recurring deposit
- card_services: debit card activation or blocking
- find_branch_atm: nearby branches and ATMs
- mini_statement: mini statements via missed call, SMS or app
- fraud_prevention: UPI and other fraud prevention tips
- rekyc_process: the Re-KYC process
- reset_mpin: resetting the MPIN

If no intent fits, use "general_inquiry" and leave the response empty.
Never invent account data, rates or balances.
Reply ONLY with a JSON object: {"intent":"<intent>","response":"<answer>"}`

// completer abstracts the go-openai client, enabling test mocks.
type completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Opts configures a Backend.
type Opts struct {
	APIKey  string
	Model   string
	BaseURL string
	Logger  zerolog.Logger
	// For testing: inject a mock client instead of the real API.
	Client completer
}

// Backend classifies and answers questions with a chat completion.
type Backend struct {
	client completer
	model  string
	log    zerolog.Logger
}

// New creates a Backend.
func New(opts Opts) (*Backend, error) {
	if opts.Client == nil && opts.APIKey == "" {
		return nil, fmt.Errorf("openaichat: api key is required")
	}
	model := opts.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	client := opts.Client
	if client == nil {
		cfg := openai.DefaultConfig(opts.APIKey)
		if opts.BaseURL != "" {
			cfg.BaseURL = opts.BaseURL
		}
		client = openai.NewClientWithConfig(cfg)
	}
	return &Backend{
		client: client,
		model:  model,
		log:    opts.Logger.With().Str("component", "openaichat").Logger(),
	}, nil
}

type modelReply struct {
	Intent   string `json:"intent"`
	Response string `json:"response"`
}

// Chat answers text. A reply that cannot be parsed or names an unknown
// intent is reported as a general inquiry.
func (b *Backend) Chat(ctx context.Context, text, sessionID, language string) (bridge.ChatReply, error) {
	if language == "" {
		language = "en"
	}
	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: b.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Language: %s\nMessage: %s", language, text)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.2,
	})
	if err != nil {
		return bridge.ChatReply{}, fmt.Errorf("openaichat: completion: %w", err)
	}

	out := bridge.ChatReply{Intent: GeneralInquiry, Language: language, SessionID: sessionID}
	if len(resp.Choices) == 0 {
		b.log.Warn().Str("session", sessionID).Msg("empty choices")
		return out, nil
	}

	raw := resp.Choices[0].Message.Content
	reply, err := parseReply(raw)
	if err != nil {
		b.log.Warn().Err(err).Str("session", sessionID).Str("raw", raw).Msg("unparseable model reply")
		return out, nil
	}
	out.Intent = reply.Intent
	out.Response = reply.Response
	b.log.Debug().Str("session", sessionID).Str("intent", out.Intent).Msg("classified")
	return out, nil
}

// parseReply decodes the model's JSON object, tolerating a markdown code
// fence around it.
func parseReply(raw string) (modelReply, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	var r modelReply
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &r); err != nil {
		return modelReply{}, err
	}
	r.Intent = NormalizeIntent(r.Intent)
	r.Response = strings.TrimSpace(r.Response)
	return r, nil
}

// NormalizeIntent maps a model-produced intent onto the known set.
func NormalizeIntent(intent string) string {
	intent = strings.ToLower(strings.TrimSpace(intent))
	if slices.Contains(Intents, intent) {
		return intent
	}
	return GeneralInquiry
}
