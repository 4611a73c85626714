// Package conversation implements the chat widget's dialogue: phone capture,
// OTP verification and authenticated banking chat.
package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/bankline/internal/bridge"
)

// GeneralInquiry is the intent the model reports for questions outside its
// authorized banking intents. Such questions go to a human.
const GeneralInquiry = "general_inquiry"

// GuestName is the name new users are registered under on first OTP send.
const GuestName = "Guest User"

// User-visible prompts.
const (
	MsgGreeting      = "Welcome! To get started with personalized banking services, please provide your registered mobile number."
	MsgInvalidPhone  = "Please provide a valid Indian mobile number (10 digits starting with 6-9)."
	MsgInvalidOTP    = "Please enter a valid 6-digit OTP."
	MsgRejectedOTP   = "Invalid or expired OTP. Please try again."
	MsgWelcome       = "Welcome! You are now authenticated. I can help you with banking services, account inquiries, transactions, and more. What would you like to know?"
	MsgApology       = "I apologize for the technical difficulty. Please try again or contact customer support."
	MsgChatTrouble   = "I'm having trouble processing your request. Please try again later."
	MsgEmptyResponse = "I couldn't process your request at this time."
)

// OTPService sends and verifies one-time passwords.
type OTPService interface {
	SendOTP(ctx context.Context, name, mobileNo string) error
	// VerifyOTP checks the code and returns the user and the persistent
	// chat session opened for them.
	VerifyOTP(ctx context.Context, mobileNo, otp, language string) (userID, sessionID string, err error)
}

// BankingChat answers authenticated banking questions.
type BankingChat interface {
	Chat(ctx context.Context, text, sessionID, language string) (bridge.ChatReply, error)
}

// Escalator queues a question for a human to answer.
type Escalator interface {
	Escalate(ctx context.Context, mobileNo, question, sessionID string) error
}

// TurnRecorder persists the authenticated part of a conversation.
type TurnRecorder interface {
	RecordTurn(ctx context.Context, sessionID, question, answer string) error
	EndSession(ctx context.Context, sessionID string, rating *int, feedback string) error
}

// languageRecorder is optionally implemented by a TurnRecorder that stores
// the user's language preference.
type languageRecorder interface {
	SetLanguage(ctx context.Context, sessionID, language string) error
}

// Session is the state of one chat widget. It is owned by the Manager and
// only mutated while its turn lock is held.
type Session struct {
	ID         string    `json:"conversationId"`
	Phase      Phase     `json:"phase"`
	Phone      string    `json:"phone,omitempty"`
	UserID     string    `json:"userId,omitempty"`
	SessionID  string    `json:"sessionId,omitempty"`
	Language   string    `json:"language"`
	LastActive time.Time `json:"lastActive"`
}

// Reply is what the user sees after one turn.
type Reply struct {
	Text      string `json:"reply"`
	Phase     Phase  `json:"phase"`
	Intent    string `json:"intent,omitempty"`
	Escalated bool   `json:"escalated,omitempty"`
}

// MachineOpts configures a Machine.
type MachineOpts struct {
	OTP       OTPService
	Chat      BankingChat
	Escalator Escalator
	Recorder  TurnRecorder
	// SupportPhone is the human support line named in deflection messages.
	SupportPhone string
	Logger       zerolog.Logger
}

// Machine advances Sessions one message at a time. It holds no per-session
// state and is safe for concurrent use on distinct sessions.
type Machine struct {
	otp          OTPService
	chat         BankingChat
	escalator    Escalator
	recorder     TurnRecorder
	supportPhone string
	log          zerolog.Logger
}

// NewMachine validates opts and returns a Machine.
func NewMachine(opts MachineOpts) (*Machine, error) {
	if opts.OTP == nil {
		return nil, fmt.Errorf("conversation: otp service is required")
	}
	if opts.Chat == nil {
		return nil, fmt.Errorf("conversation: chat is required")
	}
	if opts.Escalator == nil {
		return nil, fmt.Errorf("conversation: escalator is required")
	}
	if opts.Recorder == nil {
		return nil, fmt.Errorf("conversation: recorder is required")
	}
	phone := opts.SupportPhone
	if phone == "" {
		phone = "1800-233-4526"
	}
	return &Machine{
		otp:          opts.OTP,
		chat:         opts.Chat,
		escalator:    opts.Escalator,
		recorder:     opts.Recorder,
		supportPhone: phone,
		log:          opts.Logger.With().Str("component", "conversation").Logger(),
	}, nil
}

// Handle processes one user message and returns the text to show. The
// session's phase only advances on success.
func (m *Machine) Handle(ctx context.Context, s *Session, text string) Reply {
	var r Reply
	switch s.Phase {
	case PhoneRequest:
		r = m.handlePhone(ctx, s, text)
	case OtpVerification:
		r = m.handleOTP(ctx, s, text)
	case Authenticated:
		r = m.handleChat(ctx, s, text)
	default:
		m.log.Error().Str("conversation", s.ID).Int("phase", int(s.Phase)).Msg("unknown phase")
		r = Reply{Text: MsgApology}
	}
	r.Phase = s.Phase
	return r
}

func (m *Machine) handlePhone(ctx context.Context, s *Session, text string) Reply {
	phone, ok := ExtractPhone(text)
	if !ok {
		return Reply{Text: MsgInvalidPhone}
	}
	return m.sendOTP(ctx, s, phone)
}

func (m *Machine) sendOTP(ctx context.Context, s *Session, phone string) Reply {
	if err := m.otp.SendOTP(ctx, GuestName, phone); err != nil {
		m.log.Warn().Err(err).Str("conversation", s.ID).Msg("send otp failed")
		if msg, ok := userMessage(err); ok {
			return Reply{Text: msg}
		}
		return Reply{Text: MsgApology}
	}
	s.Phase = OtpVerification
	s.Phone = phone
	return Reply{Text: fmt.Sprintf("OTP sent to %s. Please enter the 6-digit code to verify your identity.", phone)}
}

func (m *Machine) handleOTP(ctx context.Context, s *Session, text string) Reply {
	// A full mobile number can contain a six-digit run ("987654-3210"), so
	// it is checked first. A code always wins over a resend request.
	if phone, ok := ExtractPhone(text); ok {
		return m.sendOTP(ctx, s, phone)
	}
	code, ok := ExtractOTP(text)
	if !ok {
		if wantsResend(text) {
			return m.sendOTP(ctx, s, s.Phone)
		}
		return Reply{Text: MsgInvalidOTP}
	}

	userID, sessionID, err := m.otp.VerifyOTP(ctx, s.Phone, code, s.Language)
	if err != nil {
		if isAuthFailure(err) {
			return Reply{Text: MsgRejectedOTP}
		}
		m.log.Warn().Err(err).Str("conversation", s.ID).Msg("verify otp failed")
		return Reply{Text: MsgApology}
	}
	if userID == "" || sessionID == "" {
		m.log.Error().Str("conversation", s.ID).Msg("verify otp returned no user or session")
		return Reply{Text: MsgApology}
	}

	s.Phase = Authenticated
	s.UserID = userID
	s.SessionID = sessionID
	return Reply{Text: MsgWelcome}
}

func (m *Machine) handleChat(ctx context.Context, s *Session, text string) Reply {
	reply, err := m.chat.Chat(ctx, text, s.SessionID, s.Language)
	if err != nil {
		m.log.Warn().Err(err).Str("conversation", s.ID).Msg("banking chat failed")
		return Reply{Text: MsgChatTrouble}
	}

	var out Reply
	if reply.Intent == GeneralInquiry {
		out = m.escalate(ctx, s, text)
	} else {
		answer := CleanText(reply.Response)
		if answer == "" {
			answer = MsgEmptyResponse
		}
		out = Reply{Text: answer, Intent: reply.Intent}
	}

	if err := m.recorder.RecordTurn(ctx, s.SessionID, text, out.Text); err != nil {
		m.log.Error().Err(err).Str("session", s.SessionID).Msg("record turn")
	}
	return out
}

// escalate hands the question to a human. The model's own answer is never
// shown for a general inquiry.
func (m *Machine) escalate(ctx context.Context, s *Session, question string) Reply {
	if err := m.escalator.Escalate(ctx, s.Phone, question, s.SessionID); err != nil {
		m.log.Warn().Err(err).Str("conversation", s.ID).Msg("escalation failed")
		return Reply{
			Text: fmt.Sprintf("Thank you for your question. For detailed information about this topic, "+
				"please contact our customer care at %s where our experts can assist you better.", m.supportPhone),
			Intent: GeneralInquiry,
		}
	}
	return Reply{
		Text: fmt.Sprintf("Thank you for your question. Since this requires detailed information, "+
			"I've forwarded it to our expert team for a comprehensive answer. You'll receive a response soon, "+
			"or you can contact our customer care at %s for immediate assistance.", m.supportPhone),
		Intent:    GeneralInquiry,
		Escalated: true,
	}
}

// SetLanguage changes the session language and, once authenticated, stores
// it as the user's preference. A failed store is logged only.
func (m *Machine) SetLanguage(ctx context.Context, s *Session, language string) {
	s.Language = language
	if s.Phase != Authenticated {
		return
	}
	if lr, ok := m.recorder.(languageRecorder); ok {
		if err := lr.SetLanguage(ctx, s.SessionID, language); err != nil {
			m.log.Warn().Err(err).Str("session", s.SessionID).Msg("store language preference")
		}
	}
}

// Close ends the persistent session, recording the optional rating and
// feedback. Unauthenticated sessions have nothing to record.
func (m *Machine) Close(ctx context.Context, s *Session, rating *int, feedback string) error {
	if rating != nil && (*rating < 1 || *rating > 5) {
		return &ValidationError{Field: "rating", Value: fmt.Sprint(*rating)}
	}
	if s.Phase != Authenticated {
		return nil
	}
	if err := m.recorder.EndSession(ctx, s.SessionID, rating, feedback); err != nil {
		return &CollaboratorError{Op: "end session", Err: err}
	}
	return nil
}
