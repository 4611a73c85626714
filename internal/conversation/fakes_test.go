package conversation

import (
	"context"
	"errors"
	"sync"

	"github.com/zulandar/bankline/internal/bridge"
)

type sendCall struct{ name, mobile string }
type verifyCall struct{ mobile, otp, language string }

type authErr struct{}

func (authErr) Error() string     { return "auth: invalid or expired otp" }
func (authErr) AuthFailure() bool { return true }

type rejectErr struct{ msg string }

func (e rejectErr) Error() string       { return "auth: " + e.msg }
func (e rejectErr) UserMessage() string { return e.msg }

var errDown = errors.New("connection refused")

type fakeOTP struct {
	mu        sync.Mutex
	sends     []sendCall
	verifies  []verifyCall
	sendErr   error
	verifyErr error
	userID    string
	sessionID string
}

func (f *fakeOTP) SendOTP(ctx context.Context, name, mobile string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, sendCall{name, mobile})
	return f.sendErr
}

func (f *fakeOTP) VerifyOTP(ctx context.Context, mobile, otp, language string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifies = append(f.verifies, verifyCall{mobile, otp, language})
	if f.verifyErr != nil {
		return "", "", f.verifyErr
	}
	return f.userID, f.sessionID, nil
}

type chatCall struct{ text, sessionID, language string }

type fakeChat struct {
	mu      sync.Mutex
	calls   []chatCall
	reply   bridge.ChatReply
	err     error
	entered chan struct{} // when set, signalled on entry
	block   chan struct{} // when set, Chat waits on it
}

func (f *fakeChat) Chat(ctx context.Context, text, sessionID, language string) (bridge.ChatReply, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, chatCall{text, sessionID, language})
	return f.reply, f.err
}

type escalateCall struct{ mobile, question, sessionID string }

type fakeEscalator struct {
	mu    sync.Mutex
	calls []escalateCall
	err   error
}

func (f *fakeEscalator) Escalate(ctx context.Context, mobile, question, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, escalateCall{mobile, question, sessionID})
	return f.err
}

type turn struct{ sessionID, question, answer string }

type fakeRecorder struct {
	mu        sync.Mutex
	turns     []turn
	ended     []string
	rating    *int
	feedback  string
	languages []string
	err       error
}

func (f *fakeRecorder) RecordTurn(ctx context.Context, sessionID, question, answer string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.turns = append(f.turns, turn{sessionID, question, answer})
	return nil
}

func (f *fakeRecorder) EndSession(ctx context.Context, sessionID string, rating *int, feedback string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.ended = append(f.ended, sessionID)
	f.rating, f.feedback = rating, feedback
	return nil
}

func (f *fakeRecorder) SetLanguage(ctx context.Context, sessionID, language string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.languages = append(f.languages, sessionID+"="+language)
	return nil
}

type harness struct {
	otp     *fakeOTP
	chat    *fakeChat
	esc     *fakeEscalator
	rec     *fakeRecorder
	machine *Machine
}

func newHarness() *harness {
	h := &harness{
		otp:  &fakeOTP{userID: "user-1", sessionID: "sess-1"},
		chat: &fakeChat{reply: bridge.ChatReply{Response: "**Balance:** ₹5,000", Intent: "check_balance"}},
		esc:  &fakeEscalator{},
		rec:  &fakeRecorder{},
	}
	m, err := NewMachine(MachineOpts{
		OTP:       h.otp,
		Chat:      h.chat,
		Escalator: h.esc,
		Recorder:  h.rec,
	})
	if err != nil {
		panic(err)
	}
	h.machine = m
	return h
}
