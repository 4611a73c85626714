package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ManagerOpts configures a Manager.
type ManagerOpts struct {
	Machine         *Machine
	DefaultLanguage string
	IdleTimeout     time.Duration // zero disables sweeping
	Logger          zerolog.Logger
	Now             func() time.Time
}

// Manager holds the open conversations by id and serializes the turns of
// each one. Different conversations proceed concurrently.
type Manager struct {
	machine         *Machine
	defaultLanguage string
	idleTimeout     time.Duration
	log             zerolog.Logger
	now             func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	mu   sync.Mutex // held for the duration of a turn
	sess Session
}

// NewManager validates opts and returns a Manager.
func NewManager(opts ManagerOpts) (*Manager, error) {
	if opts.Machine == nil {
		return nil, fmt.Errorf("conversation: machine is required")
	}
	lang := opts.DefaultLanguage
	if lang == "" {
		lang = "en"
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		machine:         opts.Machine,
		defaultLanguage: lang,
		idleTimeout:     opts.IdleTimeout,
		log:             opts.Logger.With().Str("component", "conversations").Logger(),
		now:             now,
		sessions:        make(map[string]*entry),
	}, nil
}

// Open starts a conversation in PhoneRequest and returns it with the
// greeting.
func (m *Manager) Open(language string) (Session, Reply) {
	if language == "" {
		language = m.defaultLanguage
	}
	e := &entry{sess: Session{
		ID:         uuid.NewString(),
		Phase:      PhoneRequest,
		Language:   language,
		LastActive: m.now(),
	}}

	m.mu.Lock()
	m.sessions[e.sess.ID] = e
	m.mu.Unlock()

	m.log.Debug().Str("conversation", e.sess.ID).Msg("opened")
	return e.sess, Reply{Text: MsgGreeting, Phase: PhoneRequest}
}

// Get returns a snapshot of the conversation.
func (m *Manager) Get(id string) (Session, error) {
	e, err := m.lookup(id)
	if err != nil {
		return Session{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess, nil
}

// Send runs one turn. Turns of the same conversation never overlap.
func (m *Manager) Send(ctx context.Context, id, text string) (Reply, error) {
	e, err := m.lookup(id)
	if err != nil {
		return Reply{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !m.holds(id, e) {
		return Reply{}, ErrUnknownConversation
	}

	reply := m.machine.Handle(ctx, &e.sess, text)
	e.sess.LastActive = m.now()
	return reply, nil
}

// SetLanguage changes the conversation language.
func (m *Manager) SetLanguage(ctx context.Context, id, language string) (Session, error) {
	if language == "" {
		return Session{}, &ValidationError{Field: "language", Value: language}
	}
	e, err := m.lookup(id)
	if err != nil {
		return Session{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !m.holds(id, e) {
		return Session{}, ErrUnknownConversation
	}
	m.machine.SetLanguage(ctx, &e.sess, language)
	e.sess.LastActive = m.now()
	return e.sess, nil
}

// Close ends the conversation, recording an optional 1..5 rating and
// feedback on the persistent session. The conversation is discarded even if
// recording fails; an invalid rating leaves it open.
func (m *Manager) Close(ctx context.Context, id string, rating *int, feedback string) error {
	e, err := m.lookup(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !m.holds(id, e) {
		return ErrUnknownConversation
	}
	if err := m.machine.Close(ctx, &e.sess, rating, feedback); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return err
		}
		m.remove(id, e)
		return err
	}
	m.remove(id, e)
	m.log.Debug().Str("conversation", id).Msg("closed")
	return nil
}

// Len returns the number of open conversations.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep discards conversations idle longer than the idle timeout and returns
// how many were removed. Conversations mid-turn are skipped.
func (m *Manager) Sweep() int {
	if m.idleTimeout <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.idleTimeout)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, e := range m.sessions {
		if !e.mu.TryLock() {
			continue
		}
		if e.sess.LastActive.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
		e.mu.Unlock()
	}
	if removed > 0 {
		m.log.Info().Int("removed", removed).Msg("swept idle conversations")
	}
	return removed
}

// RunSweeper calls Sweep on the given cron schedule until ctx is cancelled.
func (m *Manager) RunSweeper(ctx context.Context, schedule string) error {
	sched, err := cronParser.Parse(schedule)
	if err != nil {
		return fmt.Errorf("conversation: parse sweep schedule %q: %w", schedule, err)
	}

	go func() {
		for {
			d := time.Until(sched.Next(time.Now()))
			if d < 0 {
				d = 0
			}
			timer := time.NewTimer(d)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				m.Sweep()
			}
		}
	}()
	return nil
}

func (m *Manager) lookup(id string) (*entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, ErrUnknownConversation
	}
	return e, nil
}

// holds reports whether e is still registered under id.
func (m *Manager) holds(id string, e *entry) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id] == e
}

func (m *Manager) remove(id string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[id] == e {
		delete(m.sessions, id)
	}
}
