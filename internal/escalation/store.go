// Package escalation queues questions the assistant could not answer and
// routes them to human support.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/zulandar/bankline/internal/models"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a question id does not exist.
var ErrNotFound = errors.New("escalation: question not found")

// unknownMobile is recorded when a question arrives without a number.
const unknownMobile = "unknown"

// notifyTimeout bounds each support-channel post.
const notifyTimeout = 15 * time.Second

// InvalidError reports a request with missing fields. Its message is safe to
// show to users.
type InvalidError struct {
	Message string
}

func (e *InvalidError) Error() string       { return "escalation: " + e.Message }
func (e *InvalidError) UserMessage() string { return e.Message }

// Notifier tells human support about a new question.
type Notifier interface {
	Notify(ctx context.Context, q *models.UnansweredQuestion) error
}

// UserSender delivers an answer back to the customer.
type UserSender interface {
	Send(ctx context.Context, mobileNo, text string) error
}

// StoreOpts configures a Store.
type StoreOpts struct {
	DB        *gorm.DB
	Notifiers []Notifier
	SMS       UserSender
	Logger    zerolog.Logger
	Now       func() time.Time
}

// Store persists UnansweredQuestions.
type Store struct {
	db        *gorm.DB
	notifiers []Notifier
	sms       UserSender
	log       zerolog.Logger
	now       func() time.Time
}

// NewStore validates opts and returns a Store.
func NewStore(opts StoreOpts) (*Store, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("escalation: db is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		db:        opts.DB,
		notifiers: opts.Notifiers,
		sms:       opts.SMS,
		log:       opts.Logger.With().Str("component", "escalation").Logger(),
		now:       now,
	}, nil
}

// AddRequest holds the fields of a new question.
type AddRequest struct {
	MobileNo   string `json:"mobileNo"`
	Question   string `json:"question"`
	NotifyUser bool   `json:"notifyUser"`
	SessionID  string `json:"sessionId"`
}

// Add stores a pending question and notifies support.
func (s *Store) Add(ctx context.Context, req AddRequest) (*models.UnansweredQuestion, error) {
	mobileNo, question := strings.TrimSpace(req.MobileNo), strings.TrimSpace(req.Question)
	if mobileNo == "" || question == "" {
		return nil, &InvalidError{Message: "Mobile number and question are required"}
	}

	now := s.now()
	q := &models.UnansweredQuestion{
		ID:         uuid.NewString(),
		MobileNo:   mobileNo,
		Question:   question,
		SessionID:  req.SessionID,
		NotifyUser: req.NotifyUser,
		Status:     models.QuestionPending,
		AskedAt:    now,
	}
	if err := s.db.WithContext(ctx).Create(q).Error; err != nil {
		return nil, fmt.Errorf("escalation: save question: %w", err)
	}
	s.log.Info().Str("question", q.ID).Str("session", q.SessionID).Msg("question escalated")

	s.notify(ctx, q)
	return q, nil
}

// Escalate queues a question from a live conversation. The customer is
// always told when it is answered.
func (s *Store) Escalate(ctx context.Context, mobileNo, question, sessionID string) error {
	if strings.TrimSpace(mobileNo) == "" {
		mobileNo = unknownMobile
	}
	_, err := s.Add(ctx, AddRequest{
		MobileNo:   mobileNo,
		Question:   question,
		NotifyUser: true,
		SessionID:  sessionID,
	})
	return err
}

// notify posts q to every support channel. Failures are logged.
func (s *Store) notify(ctx context.Context, q *models.UnansweredQuestion) {
	if len(s.notifiers) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()

	var wg conc.WaitGroup
	for _, n := range s.notifiers {
		n := n
		wg.Go(func() {
			if err := n.Notify(ctx, q); err != nil {
				s.log.Warn().Err(err).Str("question", q.ID).Msg("support notification failed")
			}
		})
	}
	wg.Wait()
}

// Answer records an admin answer and, when requested, texts it to the
// customer.
func (s *Store) Answer(ctx context.Context, id, answer string) (*models.UnansweredQuestion, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, &InvalidError{Message: "Answer is required"}
	}
	q, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Model(q).Updates(map[string]interface{}{
		"admin_answer": answer,
		"status":       models.QuestionAnswered,
		"answered_at":  now,
	}).Error; err != nil {
		return nil, fmt.Errorf("escalation: answer %s: %w", id, err)
	}
	q.AdminAnswer = answer
	q.Status = models.QuestionAnswered
	q.AnsweredAt = &now

	if q.NotifyUser && s.sms != nil && q.MobileNo != unknownMobile {
		text := fmt.Sprintf("Your question %q has been answered: %s", q.Question, answer)
		if err := s.sms.Send(ctx, q.MobileNo, text); err != nil {
			s.log.Warn().Err(err).Str("question", q.ID).Msg("answer notification failed")
		}
	}
	return q, nil
}

// Get returns a question by id.
func (s *Store) Get(ctx context.Context, id string) (*models.UnansweredQuestion, error) {
	var q models.UnansweredQuestion
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&q).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("escalation: get %s: %w", id, err)
	}
	return &q, nil
}

// ListPending returns pending questions, newest first.
func (s *Store) ListPending(ctx context.Context) ([]models.UnansweredQuestion, error) {
	return s.list(ctx, models.QuestionPending, "asked_at DESC")
}

// ListAnswered returns answered questions, most recently answered first.
func (s *Store) ListAnswered(ctx context.Context) ([]models.UnansweredQuestion, error) {
	return s.list(ctx, models.QuestionAnswered, "answered_at DESC")
}

func (s *Store) list(ctx context.Context, status, order string) ([]models.UnansweredQuestion, error) {
	var out []models.UnansweredQuestion
	if err := s.db.WithContext(ctx).Where("status = ?", status).
		Order(order).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("escalation: list %s: %w", status, err)
	}
	return out, nil
}
