// Package sessions stores authenticated chat sessions and their turns.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/zulandar/bankline/internal/models"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a session or message does not exist.
var ErrNotFound = errors.New("sessions: not found")

// maxNameLen bounds a session name derived from its first question.
const maxNameLen = 256

// InvalidError reports a request the store refuses. Its message is safe to
// show to API clients.
type InvalidError struct {
	Message string
}

func (e *InvalidError) Error() string       { return "sessions: " + e.Message }
func (e *InvalidError) UserMessage() string { return e.Message }

// StoreOpts configures a Store.
type StoreOpts struct {
	DB     *gorm.DB
	Logger zerolog.Logger
	Now    func() time.Time
}

// Store persists ChatSessions and SessionMessages.
type Store struct {
	db  *gorm.DB
	log zerolog.Logger
	now func() time.Time
}

// NewStore validates opts and returns a Store.
func NewStore(opts StoreOpts) (*Store, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("sessions: db is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		db:  opts.DB,
		log: opts.Logger.With().Str("component", "sessions").Logger(),
		now: now,
	}, nil
}

// CreateOpts holds the optional fields of a new session.
type CreateOpts struct {
	Name     string
	Language string
	Location string
}

// Create opens a new session for userID.
func (s *Store) Create(ctx context.Context, userID string, opts CreateOpts) (*models.ChatSession, error) {
	if userID == "" {
		return nil, &InvalidError{Message: "User ID is required"}
	}
	sess := &models.ChatSession{
		ID:          uuid.NewString(),
		UserID:      userID,
		SessionName: models.DefaultSessionName,
		Language:    "en",
		Location:    opts.Location,
		StartedAt:   s.now(),
	}
	if opts.Name != "" {
		sess.SessionName = truncate(opts.Name, maxNameLen)
	}
	if opts.Language != "" {
		sess.Language = opts.Language
	}
	if err := s.db.WithContext(ctx).Create(sess).Error; err != nil {
		return nil, fmt.Errorf("sessions: create for user %s: %w", userID, err)
	}
	return sess, nil
}

// OpenForUser returns the user's open session, creating one when every
// earlier session has ended.
func (s *Store) OpenForUser(ctx context.Context, userID, language, location string) (string, error) {
	var sess models.ChatSession
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND ended_at IS NULL", userID).
		Order("started_at DESC").
		First(&sess).Error
	if err == nil {
		return sess.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("sessions: find open session for user %s: %w", userID, err)
	}

	created, err := s.Create(ctx, userID, CreateOpts{Language: language, Location: location})
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

// AddMessage appends a question/answer turn. The first turn of an untitled
// session names it after the question.
func (s *Store) AddMessage(ctx context.Context, sessionID, question, answer string) (*models.SessionMessage, error) {
	if sessionID == "" || question == "" || answer == "" {
		return nil, &InvalidError{Message: "Session ID, question, and answer are required"}
	}

	var msg *models.SessionMessage
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sess models.ChatSession
		if err := tx.Where("id = ?", sessionID).First(&sess).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		seq, err := nextSequence(tx, sessionID)
		if err != nil {
			return err
		}

		if sess.SessionName == models.DefaultSessionName && seq == 1 {
			if err := tx.Model(&sess).Update("session_name", truncate(question, maxNameLen)).Error; err != nil {
				return err
			}
		}

		msg = &models.SessionMessage{
			SessionID: sessionID,
			Sequence:  seq,
			Question:  question,
			Answer:    answer,
			Timestamp: s.now(),
		}
		return tx.Create(msg).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("sessions: add message to %s: %w", sessionID, err)
	}
	return msg, nil
}

// RecordTurn appends a turn from the live conversation.
func (s *Store) RecordTurn(ctx context.Context, sessionID, question, answer string) error {
	_, err := s.AddMessage(ctx, sessionID, question, answer)
	return err
}

// nextSequence returns the next message sequence number for a session.
func nextSequence(tx *gorm.DB, sessionID string) (int, error) {
	var maxSeq int
	err := tx.Model(&models.SessionMessage{}).
		Where("session_id = ?", sessionID).
		Select("COALESCE(MAX(sequence), 0)").
		Scan(&maxSeq).Error
	if err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	return maxSeq + 1, nil
}

// MessageFeedback sets feedback (-1, 0 or 1) on the message at a zero-based
// index. A nil index selects the latest message.
func (s *Store) MessageFeedback(ctx context.Context, sessionID string, index *int, feedback int) error {
	if sessionID == "" {
		return &InvalidError{Message: "Session ID and feedback are required"}
	}
	if feedback < -1 || feedback > 1 {
		return &InvalidError{Message: "Feedback must be -1, 0, or 1"}
	}
	if _, err := s.find(ctx, sessionID); err != nil {
		return err
	}

	var msgs []models.SessionMessage
	if err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).
		Order("sequence").Find(&msgs).Error; err != nil {
		return fmt.Errorf("sessions: load messages for %s: %w", sessionID, err)
	}

	i := len(msgs) - 1
	if index != nil {
		i = *index
	}
	if i < 0 || i >= len(msgs) {
		return fmt.Errorf("sessions: message %d of %d: %w", i, len(msgs), ErrNotFound)
	}

	if err := s.db.WithContext(ctx).Model(&msgs[i]).Update("feedback", feedback).Error; err != nil {
		return fmt.Errorf("sessions: update message feedback: %w", err)
	}
	return nil
}

// SessionFeedback records a 1..5 rating and optional text on a session.
func (s *Store) SessionFeedback(ctx context.Context, sessionID string, rating int, text string) error {
	if sessionID == "" {
		return &InvalidError{Message: "Session ID is required"}
	}
	if rating < 1 || rating > 5 {
		return &InvalidError{Message: "Session feedback rating must be between 1 and 5"}
	}
	sess, err := s.find(ctx, sessionID)
	if err != nil {
		return err
	}

	updates := map[string]interface{}{"session_feedback_rating": rating}
	if t := strings.TrimSpace(text); t != "" {
		updates["session_feedback_text"] = t
	}
	if err := s.db.WithContext(ctx).Model(sess).Updates(updates).Error; err != nil {
		return fmt.Errorf("sessions: update feedback for %s: %w", sessionID, err)
	}
	return nil
}

// UpdatePreferences sets the session language and location. Empty values
// are left unchanged.
func (s *Store) UpdatePreferences(ctx context.Context, sessionID, language, location string) (*models.ChatSession, error) {
	if sessionID == "" {
		return nil, &InvalidError{Message: "Session ID is required"}
	}
	sess, err := s.find(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if language != "" {
		updates["language"] = language
	}
	if location != "" {
		updates["location"] = location
	}
	if len(updates) == 0 {
		return sess, nil
	}
	if err := s.db.WithContext(ctx).Model(sess).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("sessions: update preferences for %s: %w", sessionID, err)
	}
	return s.find(ctx, sessionID)
}

// SetLanguage stores a language preference from the live conversation.
func (s *Store) SetLanguage(ctx context.Context, sessionID, language string) error {
	_, err := s.UpdatePreferences(ctx, sessionID, language, "")
	return err
}

// ListByUser returns a user's sessions, newest first, without messages.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]models.ChatSession, error) {
	var out []models.ChatSession
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("started_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("sessions: list for user %s: %w", userID, err)
	}
	return out, nil
}

// Get returns a session with its user and messages in order.
func (s *Store) Get(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	var sess models.ChatSession
	err := s.db.WithContext(ctx).
		Preload("User").
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("sequence") }).
		Where("id = ?", sessionID).
		First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sessions: get %s: %w", sessionID, err)
	}
	return &sess, nil
}

// End marks a session as ended. Ending an ended session keeps the first
// end time.
func (s *Store) End(ctx context.Context, sessionID string) error {
	sess, err := s.find(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.EndedAt != nil {
		return nil
	}
	if err := s.db.WithContext(ctx).Model(sess).Update("ended_at", s.now()).Error; err != nil {
		return fmt.Errorf("sessions: end %s: %w", sessionID, err)
	}
	s.log.Info().Str("session", sessionID).Msg("session ended")
	return nil
}

// EndSession records optional closing feedback and ends the session.
func (s *Store) EndSession(ctx context.Context, sessionID string, rating *int, feedback string) error {
	if rating != nil {
		if err := s.SessionFeedback(ctx, sessionID, *rating, feedback); err != nil {
			return err
		}
	}
	return s.End(ctx, sessionID)
}

func (s *Store) find(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	var sess models.ChatSession
	err := s.db.WithContext(ctx).Where("id = ?", sessionID).First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sessions: find %s: %w", sessionID, err)
	}
	return &sess, nil
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
