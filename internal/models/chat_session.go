package models

import "time"

// DefaultSessionName is the name a ChatSession carries until its first
// question is recorded.
const DefaultSessionName = "Untitled Session"

// ChatSession is the persistent record of one authenticated chat. A session
// with a nil EndedAt is open and is reused by the next login of its user.
type ChatSession struct {
	ID                    string     `gorm:"primaryKey;size:36" json:"id"`
	UserID                string     `gorm:"size:36;not null;index" json:"userId"`
	SessionName           string     `gorm:"size:256;default:Untitled Session" json:"sessionName"`
	Language              string     `gorm:"size:8;default:en" json:"language"`
	Location              string     `gorm:"size:128" json:"location,omitempty"`
	SessionFeedbackRating *int       `json:"sessionFeedbackRating,omitempty"`
	SessionFeedbackText   string     `gorm:"type:text" json:"sessionFeedbackText,omitempty"`
	StartedAt             time.Time  `json:"startedAt"`
	EndedAt               *time.Time `gorm:"index" json:"endedAt,omitempty"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`

	User     *User            `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Messages []SessionMessage `gorm:"foreignKey:SessionID" json:"messages,omitempty"`
}

// SessionMessage is one question/answer turn within a ChatSession.
// Feedback is -1 (negative), 0 (none) or 1 (positive).
type SessionMessage struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID string    `gorm:"size:36;not null;index" json:"sessionId"`
	Sequence  int       `gorm:"not null" json:"sequence"`
	Question  string    `gorm:"type:text;not null" json:"question"`
	Answer    string    `gorm:"type:text;not null" json:"answer"`
	Feedback  int       `gorm:"default:0" json:"feedback"`
	Timestamp time.Time `json:"timestamp"`
}
