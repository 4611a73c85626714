package models

import "time"

// Unanswered question statuses.
const (
	QuestionPending  = "pending"
	QuestionAnswered = "answered"
)

// UnansweredQuestion is a customer question the language worker could not
// classify, queued for a human to answer.
type UnansweredQuestion struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	MobileNo    string     `gorm:"size:16;not null;index" json:"mobileNo"`
	Question    string     `gorm:"type:text;not null" json:"question"`
	SessionID   string     `gorm:"size:36" json:"sessionId,omitempty"`
	NotifyUser  bool       `gorm:"default:false" json:"notifyUser"`
	AdminAnswer string     `gorm:"type:text" json:"adminAnswer,omitempty"`
	Status      string     `gorm:"size:16;default:pending;index" json:"status"`
	AskedAt     time.Time  `json:"askedAt"`
	AnsweredAt  *time.Time `json:"answeredAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}
