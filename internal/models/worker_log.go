package models

import "time"

// WorkerLog captures diagnostic output written by the language worker.
type WorkerLog struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	PID        int       `gorm:"index" json:"pid"`
	Generation int       `gorm:"index" json:"generation"`
	Stream     string    `gorm:"size:4" json:"stream"`
	Content    string    `gorm:"type:text" json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}
