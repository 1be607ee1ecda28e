package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	WorkSessionOpen       = "open"
	WorkSessionClosed     = "closed"
	WorkSessionAutoClosed = "auto_closed"
)

// WorkSession is one employee check-in/check-out pair.
type WorkSession struct {
	ID            uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	EmployeeID    string     `gorm:"index;not null" json:"employee_id"`
	CheckIn       time.Time  `gorm:"index;not null" json:"check_in"`
	CheckOut      *time.Time `gorm:"index" json:"check_out,omitempty"`
	Status        string     `gorm:"default:'open'" json:"status"`
	AutoFinalized bool       `gorm:"default:false" json:"auto_finalized"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (w *WorkSession) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}

func (WorkSession) TableName() string {
	return "work_sessions"
}
