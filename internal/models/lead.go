package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	LeadSourceIntake  = "intake"
	LeadSourceEnquiry = "enquiry"
)

// Lead is a prospective student captured by a public form.
type Lead struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	Source     string    `gorm:"index;not null" json:"source"`
	Name       string    `gorm:"not null" json:"name"`
	Email      string    `gorm:"index;not null" json:"email"`
	Phone      string    `json:"phone"`
	Country    string    `json:"country,omitempty"`
	Course     string    `json:"course,omitempty"`
	LoanAmount int64     `json:"loan_amount,omitempty"`
	Message    string    `json:"message,omitempty"`
	OriginIP   string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

func (l *Lead) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

func (Lead) TableName() string {
	return "leads"
}
