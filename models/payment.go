package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentAttempt is one row of the Postgres payment ledger: one per provider
// intent. It is an audit trail; the order document decides isPaid.
type PaymentAttempt struct {
	ID                 uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID            string    `gorm:"type:varchar(64);index;not null"`
	UserID             string    `gorm:"type:varchar(64);index;not null"`
	Amount             int64     `gorm:"not null"` // in cents
	Currency           string    `gorm:"type:varchar(10);not null"`
	Status             string    `gorm:"type:varchar(40);not null"`
	StripePaymentID    string    `gorm:"type:varchar(255);uniqueIndex;not null"`
	LastEventID        *string   `gorm:"type:varchar(255)"`
	StripeEventPayload *string   `gorm:"type:jsonb"`
	SucceededAt        *time.Time
	FailedAt           *time.Time
	CreatedAt          time.Time      `gorm:"autoCreateTime"`
	UpdatedAt          time.Time      `gorm:"autoUpdateTime"`
	DeletedAt          gorm.DeletedAt `gorm:"index"`
}

func (PaymentAttempt) TableName() string { return "payment_attempts" }

const (
	AttemptCreated   = "created"
	AttemptSucceeded = "succeeded"
	AttemptFailed    = "failed"
)
