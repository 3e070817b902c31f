package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/Luisfeliz3/sporty-urban-ecommerce/models"
)

// PaymentLedger is the audit trail of provider payment attempts.
type PaymentLedger interface {
	RecordAttempt(ctx context.Context, attempt *models.PaymentAttempt) error
	RecordOutcome(ctx context.Context, stripePaymentID, status, eventID string, payload []byte, at time.Time) error
}

type gormPaymentLedger struct {
	db *gorm.DB
}

func NewGormPaymentLedger(db *gorm.DB) PaymentLedger {
	return &gormPaymentLedger{db: db}
}

func (r *gormPaymentLedger) RecordAttempt(ctx context.Context, attempt *models.PaymentAttempt) error {
	if attempt.Status == "" {
		attempt.Status = models.AttemptCreated
	}
	return r.db.WithContext(ctx).Create(attempt).Error
}

// RecordOutcome stores the verified provider event that settled an attempt.
// It returns ErrNotFound when the attempt was never recorded.
func (r *gormPaymentLedger) RecordOutcome(ctx context.Context, stripePaymentID, status, eventID string, payload []byte, at time.Time) error {
	updates := map[string]interface{}{
		"status": status,
	}
	if eventID != "" {
		updates["last_event_id"] = eventID
	}
	if len(payload) > 0 {
		updates["stripe_event_payload"] = string(payload)
	}
	switch status {
	case models.AttemptSucceeded:
		updates["succeeded_at"] = at
	case models.AttemptFailed:
		updates["failed_at"] = at
	}

	res := r.db.WithContext(ctx).
		Model(&models.PaymentAttempt{}).
		Where("stripe_payment_id = ?", stripePaymentID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
