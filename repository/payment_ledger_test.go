package repository_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/Luisfeliz3/sporty-urban-ecommerce/models"
	"github.com/Luisfeliz3/sporty-urban-ecommerce/repository"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(t, err)
	return gormDB, mock
}

func TestRecordAttempt_Success(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	ledger := repository.NewGormPaymentLedger(gormDB)

	attempt := &models.PaymentAttempt{
		ID:              uuid.New(),
		OrderID:         "order-1",
		UserID:          "user-1",
		Amount:          7558,
		Currency:        "usd",
		StripePaymentID: "pi_123",
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "payment_attempts"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(attempt.ID))
	mock.ExpectCommit()

	err := ledger.RecordAttempt(context.Background(), attempt)
	assert.NoError(t, err)
	assert.Equal(t, models.AttemptCreated, attempt.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordAttempt_DBError(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	ledger := repository.NewGormPaymentLedger(gormDB)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "payment_attempts"`)).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := ledger.RecordAttempt(context.Background(), &models.PaymentAttempt{
		ID:              uuid.New(),
		OrderID:         "order-1",
		StripePaymentID: "pi_123",
	})
	assert.Error(t, err)
}

func TestRecordOutcome_Succeeded(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	ledger := repository.NewGormPaymentLedger(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "payment_attempts"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := ledger.RecordOutcome(context.Background(), "pi_123", models.AttemptSucceeded,
		"evt_1", []byte(`{"id":"evt_1"}`), time.Now())
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordOutcome_UnknownIntent(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	ledger := repository.NewGormPaymentLedger(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "payment_attempts"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := ledger.RecordOutcome(context.Background(), "pi_missing", models.AttemptFailed, "", nil, time.Now())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
