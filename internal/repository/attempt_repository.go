package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/akylbek/payment-system/credential-payments/internal/models"
)

// AttemptRepository stores ledger rows in PostgreSQL. Rows are only ever
// inserted; seq preserves append order.
type AttemptRepository struct {
	db *sql.DB
}

func NewAttemptRepository(db *sql.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

func (r *AttemptRepository) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS payment_attempts (
			seq BIGSERIAL PRIMARY KEY,
			id VARCHAR(64) NOT NULL UNIQUE,
			payment_request_id VARCHAR(64) NOT NULL,
			status VARCHAR(40) NOT NULL,
			amount NUMERIC(18,2) NOT NULL,
			merchant_id VARCHAR(255) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			timestamp TIMESTAMPTZ NOT NULL,
			account_id VARCHAR(255) NOT NULL DEFAULT '',
			cardholder_name VARCHAR(255) NOT NULL DEFAULT '',
			account_email VARCHAR(255) NOT NULL DEFAULT '',
			transaction_id VARCHAR(64) NOT NULL DEFAULT '',
			previous_balance NUMERIC(18,2),
			new_balance NUMERIC(18,2),
			error_reason TEXT NOT NULL DEFAULT '',
			error_details TEXT NOT NULL DEFAULT '',
			client_ip VARCHAR(64) NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payment_attempts_account ON payment_attempts(account_id, seq DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_payment_attempts_merchant ON payment_attempts(merchant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_payment_attempts_timestamp ON payment_attempts(timestamp)`,
	}

	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

const attemptColumns = `seq, id, payment_request_id, status, amount, merchant_id, description, timestamp,
	account_id, cardholder_name, account_email, transaction_id, previous_balance, new_balance,
	error_reason, error_details, client_ip, user_agent`

func (r *AttemptRepository) Append(ctx context.Context, a *models.PaymentAttempt) error {
	return r.db.QueryRowContext(ctx, `
		INSERT INTO payment_attempts (id, payment_request_id, status, amount, merchant_id, description, timestamp,
			account_id, cardholder_name, account_email, transaction_id, previous_balance, new_balance,
			error_reason, error_details, client_ip, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING seq
	`, a.ID, a.PaymentRequestID, a.Status, a.Amount, a.MerchantID, a.Description, a.Timestamp,
		a.AccountID, a.CardholderName, a.AccountEmail, a.TransactionID,
		nullDecimal(a.PreviousBalance), nullDecimal(a.NewBalance),
		a.ErrorReason, a.ErrorDetails, a.ClientIP, a.UserAgent,
	).Scan(&a.Sequence)
}

func (r *AttemptRepository) List(ctx context.Context, filter models.AttemptFilter) ([]*models.PaymentAttempt, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.AccountID != "" {
		add("account_id = $%d", filter.AccountID)
	}
	if filter.MerchantID != "" {
		add("merchant_id = $%d", filter.MerchantID)
	}
	if filter.PaymentRequestID != "" {
		add("payment_request_id = $%d", filter.PaymentRequestID)
	}
	if !filter.From.IsZero() {
		add("timestamp >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("timestamp <= $%d", filter.To)
	}
	if filter.SuccessfulOnly {
		add("status = $%d", models.AttemptCompleted)
	}

	query := `SELECT ` + attemptColumns + ` FROM payment_attempts`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY seq DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.PaymentAttempt
	for rows.Next() {
		var (
			a              models.PaymentAttempt
			status         string
			prev, newValue decimal.NullDecimal
		)
		if err := rows.Scan(&a.Sequence, &a.ID, &a.PaymentRequestID, &status, &a.Amount, &a.MerchantID,
			&a.Description, &a.Timestamp, &a.AccountID, &a.CardholderName, &a.AccountEmail, &a.TransactionID,
			&prev, &newValue, &a.ErrorReason, &a.ErrorDetails, &a.ClientIP, &a.UserAgent); err != nil {
			return nil, err
		}
		a.Status = models.AttemptStatus(status)
		if prev.Valid {
			a.PreviousBalance = &prev.Decimal
		}
		if newValue.Valid {
			a.NewBalance = &newValue.Decimal
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
