package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/akylbek/payment-system/credential-payments/internal/models"
)

type PaymentRequestRepository struct {
	db *sql.DB
}

func NewPaymentRequestRepository(db *sql.DB) *PaymentRequestRepository {
	return &PaymentRequestRepository{db: db}
}

func (r *PaymentRequestRepository) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS payment_requests (
			id VARCHAR(64) PRIMARY KEY,
			amount NUMERIC(18,2) NOT NULL CHECK (amount > 0),
			merchant_id VARCHAR(255) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status VARCHAR(20) NOT NULL,
			state_data JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payment_requests_status ON payment_requests(status)`,
		`CREATE INDEX IF NOT EXISTS idx_payment_requests_merchant ON payment_requests(merchant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_payment_requests_expires ON payment_requests(expires_at)`,
	}

	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

const paymentRequestColumns = `id, amount, merchant_id, description, status, state_data, created_at, updated_at, expires_at`

func (r *PaymentRequestRepository) Insert(ctx context.Context, req *models.PaymentRequest) error {
	data, err := models.EncodeState(req.State)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO payment_requests (`+paymentRequestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, req.ID, req.Amount, req.MerchantID, req.Description, req.Status(), string(data),
		req.CreatedAt, req.UpdatedAt, req.ExpiresAt)
	return err
}

func (r *PaymentRequestRepository) Update(ctx context.Context, req *models.PaymentRequest, prev models.PaymentStatus) error {
	data, err := models.EncodeState(req.State)
	if err != nil {
		return err
	}
	result, err := r.db.ExecContext(ctx, `
		UPDATE payment_requests
		SET status = $1, state_data = $2, updated_at = $3
		WHERE id = $4 AND status = $5
	`, req.Status(), string(data), req.UpdatedAt, req.ID, prev)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: payment %s is no longer %s", models.ErrConcurrentUpdate, req.ID, prev)
	}
	return nil
}

func (r *PaymentRequestRepository) GetByID(ctx context.Context, id string) (*models.PaymentRequest, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+paymentRequestColumns+` FROM payment_requests WHERE id = $1`, id)
	req, err := scanPaymentRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, id)
	}
	return req, err
}

func (r *PaymentRequestRepository) List(ctx context.Context, filter models.PaymentRequestFilter) ([]*models.PaymentRequest, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.MerchantID != "" {
		add("merchant_id = $%d", filter.MerchantID)
	}
	if filter.SuccessfulOnly {
		add("status = $%d", models.StatusCompleted)
	}
	if !filter.From.IsZero() {
		add("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at <= $%d", filter.To)
	}

	query := `SELECT ` + paymentRequestColumns + ` FROM payment_requests`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC`

	return r.query(ctx, query, args...)
}

func (r *PaymentRequestRepository) ListExpired(ctx context.Context, now time.Time) ([]*models.PaymentRequest, error) {
	return r.query(ctx, `
		SELECT `+paymentRequestColumns+` FROM payment_requests
		WHERE status IN ($1, $2) AND expires_at <= $3
		ORDER BY expires_at
	`, models.StatusPending, models.StatusProcessing, now)
}

func (r *PaymentRequestRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM payment_requests
		WHERE status IN ($1, $2, $3, $4) AND updated_at < $5
	`, models.StatusCompleted, models.StatusFailed, models.StatusExpired, models.StatusCancelled, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *PaymentRequestRepository) query(ctx context.Context, query string, args ...interface{}) ([]*models.PaymentRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.PaymentRequest
	for rows.Next() {
		req, err := scanPaymentRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPaymentRequest(row rowScanner) (*models.PaymentRequest, error) {
	var (
		req    models.PaymentRequest
		status string
		data   []byte
	)
	if err := row.Scan(&req.ID, &req.Amount, &req.MerchantID, &req.Description, &status, &data,
		&req.CreatedAt, &req.UpdatedAt, &req.ExpiresAt); err != nil {
		return nil, err
	}
	state, err := models.DecodeState(models.PaymentStatus(status), data)
	if err != nil {
		return nil, err
	}
	req.State = state
	return &req, nil
}
