package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/festra/festra-api/internal/models"
)

type ReceiptRepository interface {
	CreateBatch(ctx context.Context, receipts []CreateReceiptParams) error
	// ListPending returns pending receipts created within the recency
	// window. Older pending receipts are abandoned; see CountAbandoned.
	ListPending(ctx context.Context, window time.Duration) ([]models.PushReceipt, error)
	// CountAbandoned counts pending receipts older than the window, the
	// ones a reconcile pass will never pick up again.
	CountAbandoned(ctx context.Context, window time.Duration) (int, error)
	MarkDelivered(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, reason string) error
}

type CreateReceiptParams struct {
	NotificationID string
	ReceiptID      string
	Token          string
}

type receiptRepository struct {
	db *sql.DB
}

func NewReceiptRepository(db *sql.DB) ReceiptRepository {
	return &receiptRepository{db: db}
}

func (r *receiptRepository) CreateBatch(ctx context.Context, receipts []CreateReceiptParams) error {
	if len(receipts) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin receipt batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO app.push_receipts (notification_id, receipt_id, token, status)
		VALUES ($1, $2, $3, 'pending')
	`)
	if err != nil {
		return fmt.Errorf("prepare receipt insert: %w", err)
	}
	defer stmt.Close()

	for _, receipt := range receipts {
		if _, err := stmt.ExecContext(ctx, receipt.NotificationID, receipt.ReceiptID, receipt.Token); err != nil {
			return fmt.Errorf("insert receipt %s: %w", receipt.ReceiptID, err)
		}
	}
	return tx.Commit()
}

func (r *receiptRepository) ListPending(ctx context.Context, window time.Duration) ([]models.PushReceipt, error) {
	const query = `
		SELECT id, notification_id, receipt_id, token, status, error, created_at, updated_at
		FROM app.push_receipts
		WHERE status = 'pending' AND created_at >= NOW() - $1::interval
		ORDER BY created_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, intervalString(window))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var receipts []models.PushReceipt
	for rows.Next() {
		var (
			receipt   models.PushReceipt
			errString sql.NullString
		)
		if err := rows.Scan(
			&receipt.ID,
			&receipt.NotificationID,
			&receipt.ReceiptID,
			&receipt.Token,
			&receipt.Status,
			&errString,
			&receipt.CreatedAt,
			&receipt.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if errString.Valid {
			val := errString.String
			receipt.Error = &val
		}
		receipts = append(receipts, receipt)
	}
	return receipts, rows.Err()
}

func (r *receiptRepository) CountAbandoned(ctx context.Context, window time.Duration) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM app.push_receipts
		WHERE status = 'pending' AND created_at < NOW() - $1::interval
	`
	var count int
	err := r.db.QueryRowContext(ctx, query, intervalString(window)).Scan(&count)
	return count, err
}

// MarkDelivered transitions a pending receipt to delivered. Settled receipts
// are left untouched so reprocessing the same provider response is a no-op.
func (r *receiptRepository) MarkDelivered(ctx context.Context, id string) error {
	const query = `
		UPDATE app.push_receipts
		SET status = 'delivered', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *receiptRepository) MarkFailed(ctx context.Context, id, reason string) error {
	const query = `
		UPDATE app.push_receipts
		SET status = 'failed', error = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`
	_, err := r.db.ExecContext(ctx, query, id, reason)
	return err
}

func intervalString(window time.Duration) string {
	return fmt.Sprintf("%d seconds", int64(window.Seconds()))
}
