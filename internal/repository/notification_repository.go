package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/festra/festra-api/internal/models"
	"github.com/lib/pq"
)

type NotificationRepository interface {
	Create(ctx context.Context, params CreateNotificationParams) (models.Notification, error)
	Get(ctx context.Context, id string) (models.Notification, error)
	// Claim atomically moves a pending notification to dispatching. The
	// boolean is false when the record was already claimed or dispatched,
	// which makes duplicate triggers for the same record a no-op.
	Claim(ctx context.Context, id string) (models.Notification, bool, error)
	// ClaimNextPending picks up the oldest unclaimed notification, if any.
	ClaimNextPending(ctx context.Context) (models.Notification, bool, error)
	MarkDispatched(ctx context.Context, id string, sent, failed int) error
	// Release returns a claimed notification to pending so the next sweep
	// retries it. Only valid before any messages were submitted.
	Release(ctx context.Context, id string) error
	ListRecent(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID, notificationID string) error
}

type CreateNotificationParams struct {
	Title        string
	Body         string
	Category     string
	Priority     models.NotificationPriority
	TargetGroups []string
	Payload      map[string]interface{}
	CreatedBy    string
}

type notificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

const notificationColumns = `id, title, body, category, priority, target_groups, payload, status, created_by, sent_count, failed_count, created_at, dispatched_at`

func (r *notificationRepository) Create(ctx context.Context, params CreateNotificationParams) (models.Notification, error) {
	category := strings.TrimSpace(params.Category)
	if category == "" {
		category = models.DefaultCategory
	}
	priority := params.Priority
	if priority == "" {
		priority = models.NotificationPriorityNormal
	}

	groups := params.TargetGroups
	if groups == nil {
		groups = []string{}
	}

	var payload interface{}
	if len(params.Payload) > 0 {
		bytes, err := json.Marshal(params.Payload)
		if err != nil {
			return models.Notification{}, fmt.Errorf("marshal payload: %w", err)
		}
		payload = bytes
	}

	query := `
		INSERT INTO app.notifications (title, body, category, priority, target_groups, payload, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7)
		RETURNING ` + notificationColumns

	row := r.db.QueryRowContext(ctx, query,
		params.Title, params.Body, category, priority,
		pq.Array(groups), payload, params.CreatedBy)
	return scanNotification(row)
}

func (r *notificationRepository) Get(ctx context.Context, id string) (models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM app.notifications WHERE id = $1`
	return scanNotification(r.db.QueryRowContext(ctx, query, id))
}

func (r *notificationRepository) Claim(ctx context.Context, id string) (models.Notification, bool, error) {
	query := `
		UPDATE app.notifications
		SET status = 'dispatching'
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + notificationColumns

	notif, err := scanNotification(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return models.Notification{}, false, nil
		}
		return models.Notification{}, false, err
	}
	return notif, true, nil
}

func (r *notificationRepository) ClaimNextPending(ctx context.Context) (models.Notification, bool, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return models.Notification{}, false, fmt.Errorf("begin claim transaction: %w", err)
	}
	defer tx.Rollback()

	var id string
	query := `
		SELECT id
		FROM app.notifications
		WHERE status = 'pending'
		ORDER BY created_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	`
	if err := tx.QueryRowContext(ctx, query).Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return models.Notification{}, false, nil
		}
		return models.Notification{}, false, fmt.Errorf("fetch next pending notification: %w", err)
	}

	update := `
		UPDATE app.notifications
		SET status = 'dispatching'
		WHERE id = $1
		RETURNING ` + notificationColumns
	notif, err := scanNotification(tx.QueryRowContext(ctx, update, id))
	if err != nil {
		return models.Notification{}, false, fmt.Errorf("claim notification %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return models.Notification{}, false, fmt.Errorf("commit claim: %w", err)
	}
	return notif, true, nil
}

func (r *notificationRepository) MarkDispatched(ctx context.Context, id string, sent, failed int) error {
	query := `
		UPDATE app.notifications
		SET status = 'dispatched', sent_count = $2, failed_count = $3, dispatched_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, sent, failed)
	return err
}

func (r *notificationRepository) Release(ctx context.Context, id string) error {
	query := `
		UPDATE app.notifications
		SET status = 'pending'
		WHERE id = $1 AND status = 'dispatching'
	`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *notificationRepository) ListRecent(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	query := `
		SELECT n.id, n.title, n.body, n.category, n.priority, n.target_groups, n.payload,
		       n.status, n.created_by, n.sent_count, n.failed_count, n.created_at, n.dispatched_at,
		       r.read_at
		FROM app.notifications n
		LEFT JOIN app.notification_reads r ON r.notification_id = n.id AND r.user_id = $1
		ORDER BY n.created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		var (
			notif        models.Notification
			targetGroups pq.StringArray
			payloadRaw   []byte
			dispatchedAt sql.NullTime
			readAt       sql.NullTime
		)
		if err := rows.Scan(
			&notif.ID, &notif.Title, &notif.Body, &notif.Category, &notif.Priority,
			&targetGroups, &payloadRaw, &notif.Status, &notif.CreatedBy,
			&notif.SentCount, &notif.FailedCount, &notif.CreatedAt, &dispatchedAt, &readAt,
		); err != nil {
			return nil, err
		}
		notif.TargetGroups = targetGroups
		if len(payloadRaw) > 0 {
			if err := json.Unmarshal(payloadRaw, &notif.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal payload for notification %s: %w", notif.ID, err)
			}
		}
		if dispatchedAt.Valid {
			t := dispatchedAt.Time
			notif.DispatchedAt = &t
		}
		if readAt.Valid {
			t := readAt.Time
			notif.ReadAt = &t
		}
		notifications = append(notifications, notif)
	}
	return notifications, rows.Err()
}

func (r *notificationRepository) MarkRead(ctx context.Context, userID, notificationID string) error {
	query := `
		INSERT INTO app.notification_reads (user_id, notification_id, read_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id, notification_id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query, strings.TrimSpace(userID), strings.TrimSpace(notificationID))
	return err
}

func scanNotification(scanner interface {
	Scan(dest ...interface{}) error
}) (models.Notification, error) {
	var (
		notif        models.Notification
		targetGroups pq.StringArray
		payloadRaw   []byte
		dispatchedAt sql.NullTime
	)

	if err := scanner.Scan(
		&notif.ID,
		&notif.Title,
		&notif.Body,
		&notif.Category,
		&notif.Priority,
		&targetGroups,
		&payloadRaw,
		&notif.Status,
		&notif.CreatedBy,
		&notif.SentCount,
		&notif.FailedCount,
		&notif.CreatedAt,
		&dispatchedAt,
	); err != nil {
		return models.Notification{}, err
	}

	notif.TargetGroups = targetGroups
	if len(payloadRaw) > 0 {
		if err := json.Unmarshal(payloadRaw, &notif.Payload); err != nil {
			return models.Notification{}, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	if dispatchedAt.Valid {
		t := dispatchedAt.Time
		notif.DispatchedAt = &t
	}
	return notif, nil
}
