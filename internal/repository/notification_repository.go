package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/maheshrc27/brandcast/internal/models"
)

// NotificationRepository is append-only apart from the read flag.
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByUserID(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*models.Notification, error)
	MarkRead(ctx context.Context, id, userID string) (bool, error)
}

type notificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, n *models.Notification) error {
	metadata, err := json.Marshal(n.Metadata)
	if err != nil {
		return fmt.Errorf("encode notification metadata: %w", err)
	}

	query := `
		INSERT INTO notifications (id, type, user_id, brand_id, metadata, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.db.ExecContext(ctx, query, n.ID, n.Type, n.UserID, n.BrandID, string(metadata), n.Read, n.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *notificationRepository) ListByUserID(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*models.Notification, error) {
	query := `
		SELECT id, type, user_id, brand_id, metadata, is_read, created_at
		FROM notifications
		WHERE user_id = $1
	`
	args := []any{userID}
	if unreadOnly {
		query += ` AND is_read = $2`
		args = append(args, false)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT %d`, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*models.Notification
	for rows.Next() {
		var (
			n        models.Notification
			metadata string
		)
		if err := rows.Scan(&n.ID, &n.Type, &n.UserID, &n.BrandID, &metadata, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		if err := json.Unmarshal([]byte(metadata), &n.Metadata); err != nil {
			return nil, fmt.Errorf("decode notification metadata: %w", err)
		}
		n.CreatedAt = n.CreatedAt.UTC()
		notifications = append(notifications, &n)
	}
	return notifications, rows.Err()
}

func (r *notificationRepository) MarkRead(ctx context.Context, id, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET is_read = $3 WHERE id = $1 AND user_id = $2`, id, userID, true)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	n, err := rowsAffected(res)
	return n == 1, err
}
