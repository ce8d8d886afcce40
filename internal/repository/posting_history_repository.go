package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/maheshrc27/brandcast/internal/models"
)

type PostingHistoryRepository interface {
	Create(ctx context.Context, ph *models.PostingHistory) error
	ListByPostID(ctx context.Context, postID string) ([]*models.PostingHistory, error)
}

type postingHistoryRepository struct {
	db *sql.DB
}

func NewPostingHistoryRepository(db *sql.DB) PostingHistoryRepository {
	return &postingHistoryRepository{db: db}
}

func (r *postingHistoryRepository) Create(ctx context.Context, ph *models.PostingHistory) error {
	query := `
		INSERT INTO posting_history (id, post_id, run_id, account_id, outcome, error_kind, error_message, remote_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query, ph.ID, ph.PostID, ph.RunID, ph.AccountID, ph.Outcome,
		ph.ErrorKind, ph.ErrorMessage, ph.RemoteID, ph.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert posting history: %w", err)
	}
	return nil
}

func (r *postingHistoryRepository) ListByPostID(ctx context.Context, postID string) ([]*models.PostingHistory, error) {
	query := `
		SELECT id, post_id, run_id, account_id, outcome, error_kind, error_message, remote_id, created_at
		FROM posting_history
		WHERE post_id = $1
		ORDER BY created_at, id
	`
	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		return nil, fmt.Errorf("list posting history: %w", err)
	}
	defer rows.Close()

	var history []*models.PostingHistory
	for rows.Next() {
		var ph models.PostingHistory
		if err := rows.Scan(&ph.ID, &ph.PostID, &ph.RunID, &ph.AccountID, &ph.Outcome, &ph.ErrorKind,
			&ph.ErrorMessage, &ph.RemoteID, &ph.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan posting history: %w", err)
		}
		history = append(history, &ph)
	}
	return history, rows.Err()
}
