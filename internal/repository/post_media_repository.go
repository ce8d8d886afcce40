package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/maheshrc27/brandcast/internal/models"
)

type PostMediaRepository interface {
	Create(ctx context.Context, tx *sql.Tx, pm *models.PostMedia) error
	ListByPostID(ctx context.Context, postID string) ([]*models.PostMedia, error)
}

type postMediaRepository struct {
	db *sql.DB
}

func NewPostMediaRepository(db *sql.DB) PostMediaRepository {
	return &postMediaRepository{db: db}
}

func (r *postMediaRepository) Create(ctx context.Context, tx *sql.Tx, pm *models.PostMedia) error {
	query := `
		INSERT INTO post_media (id, post_id, kind, storage_key, url, mime_type, display_order, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := pick(r.db, tx).ExecContext(ctx, query, pm.ID, pm.PostID, pm.Kind, pm.StorageKey, pm.URL,
		pm.MimeType, pm.DisplayOrder, pm.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert post media: %w", err)
	}
	return nil
}

func (r *postMediaRepository) ListByPostID(ctx context.Context, postID string) ([]*models.PostMedia, error) {
	query := `
		SELECT id, post_id, kind, storage_key, url, mime_type, display_order, created_at
		FROM post_media
		WHERE post_id = $1
		ORDER BY display_order, id
	`
	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		return nil, fmt.Errorf("list post media: %w", err)
	}
	defer rows.Close()

	var media []*models.PostMedia
	for rows.Next() {
		var pm models.PostMedia
		if err := rows.Scan(&pm.ID, &pm.PostID, &pm.Kind, &pm.StorageKey, &pm.URL, &pm.MimeType,
			&pm.DisplayOrder, &pm.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan post media: %w", err)
		}
		media = append(media, &pm)
	}
	return media, rows.Err()
}
