package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/maheshrc27/brandcast/internal/models"
)

type PostGroupRepository interface {
	Create(ctx context.Context, tx *sql.Tx, g *models.PostGroup) error
	GetByID(ctx context.Context, tx *sql.Tx, id string) (*models.PostGroup, error)
	// DeleteIfEmpty removes the group only when no post references it.
	DeleteIfEmpty(ctx context.Context, tx *sql.Tx, id string) (bool, error)
}

type postGroupRepository struct {
	db *sql.DB
}

func NewPostGroupRepository(db *sql.DB) PostGroupRepository {
	return &postGroupRepository{db: db}
}

func (r *postGroupRepository) Create(ctx context.Context, tx *sql.Tx, g *models.PostGroup) error {
	query := `INSERT INTO post_groups (id, brand_id, created_at) VALUES ($1, $2, $3)`
	if _, err := pick(r.db, tx).ExecContext(ctx, query, g.ID, g.BrandID, g.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("insert post group: %w", err)
	}
	return nil
}

func (r *postGroupRepository) GetByID(ctx context.Context, tx *sql.Tx, id string) (*models.PostGroup, error) {
	var g models.PostGroup
	err := pick(r.db, tx).QueryRowContext(ctx, `SELECT id, brand_id, created_at FROM post_groups WHERE id = $1`, id).
		Scan(&g.ID, &g.BrandID, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get post group: %w", err)
	}
	g.CreatedAt = g.CreatedAt.UTC()
	return &g, nil
}

func (r *postGroupRepository) DeleteIfEmpty(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	query := `
		DELETE FROM post_groups
		WHERE id = $1 AND NOT EXISTS (SELECT 1 FROM posts WHERE post_group_id = $1)
	`
	res, err := pick(r.db, tx).ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("delete post group: %w", err)
	}
	n, err := rowsAffected(res)
	return n == 1, err
}
