package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/maheshrc27/brandcast/internal/models"
)

// BrandAccountRepository tracks which brands may publish through an account.
type BrandAccountRepository interface {
	Link(ctx context.Context, tx *sql.Tx, link *models.BrandSocialAccount) error
	IsLinked(ctx context.Context, tx *sql.Tx, brandID, accountID string) (bool, error)
}

type brandAccountRepository struct {
	db *sql.DB
}

func NewBrandAccountRepository(db *sql.DB) BrandAccountRepository {
	return &brandAccountRepository{db: db}
}

func (r *brandAccountRepository) Link(ctx context.Context, tx *sql.Tx, link *models.BrandSocialAccount) error {
	query := `
		INSERT INTO brand_social_accounts (brand_id, social_account_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (brand_id, social_account_id) DO NOTHING
	`
	if _, err := pick(r.db, tx).ExecContext(ctx, query, link.BrandID, link.SocialAccountID, link.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("link brand account: %w", err)
	}
	return nil
}

func (r *brandAccountRepository) IsLinked(ctx context.Context, tx *sql.Tx, brandID, accountID string) (bool, error) {
	query := "SELECT 1 FROM brand_social_accounts WHERE brand_id = $1 AND social_account_id = $2"

	var result int
	err := pick(r.db, tx).QueryRowContext(ctx, query, brandID, accountID).Scan(&result)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check brand account: %w", err)
	}
	return result == 1, nil
}
