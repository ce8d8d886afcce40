package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/maheshrc27/brandcast/internal/models"
)

type SocialAccountRepository interface {
	Create(ctx context.Context, tx *sql.Tx, sa *models.SocialAccount) error
	GetByID(ctx context.Context, id string) (*models.SocialAccount, error)
	ListExpiring(ctx context.Context, before time.Time) ([]*models.SocialAccount, error)
	SetToken(ctx context.Context, id, oldAccessToken string, sa *models.SocialAccount) (bool, error)
	SetConnected(ctx context.Context, id string, connected bool, now time.Time) (bool, error)

	CreatePage(ctx context.Context, tx *sql.Tx, page *models.SocialAccountPage) error
	GetPage(ctx context.Context, id string) (*models.SocialAccountPage, error)
	SetPageToken(ctx context.Context, id, oldAccessToken, accessToken string, expiresAt *time.Time, now time.Time) (bool, error)
}

type socialAccountRepository struct {
	db *sql.DB
}

func NewSocialAccountRepository(db *sql.DB) SocialAccountRepository {
	return &socialAccountRepository{db: db}
}

const accountColumns = `id, user_id, platform, external_id, account_name, access_token, refresh_token,
	token_expires_at, is_connected, created_at, updated_at`

func scanAccount(row rowScanner) (*models.SocialAccount, error) {
	var (
		sa        models.SocialAccount
		expiresAt sql.NullTime
	)
	if err := row.Scan(&sa.ID, &sa.UserID, &sa.Platform, &sa.ExternalID, &sa.AccountName, &sa.AccessToken,
		&sa.RefreshToken, &expiresAt, &sa.IsConnected, &sa.CreatedAt, &sa.UpdatedAt); err != nil {
		return nil, err
	}
	sa.TokenExpiresAt = timePtr(expiresAt)
	sa.CreatedAt = sa.CreatedAt.UTC()
	sa.UpdatedAt = sa.UpdatedAt.UTC()
	return &sa, nil
}

func (r *socialAccountRepository) Create(ctx context.Context, tx *sql.Tx, sa *models.SocialAccount) error {
	query := `
		INSERT INTO social_accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := pick(r.db, tx).ExecContext(ctx, query, sa.ID, sa.UserID, sa.Platform, sa.ExternalID, sa.AccountName,
		sa.AccessToken, sa.RefreshToken, nullTime(sa.TokenExpiresAt), sa.IsConnected, sa.CreatedAt.UTC(), sa.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert social account: %w", err)
	}
	return nil
}

func (r *socialAccountRepository) GetByID(ctx context.Context, id string) (*models.SocialAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM social_accounts WHERE id = $1`
	sa, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get social account: %w", err)
	}
	return sa, nil
}

// ListExpiring returns connected accounts holding a refresh token whose
// access token expires before the given time.
func (r *socialAccountRepository) ListExpiring(ctx context.Context, before time.Time) ([]*models.SocialAccount, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM social_accounts
		WHERE is_connected = $1 AND refresh_token <> '' AND token_expires_at IS NOT NULL AND token_expires_at < $2
		ORDER BY token_expires_at
	`
	rows, err := r.db.QueryContext(ctx, query, true, before.UTC())
	if err != nil {
		return nil, fmt.Errorf("list expiring accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.SocialAccount
	for rows.Next() {
		sa, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expiring account: %w", err)
		}
		accounts = append(accounts, sa)
	}
	return accounts, rows.Err()
}

// SetToken stores refreshed tokens only if the stored access token is still
// the one the caller refreshed from. Empty fields keep the stored value.
func (r *socialAccountRepository) SetToken(ctx context.Context, id, oldAccessToken string, sa *models.SocialAccount) (bool, error) {
	query := `
		UPDATE social_accounts
		SET
			access_token = COALESCE(NULLIF($3, ''), access_token),
			refresh_token = COALESCE(NULLIF($4, ''), refresh_token),
			token_expires_at = COALESCE($5, token_expires_at),
			is_connected = $6,
			updated_at = $7
		WHERE id = $1 AND access_token = $2
	`
	res, err := r.db.ExecContext(ctx, query, id, oldAccessToken, sa.AccessToken, sa.RefreshToken,
		nullTime(sa.TokenExpiresAt), true, sa.UpdatedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("set token: %w", err)
	}
	n, err := rowsAffected(res)
	return n == 1, err
}

func (r *socialAccountRepository) SetConnected(ctx context.Context, id string, connected bool, now time.Time) (bool, error) {
	query := `UPDATE social_accounts SET is_connected = $2, updated_at = $3 WHERE id = $1 AND is_connected <> $2`
	res, err := r.db.ExecContext(ctx, query, id, connected, now.UTC())
	if err != nil {
		return false, fmt.Errorf("set connected: %w", err)
	}
	n, err := rowsAffected(res)
	return n == 1, err
}

func (r *socialAccountRepository) CreatePage(ctx context.Context, tx *sql.Tx, page *models.SocialAccountPage) error {
	query := `
		INSERT INTO social_account_pages (id, social_account_id, external_id, name, access_token, token_expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := pick(r.db, tx).ExecContext(ctx, query, page.ID, page.SocialAccountID, page.ExternalID, page.Name,
		page.AccessToken, nullTime(page.TokenExpiresAt), page.CreatedAt.UTC(), page.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert social account page: %w", err)
	}
	return nil
}

func (r *socialAccountRepository) GetPage(ctx context.Context, id string) (*models.SocialAccountPage, error) {
	query := `
		SELECT id, social_account_id, external_id, name, access_token, token_expires_at, created_at, updated_at
		FROM social_account_pages WHERE id = $1
	`
	var (
		page      models.SocialAccountPage
		expiresAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(&page.ID, &page.SocialAccountID, &page.ExternalID, &page.Name,
		&page.AccessToken, &expiresAt, &page.CreatedAt, &page.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get social account page: %w", err)
	}
	page.TokenExpiresAt = timePtr(expiresAt)
	return &page, nil
}

func (r *socialAccountRepository) SetPageToken(ctx context.Context, id, oldAccessToken, accessToken string, expiresAt *time.Time, now time.Time) (bool, error) {
	query := `
		UPDATE social_account_pages
		SET access_token = $3, token_expires_at = $4, updated_at = $5
		WHERE id = $1 AND access_token = $2
	`
	res, err := r.db.ExecContext(ctx, query, id, oldAccessToken, accessToken, nullTime(expiresAt), now.UTC())
	if err != nil {
		return false, fmt.Errorf("set page token: %w", err)
	}
	n, err := rowsAffected(res)
	return n == 1, err
}
