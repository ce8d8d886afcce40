package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/maheshrc27/brandcast/internal/models"
)

type PostRepository interface {
	Create(ctx context.Context, tx *sql.Tx, p *models.Post) error
	GetByID(ctx context.Context, id string) (*models.Post, error)
	ListByGroupID(ctx context.Context, tx *sql.Tx, groupID string) ([]*models.Post, error)
	FindDue(ctx context.Context, now time.Time) ([]*models.Post, error)
	Schedule(ctx context.Context, tx *sql.Tx, id string, when, now time.Time) (bool, error)
	Claim(ctx context.Context, id, runID string, now, leaseUntil time.Time) (bool, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time, remoteID, remoteURL string) (bool, error)
	MarkFailed(ctx context.Context, id string, kind models.FailureKind, reason string, now time.Time) (bool, error)
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

const postColumns = `id, brand_id, user_id, post_group_id, calendar_item_id, platform,
	social_account_id, social_account_page_id, title, content, status, scheduled_at,
	published_at, remote_id, remote_url, failure_kind, failure_reason, attempts,
	claimed_by, claim_expires_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*models.Post, error) {
	var (
		p                                  models.Post
		groupID, itemID, pageID            sql.NullString
		scheduledAt, publishedAt, claimExp sql.NullTime
	)
	err := row.Scan(&p.ID, &p.BrandID, &p.UserID, &groupID, &itemID, &p.Platform,
		&p.SocialAccountID, &pageID, &p.Title, &p.Content, &p.Status, &scheduledAt,
		&publishedAt, &p.RemoteID, &p.RemoteURL, &p.FailureKind, &p.FailureReason, &p.Attempts,
		&p.ClaimedBy, &claimExp, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.PostGroupID = groupID.String
	p.CalendarItemID = itemID.String
	p.SocialAccountPageID = pageID.String
	p.ScheduledAt = timePtr(scheduledAt)
	p.PublishedAt = timePtr(publishedAt)
	p.ClaimExpiresAt = timePtr(claimExp)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func scanPosts(rows *sql.Rows) ([]*models.Post, error) {
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return posts, nil
}

func (r *postRepository) Create(ctx context.Context, tx *sql.Tx, p *models.Post) error {
	query := `
		INSERT INTO posts (` + postColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	`
	_, err := pick(r.db, tx).ExecContext(ctx, query,
		p.ID, p.BrandID, p.UserID, nullString(p.PostGroupID), nullString(p.CalendarItemID), p.Platform,
		p.SocialAccountID, nullString(p.SocialAccountPageID), p.Title, p.Content, p.Status, nullTime(p.ScheduledAt),
		nullTime(p.PublishedAt), p.RemoteID, p.RemoteURL, p.FailureKind, p.FailureReason, p.Attempts,
		p.ClaimedBy, nullTime(p.ClaimExpiresAt), p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

func (r *postRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`
	p, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get post: %w", err)
	}
	return p, nil
}

func (r *postRepository) ListByGroupID(ctx context.Context, tx *sql.Tx, groupID string) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE post_group_id = $1 ORDER BY created_at, id`
	rows, err := pick(r.db, tx).QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("list group posts: %w", err)
	}
	posts, err := scanPosts(rows)
	if err != nil {
		return nil, fmt.Errorf("scan group posts: %w", err)
	}
	return posts, nil
}

// FindDue returns SCHEDULED posts whose time has come, oldest first.
func (r *postRepository) FindDue(ctx context.Context, now time.Time) ([]*models.Post, error) {
	query := `
		SELECT ` + postColumns + `
		FROM posts
		WHERE status = $1 AND scheduled_at <= $2
		ORDER BY scheduled_at ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, models.PostStatusScheduled, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("find due posts: %w", err)
	}
	posts, err := scanPosts(rows)
	if err != nil {
		return nil, fmt.Errorf("scan due posts: %w", err)
	}
	return posts, nil
}

func (r *postRepository) Schedule(ctx context.Context, tx *sql.Tx, id string, when, now time.Time) (bool, error) {
	query := `
		UPDATE posts
		SET status = $2, scheduled_at = $3, published_at = NULL,
			failure_kind = '', failure_reason = '', claimed_by = '', claim_expires_at = NULL,
			updated_at = $4
		WHERE id = $1 AND status IN ($5, $6)
	`
	res, err := pick(r.db, tx).ExecContext(ctx, query, id, models.PostStatusScheduled, when.UTC(), now.UTC(),
		models.PostStatusDrafted, models.PostStatusFailed)
	if err != nil {
		return false, fmt.Errorf("schedule post: %w", err)
	}
	n, err := rowsAffected(res)
	return n == 1, err
}

// Claim leases a due post to one dispatcher run. A post whose lease is still
// live belongs to another run.
func (r *postRepository) Claim(ctx context.Context, id, runID string, now, leaseUntil time.Time) (bool, error) {
	query := `
		UPDATE posts
		SET claimed_by = $2, claim_expires_at = $3, attempts = attempts + 1, updated_at = $4
		WHERE id = $1 AND status = $5 AND (claim_expires_at IS NULL OR claim_expires_at <= $4)
	`
	res, err := r.db.ExecContext(ctx, query, id, runID, leaseUntil.UTC(), now.UTC(), models.PostStatusScheduled)
	if err != nil {
		return false, fmt.Errorf("claim post: %w", err)
	}
	n, err := rowsAffected(res)
	return n == 1, err
}

func (r *postRepository) MarkPublished(ctx context.Context, id string, publishedAt time.Time, remoteID, remoteURL string) (bool, error) {
	query := `
		UPDATE posts
		SET status = $2, published_at = $3, remote_id = $4, remote_url = $5,
			failure_kind = '', failure_reason = '', claim_expires_at = NULL, updated_at = $3
		WHERE id = $1 AND status = $6
	`
	res, err := r.db.ExecContext(ctx, query, id, models.PostStatusPublished, publishedAt.UTC(), remoteID, remoteURL,
		models.PostStatusScheduled)
	if err != nil {
		return false, fmt.Errorf("mark post published: %w", err)
	}
	n, err := rowsAffected(res)
	return n == 1, err
}

func (r *postRepository) MarkFailed(ctx context.Context, id string, kind models.FailureKind, reason string, now time.Time) (bool, error) {
	query := `
		UPDATE posts
		SET status = $2, failure_kind = $3, failure_reason = $4, published_at = NULL,
			claim_expires_at = NULL, updated_at = $5
		WHERE id = $1 AND status = $6
	`
	res, err := r.db.ExecContext(ctx, query, id, models.PostStatusFailed, kind, reason, now.UTC(),
		models.PostStatusScheduled)
	if err != nil {
		return false, fmt.Errorf("mark post failed: %w", err)
	}
	n, err := rowsAffected(res)
	return n == 1, err
}
