package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/maheshrc27/brandcast/internal/models"
)

type CalendarRepository interface {
	CreateCalendar(ctx context.Context, tx *sql.Tx, c *models.ContentCalendar) error
	GetCalendar(ctx context.Context, tx *sql.Tx, id string) (*models.ContentCalendar, error)
	SetCalendarStatus(ctx context.Context, tx *sql.Tx, id string, from, to models.CalendarStatus, now time.Time) (bool, error)
	CountOpenItems(ctx context.Context, tx *sql.Tx, calendarID string) (int, error)

	CreateItem(ctx context.Context, tx *sql.Tx, item *models.ContentCalendarItem) error
	GetItem(ctx context.Context, tx *sql.Tx, id string) (*models.ContentCalendarItem, error)
	GetItemByGroupID(ctx context.Context, tx *sql.Tx, groupID string) (*models.ContentCalendarItem, error)
	LinkGroup(ctx context.Context, tx *sql.Tx, itemID, groupID string, now time.Time) (bool, error)
	PublishItem(ctx context.Context, tx *sql.Tx, itemID string, now time.Time) (bool, error)
	ListOrphanItems(ctx context.Context) ([]*models.ContentCalendarItem, error)
	ResetOrphan(ctx context.Context, tx *sql.Tx, itemID string, now time.Time) (bool, error)
}

type calendarRepository struct {
	db *sql.DB
}

func NewCalendarRepository(db *sql.DB) CalendarRepository {
	return &calendarRepository{db: db}
}

const itemColumns = `id, calendar_id, brand_id, day, topic, suggested_time, status, post_group_id, created_at, updated_at`

// orphanPredicate matches SCHEDULED items without a group or with an empty one.
const orphanPredicate = `
	status = 'SCHEDULED' AND (
		post_group_id IS NULL
		OR NOT EXISTS (SELECT 1 FROM posts p WHERE p.post_group_id = content_calendar_items.post_group_id)
	)`

func scanItem(row rowScanner) (*models.ContentCalendarItem, error) {
	var (
		item    models.ContentCalendarItem
		groupID sql.NullString
	)
	if err := row.Scan(&item.ID, &item.CalendarID, &item.BrandID, &item.Day, &item.Topic, &item.SuggestedTime,
		&item.Status, &groupID, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return nil, err
	}
	item.PostGroupID = groupID.String
	item.CreatedAt = item.CreatedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()
	return &item, nil
}

func (r *calendarRepository) CreateCalendar(ctx context.Context, tx *sql.Tx, c *models.ContentCalendar) error {
	query := `
		INSERT INTO content_calendars (id, brand_id, name, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := pick(r.db, tx).ExecContext(ctx, query, c.ID, c.BrandID, c.Name, c.Status, c.CreatedAt.UTC(), c.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert calendar: %w", err)
	}
	return nil
}

func (r *calendarRepository) GetCalendar(ctx context.Context, tx *sql.Tx, id string) (*models.ContentCalendar, error) {
	query := `SELECT id, brand_id, name, status, created_at, updated_at FROM content_calendars WHERE id = $1`

	var c models.ContentCalendar
	err := pick(r.db, tx).QueryRowContext(ctx, query, id).
		Scan(&c.ID, &c.BrandID, &c.Name, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get calendar: %w", err)
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

func (r *calendarRepository) SetCalendarStatus(ctx context.Context, tx *sql.Tx, id string, from, to models.CalendarStatus, now time.Time) (bool, error) {
	query := `UPDATE content_calendars SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	res, err := pick(r.db, tx).ExecContext(ctx, query, id, from, to, now.UTC())
	if err != nil {
		return false, fmt.Errorf("update calendar status: %w", err)
	}
	n, err := rowsAffected(res)
	return n == 1, err
}

// CountOpenItems counts items of the calendar that are not yet PUBLISHED.
func (r *calendarRepository) CountOpenItems(ctx context.Context, tx *sql.Tx, calendarID string) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM content_calendar_items WHERE calendar_id = $1 AND status <> $2`
	if err := pick(r.db, tx).QueryRowContext(ctx, query, calendarID, models.CalendarItemPublished).Scan(&n); err != nil {
		return 0, fmt.Errorf("count open items: %w", err)
	}
	return n, nil
}

func (r *calendarRepository) CreateItem(ctx context.Context, tx *sql.Tx, item *models.ContentCalendarItem) error {
	query := `
		INSERT INTO content_calendar_items (` + itemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := pick(r.db, tx).ExecContext(ctx, query, item.ID, item.CalendarID, item.BrandID, item.Day, item.Topic,
		item.SuggestedTime, item.Status, nullString(item.PostGroupID), item.CreatedAt.UTC(), item.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert calendar item: %w", err)
	}
	return nil
}

func (r *calendarRepository) GetItem(ctx context.Context, tx *sql.Tx, id string) (*models.ContentCalendarItem, error) {
	query := `SELECT ` + itemColumns + ` FROM content_calendar_items WHERE id = $1`
	item, err := scanItem(pick(r.db, tx).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get calendar item: %w", err)
	}
	return item, nil
}

func (r *calendarRepository) GetItemByGroupID(ctx context.Context, tx *sql.Tx, groupID string) (*models.ContentCalendarItem, error) {
	query := `SELECT ` + itemColumns + ` FROM content_calendar_items WHERE post_group_id = $1`
	item, err := scanItem(pick(r.db, tx).QueryRowContext(ctx, query, groupID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get calendar item by group: %w", err)
	}
	return item, nil
}

// LinkGroup attaches a post group to an EDITED item and marks it SCHEDULED.
func (r *calendarRepository) LinkGroup(ctx context.Context, tx *sql.Tx, itemID, groupID string, now time.Time) (bool, error) {
	query := `
		UPDATE content_calendar_items
		SET post_group_id = $2, status = $3, updated_at = $4
		WHERE id = $1 AND status = $5
	`
	res, err := pick(r.db, tx).ExecContext(ctx, query, itemID, groupID, models.CalendarItemScheduled, now.UTC(),
		models.CalendarItemEdited)
	if err != nil {
		return false, fmt.Errorf("link post group: %w", err)
	}
	n, err := rowsAffected(res)
	return n == 1, err
}

// PublishItem only moves SCHEDULED items forward; a PUBLISHED item is never touched.
func (r *calendarRepository) PublishItem(ctx context.Context, tx *sql.Tx, itemID string, now time.Time) (bool, error) {
	query := `UPDATE content_calendar_items SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`
	res, err := pick(r.db, tx).ExecContext(ctx, query, itemID, models.CalendarItemPublished, now.UTC(),
		models.CalendarItemScheduled)
	if err != nil {
		return false, fmt.Errorf("publish calendar item: %w", err)
	}
	n, err := rowsAffected(res)
	return n == 1, err
}

func (r *calendarRepository) ListOrphanItems(ctx context.Context) ([]*models.ContentCalendarItem, error) {
	query := `SELECT ` + itemColumns + ` FROM content_calendar_items WHERE ` + orphanPredicate + ` ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list orphan items: %w", err)
	}
	defer rows.Close()

	var items []*models.ContentCalendarItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan orphan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ResetOrphan re-checks the orphan predicate so a group that gained posts
// since it was listed is left alone.
func (r *calendarRepository) ResetOrphan(ctx context.Context, tx *sql.Tx, itemID string, now time.Time) (bool, error) {
	query := `
		UPDATE content_calendar_items
		SET status = $2, post_group_id = NULL, updated_at = $3
		WHERE id = $1 AND ` + orphanPredicate
	res, err := pick(r.db, tx).ExecContext(ctx, query, itemID, models.CalendarItemEdited, now.UTC())
	if err != nil {
		return false, fmt.Errorf("reset orphan item: %w", err)
	}
	n, err := rowsAffected(res)
	return n == 1, err
}
