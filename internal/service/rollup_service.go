package service

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/maheshrc27/brandcast/internal/models"
	"github.com/maheshrc27/brandcast/internal/repository"
)

type RollupResult struct {
	ItemID string
	Status models.CalendarItemStatus
	// Changed is true when this call advanced the item.
	Changed           bool
	CalendarCompleted bool
}

// RollupService derives a calendar item's status from its post group.
type RollupService interface {
	Rollup(ctx context.Context, groupID string) (*RollupResult, error)
}

type rollupService struct {
	db        *sql.DB
	posts     repository.PostRepository
	calendars repository.CalendarRepository
	clock     Clock
	logger    *slog.Logger
}

func NewRollupService(db *sql.DB, posts repository.PostRepository, calendars repository.CalendarRepository,
	clock Clock, logger *slog.Logger) RollupService {
	return &rollupService{db: db, posts: posts, calendars: calendars, clock: clock, logger: logger}
}

// Rollup only ever moves an item from SCHEDULED to PUBLISHED, and only when
// every post of the group is PUBLISHED. Any other mix leaves the item where
// it is. It returns nil for standalone groups.
func (s *rollupService) Rollup(ctx context.Context, groupID string) (*RollupResult, error) {
	if groupID == "" {
		return nil, nil
	}

	posts, err := s.posts.ListByGroupID(ctx, nil, groupID)
	if err != nil {
		return nil, err
	}
	item, err := s.calendars.GetItemByGroupID(ctx, nil, groupID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, nil
	}

	result := &RollupResult{ItemID: item.ID, Status: item.Status}
	if len(posts) == 0 {
		s.logger.Warn("empty post group left for reconciliation",
			"error", ErrDataIntegrity, "post_group_id", groupID, "calendar_item_id", item.ID)
		return result, nil
	}

	for _, p := range posts {
		if p.Status != models.PostStatusPublished {
			return result, nil
		}
	}
	if !item.Status.Advances(models.CalendarItemPublished) {
		return result, nil
	}

	now := s.clock.Now()
	err = repository.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		ok, err := s.calendars.PublishItem(ctx, tx, item.ID, now)
		if err != nil || !ok {
			return err
		}
		result.Changed = true
		result.Status = models.CalendarItemPublished

		open, err := s.calendars.CountOpenItems(ctx, tx, item.CalendarID)
		if err != nil || open > 0 {
			return err
		}
		result.CalendarCompleted, err = s.calendars.SetCalendarStatus(ctx, tx, item.CalendarID,
			models.CalendarStatusScheduled, models.CalendarStatusCompleted, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	if result.Changed {
		s.logger.Info("calendar item published",
			"calendar_item_id", item.ID, "post_group_id", groupID, "calendar_completed", result.CalendarCompleted)
	}
	return result, nil
}
