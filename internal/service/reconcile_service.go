package service

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/maheshrc27/brandcast/internal/repository"
	"github.com/maheshrc27/brandcast/internal/transfer"
)

type ReconcileService interface {
	PublishOverdue(ctx context.Context, now time.Time) (*transfer.OverdueReport, error)
	RepairOrphans(ctx context.Context, now time.Time) (*transfer.OrphanReport, error)
}

type reconcileService struct {
	db         *sql.DB
	posts      PostService
	calendars  repository.CalendarRepository
	groups     repository.PostGroupRepository
	dispatcher Dispatcher
	grace      time.Duration
	logger     *slog.Logger
}

func NewReconcileService(
	db *sql.DB,
	posts PostService,
	calendars repository.CalendarRepository,
	groups repository.PostGroupRepository,
	dispatcher Dispatcher,
	grace time.Duration,
	logger *slog.Logger) ReconcileService {
	return &reconcileService{
		db:         db,
		posts:      posts,
		calendars:  calendars,
		groups:     groups,
		dispatcher: dispatcher,
		grace:      grace,
		logger:     logger,
	}
}

// PublishOverdue reports posts still SCHEDULED more than the grace period
// past their time, which means a trigger was missed, and then re-drives
// everything due through a normal run.
func (s *reconcileService) PublishOverdue(ctx context.Context, now time.Time) (*transfer.OverdueReport, error) {
	now = now.UTC()
	due, err := s.posts.FindDuePosts(ctx, now)
	if err != nil {
		return nil, err
	}

	report := &transfer.OverdueReport{Overdue: []transfer.OverduePost{}}
	cutoff := now.Add(-s.grace)
	for _, p := range due {
		if !p.IsDue(now) || !p.ScheduledAt.Before(cutoff) {
			continue
		}
		report.Overdue = append(report.Overdue, transfer.OverduePost{
			PostID:      p.ID,
			Platform:    string(p.Platform),
			ScheduledAt: *p.ScheduledAt,
			LateBy:      now.Sub(*p.ScheduledAt).Truncate(time.Second).String(),
		})
	}
	if len(report.Overdue) > 0 {
		s.logger.Warn("overdue posts found", "count", len(report.Overdue), "grace", s.grace)
	}

	report.Run, err = s.dispatcher.RunOnce(ctx, now)
	if err != nil {
		return report, err
	}
	return report, nil
}

// RepairOrphans resets SCHEDULED calendar items whose group is missing or
// empty back to EDITED and deletes the empty group. Once no orphan is left
// a further run changes nothing.
func (s *reconcileService) RepairOrphans(ctx context.Context, now time.Time) (*transfer.OrphanReport, error) {
	now = now.UTC()
	items, err := s.calendars.ListOrphanItems(ctx)
	if err != nil {
		return nil, err
	}

	report := &transfer.OrphanReport{Scanned: len(items), Repaired: []string{}, DeletedGroups: []string{}}
	for _, item := range items {
		var repaired, deleted bool
		err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) error {
			var err error
			repaired, err = s.calendars.ResetOrphan(ctx, tx, item.ID, now)
			if err != nil || !repaired {
				return err
			}
			if item.PostGroupID == "" {
				return nil
			}
			deleted, err = s.groups.DeleteIfEmpty(ctx, tx, item.PostGroupID)
			return err
		})
		if err != nil {
			return report, err
		}
		if !repaired {
			continue
		}
		report.Repaired = append(report.Repaired, item.ID)
		if deleted {
			report.DeletedGroups = append(report.DeletedGroups, item.PostGroupID)
		}
		s.logger.Info("orphan calendar item repaired",
			"calendar_item_id", item.ID, "post_group_id", item.PostGroupID, "group_deleted", deleted)
	}
	return report, nil
}
