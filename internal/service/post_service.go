package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/maheshrc27/brandcast/internal/models"
	"github.com/maheshrc27/brandcast/internal/platform"
	"github.com/maheshrc27/brandcast/internal/repository"
	"github.com/maheshrc27/brandcast/internal/transfer"
	"github.com/maheshrc27/brandcast/pkg/utils"
)

type PostService interface {
	CreatePost(ctx context.Context, spec *transfer.PostSpec) (*models.Post, error)
	SchedulePost(ctx context.Context, id string, when time.Time) (*models.Post, error)
	FindDuePosts(ctx context.Context, now time.Time) ([]*models.Post, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time, ref *platform.RemoteRef) error
	MarkFailed(ctx context.Context, id string, kind models.FailureKind, reason string) error
	GetPost(ctx context.Context, id string) (*models.Post, error)
	ListByGroup(ctx context.Context, groupID string) ([]*models.Post, error)
	ExpandCalendarItem(ctx context.Context, itemID string, req *transfer.ExpandRequest) (*models.PostGroup, []*models.Post, error)
}

type postService struct {
	db        *sql.DB
	posts     repository.PostRepository
	media     repository.PostMediaRepository
	groups    repository.PostGroupRepository
	calendars repository.CalendarRepository
	accounts  repository.SocialAccountRepository
	brands    repository.BrandAccountRepository
	clock     Clock
}

func NewPostService(
	db *sql.DB,
	posts repository.PostRepository,
	media repository.PostMediaRepository,
	groups repository.PostGroupRepository,
	calendars repository.CalendarRepository,
	accounts repository.SocialAccountRepository,
	brands repository.BrandAccountRepository,
	clock Clock) PostService {
	return &postService{
		db:        db,
		posts:     posts,
		media:     media,
		groups:    groups,
		calendars: calendars,
		accounts:  accounts,
		brands:    brands,
		clock:     clock,
	}
}

var platforms = map[models.Platform]bool{
	models.PlatformLinkedIn:  true,
	models.PlatformTwitter:   true,
	models.PlatformFacebook:  true,
	models.PlatformInstagram: true,
	models.PlatformYouTube:   true,
	models.PlatformTikTok:    true,
}

// checkTarget enforces that the account belongs to the brand, publishes on
// the requested platform and owns the page if one is given.
func (s *postService) checkTarget(ctx context.Context, brandID string, t transfer.Target) error {
	p := models.Platform(t.Platform)
	if !platforms[p] {
		return fmt.Errorf("%w: unknown platform %q", ErrInvalidPost, t.Platform)
	}

	account, err := s.accounts.GetByID(ctx, t.SocialAccountID)
	if err != nil {
		return err
	}
	if account == nil {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, t.SocialAccountID)
	}
	if account.Platform != p {
		return fmt.Errorf("%w: account %s is a %s account", ErrInvalidPost, account.ID, account.Platform)
	}

	linked, err := s.brands.IsLinked(ctx, nil, brandID, account.ID)
	if err != nil {
		return err
	}
	if !linked {
		return fmt.Errorf("%w: account %s, brand %s", ErrCrossBrand, account.ID, brandID)
	}

	if t.SocialAccountPageID != "" {
		page, err := s.accounts.GetPage(ctx, t.SocialAccountPageID)
		if err != nil {
			return err
		}
		if page == nil || page.SocialAccountID != account.ID {
			return fmt.Errorf("%w: %s", ErrPageNotFound, t.SocialAccountPageID)
		}
	}
	return nil
}

func buildMedia(postID string, specs []transfer.MediaSpec, now time.Time) ([]*models.PostMedia, error) {
	media := make([]*models.PostMedia, 0, len(specs))
	for i, m := range specs {
		kind := models.MediaKind(m.Kind)
		if kind != models.MediaKindImage && kind != models.MediaKindVideo {
			return nil, fmt.Errorf("%w: media %d has kind %q", ErrInvalidPost, i, m.Kind)
		}
		if m.StorageKey == "" && m.URL == "" {
			return nil, fmt.Errorf("%w: media %d has no source", ErrInvalidPost, i)
		}
		media = append(media, &models.PostMedia{
			ID:           utils.NewID(),
			PostID:       postID,
			Kind:         kind,
			StorageKey:   m.StorageKey,
			URL:          m.URL,
			MimeType:     m.MimeType,
			DisplayOrder: i,
			CreatedAt:    now,
		})
	}
	return media, nil
}

func (s *postService) insertPost(ctx context.Context, tx *sql.Tx, p *models.Post) error {
	if err := s.posts.Create(ctx, tx, p); err != nil {
		return err
	}
	for _, m := range p.Media {
		if err := s.media.Create(ctx, tx, m); err != nil {
			return err
		}
	}
	return nil
}

func (s *postService) CreatePost(ctx context.Context, spec *transfer.PostSpec) (*models.Post, error) {
	if spec == nil || spec.BrandID == "" || spec.UserID == "" {
		return nil, fmt.Errorf("%w: brand and user are required", ErrInvalidPost)
	}
	if spec.Content == "" && len(spec.Media) == 0 {
		return nil, fmt.Errorf("%w: content or media is required", ErrInvalidPost)
	}

	target := transfer.Target{
		Platform:            spec.Platform,
		SocialAccountID:     spec.SocialAccountID,
		SocialAccountPageID: spec.SocialAccountPageID,
	}
	if err := s.checkTarget(ctx, spec.BrandID, target); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	post := &models.Post{
		ID:                  utils.NewID(),
		BrandID:             spec.BrandID,
		UserID:              spec.UserID,
		Platform:            models.Platform(spec.Platform),
		SocialAccountID:     spec.SocialAccountID,
		SocialAccountPageID: spec.SocialAccountPageID,
		Title:               spec.Title,
		Content:             spec.Content,
		Status:              models.PostStatusDrafted,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	media, err := buildMedia(post.ID, spec.Media, now)
	if err != nil {
		return nil, err
	}
	post.Media = media

	err = repository.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return s.insertPost(ctx, tx, post)
	})
	if err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	return post, nil
}

func (s *postService) SchedulePost(ctx context.Context, id string, when time.Time) (*models.Post, error) {
	now := s.clock.Now()
	if !when.After(now) {
		return nil, ErrInvalidSchedule
	}

	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, ErrPostNotFound
	}
	if !post.CanSchedule() {
		return nil, fmt.Errorf("%w: post %s is %s", ErrInvalidTransition, id, post.Status)
	}

	ok, err := s.posts.Schedule(ctx, nil, id, when, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		// changed between the read and the update
		return nil, s.transitionError(ctx, id)
	}
	return s.posts.GetByID(ctx, id)
}

func (s *postService) FindDuePosts(ctx context.Context, now time.Time) ([]*models.Post, error) {
	return s.posts.FindDue(ctx, now)
}

// transitionError explains why a conditional transition matched no row.
func (s *postService) transitionError(ctx context.Context, id string) error {
	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if post == nil {
		return ErrPostNotFound
	}
	return fmt.Errorf("%w: post %s is %s", ErrAlreadyTransitioned, id, post.Status)
}

func (s *postService) MarkPublished(ctx context.Context, id string, publishedAt time.Time, ref *platform.RemoteRef) error {
	var remoteID, remoteURL string
	if ref != nil {
		remoteID, remoteURL = ref.ID, ref.URL
	}
	ok, err := s.posts.MarkPublished(ctx, id, publishedAt, remoteID, remoteURL)
	if err != nil {
		return err
	}
	if !ok {
		return s.transitionError(ctx, id)
	}
	return nil
}

func (s *postService) MarkFailed(ctx context.Context, id string, kind models.FailureKind, reason string) error {
	ok, err := s.posts.MarkFailed(ctx, id, kind, reason, s.clock.Now())
	if err != nil {
		return err
	}
	if !ok {
		return s.transitionError(ctx, id)
	}
	return nil
}

func (s *postService) GetPost(ctx context.Context, id string) (*models.Post, error) {
	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, ErrPostNotFound
	}
	if post.Media, err = s.media.ListByPostID(ctx, id); err != nil {
		return nil, err
	}
	return post, nil
}

func (s *postService) ListByGroup(ctx context.Context, groupID string) ([]*models.Post, error) {
	return s.posts.ListByGroupID(ctx, nil, groupID)
}

type targetKey struct {
	platform, account, page string
}

// ExpandCalendarItem materializes an EDITED calendar item into a post group
// with one SCHEDULED post per target. Everything happens in one transaction
// so a half-built group is never visible.
func (s *postService) ExpandCalendarItem(ctx context.Context, itemID string, req *transfer.ExpandRequest) (*models.PostGroup, []*models.Post, error) {
	now := s.clock.Now()
	if req == nil || len(req.Targets) == 0 {
		return nil, nil, fmt.Errorf("%w: at least one target is required", ErrInvalidPost)
	}
	if req.UserID == "" {
		return nil, nil, fmt.Errorf("%w: user is required", ErrInvalidPost)
	}
	if req.Content == "" && len(req.Media) == 0 {
		return nil, nil, fmt.Errorf("%w: content or media is required", ErrInvalidPost)
	}
	when := req.ScheduledAt.UTC()
	if !when.After(now) {
		return nil, nil, ErrInvalidSchedule
	}

	item, err := s.calendars.GetItem(ctx, nil, itemID)
	if err != nil {
		return nil, nil, err
	}
	if item == nil {
		return nil, nil, ErrCalendarItemNotFound
	}
	if item.Status != models.CalendarItemEdited {
		return nil, nil, fmt.Errorf("%w: item %s is %s", ErrCalendarItemState, item.ID, item.Status)
	}

	seen := make(map[targetKey]bool, len(req.Targets))
	for _, t := range req.Targets {
		key := targetKey{t.Platform, t.SocialAccountID, t.SocialAccountPageID}
		if seen[key] {
			return nil, nil, fmt.Errorf("%w: %s %s", ErrDuplicateTarget, t.Platform, t.SocialAccountID)
		}
		seen[key] = true
		if err := s.checkTarget(ctx, item.BrandID, t); err != nil {
			return nil, nil, err
		}
	}

	group := &models.PostGroup{ID: utils.NewID(), BrandID: item.BrandID, CreatedAt: now}
	posts := make([]*models.Post, 0, len(req.Targets))
	for _, t := range req.Targets {
		post := &models.Post{
			ID:                  utils.NewID(),
			BrandID:             item.BrandID,
			UserID:              req.UserID,
			PostGroupID:         group.ID,
			CalendarItemID:      item.ID,
			Platform:            models.Platform(t.Platform),
			SocialAccountID:     t.SocialAccountID,
			SocialAccountPageID: t.SocialAccountPageID,
			Title:               req.Title,
			Content:             req.Content,
			Status:              models.PostStatusDrafted,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if post.Media, err = buildMedia(post.ID, req.Media, now); err != nil {
			return nil, nil, err
		}
		posts = append(posts, post)
	}

	err = repository.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.groups.Create(ctx, tx, group); err != nil {
			return err
		}
		for _, post := range posts {
			if err := s.insertPost(ctx, tx, post); err != nil {
				return err
			}
			ok, err := s.posts.Schedule(ctx, tx, post.ID, when, now)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: post %s", ErrInvalidTransition, post.ID)
			}
		}

		ok, err := s.calendars.LinkGroup(ctx, tx, item.ID, group.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: item %s changed concurrently", ErrCalendarItemState, item.ID)
		}

		_, err = s.calendars.SetCalendarStatus(ctx, tx, item.CalendarID,
			models.CalendarStatusDraft, models.CalendarStatusScheduled, now)
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("expand calendar item: %w", err)
	}

	for _, post := range posts {
		post.Status = models.PostStatusScheduled
		post.ScheduledAt = &when
	}
	return group, posts, nil
}
