package service

import (
	"context"

	"github.com/maheshrc27/brandcast/internal/models"
	"github.com/maheshrc27/brandcast/internal/repository"
	"github.com/maheshrc27/brandcast/pkg/utils"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
)

type NotificationService interface {
	PostPublished(ctx context.Context, post *models.Post) error
	PostFailed(ctx context.Context, post *models.Post, kind models.FailureKind, reason string) error
	AccountDisconnected(ctx context.Context, account *models.SocialAccount, reason string) error
	List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*models.Notification, error)
	MarkRead(ctx context.Context, id, userID string) error
}

type notificationService struct {
	nr    repository.NotificationRepository
	clock Clock
}

func NewNotificationService(nr repository.NotificationRepository, clock Clock) NotificationService {
	return &notificationService{nr: nr, clock: clock}
}

func (s *notificationService) create(ctx context.Context, typ models.NotificationType, userID, brandID string, meta models.NotificationMetadata) error {
	return s.nr.Create(ctx, &models.Notification{
		ID:        utils.NewID(),
		Type:      typ,
		UserID:    userID,
		BrandID:   brandID,
		Metadata:  meta,
		CreatedAt: s.clock.Now(),
	})
}

func (s *notificationService) PostPublished(ctx context.Context, post *models.Post) error {
	return s.create(ctx, models.NotificationPostPublished, post.UserID, post.BrandID, models.NotificationMetadata{
		Platform:  post.Platform,
		PostID:    post.ID,
		AccountID: post.SocialAccountID,
		RemoteURL: post.RemoteURL,
	})
}

func (s *notificationService) PostFailed(ctx context.Context, post *models.Post, kind models.FailureKind, reason string) error {
	return s.create(ctx, models.NotificationPostFailed, post.UserID, post.BrandID, models.NotificationMetadata{
		Platform:  post.Platform,
		PostID:    post.ID,
		AccountID: post.SocialAccountID,
		Error:     reason,
		Kind:      string(kind),
	})
}

func (s *notificationService) AccountDisconnected(ctx context.Context, account *models.SocialAccount, reason string) error {
	return s.create(ctx, models.NotificationAccountDisconnected, account.UserID, "", models.NotificationMetadata{
		Platform:  account.Platform,
		AccountID: account.ID,
		Error:     reason,
	})
}

func (s *notificationService) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}
	return s.nr.ListByUserID(ctx, userID, unreadOnly, limit)
}

func (s *notificationService) MarkRead(ctx context.Context, id, userID string) error {
	ok, err := s.nr.MarkRead(ctx, id, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotificationNotFound
	}
	return nil
}
