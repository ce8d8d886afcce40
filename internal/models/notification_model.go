package models

import "time"

type NotificationType string

const (
	NotificationPostPublished       NotificationType = "POST_PUBLISHED"
	NotificationPostFailed          NotificationType = "POST_FAILED"
	NotificationAccountDisconnected NotificationType = "ACCOUNT_DISCONNECTED"
)

type NotificationMetadata struct {
	Platform  Platform `json:"platform,omitempty"`
	PostID    string   `json:"postId,omitempty"`
	AccountID string   `json:"accountId,omitempty"`
	Error     string   `json:"error,omitempty"`
	Kind      string   `json:"kind,omitempty"`
	RemoteURL string   `json:"remoteUrl,omitempty"`
}

type Notification struct {
	ID        string               `db:"id" json:"id"`
	Type      NotificationType     `db:"type" json:"type"`
	UserID    string               `db:"user_id" json:"user_id"`
	BrandID   string               `db:"brand_id" json:"brand_id,omitempty"`
	Metadata  NotificationMetadata `db:"metadata" json:"metadata"`
	Read      bool                 `db:"is_read" json:"read"`
	CreatedAt time.Time            `db:"created_at" json:"created_at"`
}
