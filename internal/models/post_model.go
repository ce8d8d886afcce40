package models

import "time"

type PostStatus string

const (
	PostStatusDrafted   PostStatus = "DRAFTED"
	PostStatusScheduled PostStatus = "SCHEDULED"
	PostStatusPublished PostStatus = "PUBLISHED"
	PostStatusFailed    PostStatus = "FAILED"
)

type Platform string

const (
	PlatformLinkedIn  Platform = "LINKEDIN"
	PlatformTwitter   Platform = "TWITTER"
	PlatformFacebook  Platform = "FACEBOOK"
	PlatformInstagram Platform = "INSTAGRAM"
	PlatformYouTube   Platform = "YOUTUBE"
	PlatformTikTok    Platform = "TIKTOK"
)

// FailureKind records why a post ended up FAILED.
type FailureKind string

const (
	FailureTransient      FailureKind = "TRANSIENT"
	FailureRejected       FailureKind = "REJECTED"
	FailureReauthRequired FailureKind = "REAUTH_REQUIRED"
	FailureExpired        FailureKind = "CREDENTIAL_EXPIRED"
)

type Post struct {
	ID                  string      `db:"id" json:"id"`
	BrandID             string      `db:"brand_id" json:"brand_id"`
	UserID              string      `db:"user_id" json:"user_id"`
	PostGroupID         string      `db:"post_group_id" json:"post_group_id,omitempty"`
	CalendarItemID      string      `db:"calendar_item_id" json:"calendar_item_id,omitempty"`
	Platform            Platform    `db:"platform" json:"platform"`
	SocialAccountID     string      `db:"social_account_id" json:"social_account_id"`
	SocialAccountPageID string      `db:"social_account_page_id" json:"social_account_page_id,omitempty"`
	Title               string      `db:"title" json:"title,omitempty"`
	Content             string      `db:"content" json:"content"`
	Status              PostStatus  `db:"status" json:"status"`
	ScheduledAt         *time.Time  `db:"scheduled_at" json:"scheduled_at,omitempty"`
	PublishedAt         *time.Time  `db:"published_at" json:"published_at,omitempty"`
	RemoteID            string      `db:"remote_id" json:"remote_id,omitempty"`
	RemoteURL           string      `db:"remote_url" json:"remote_url,omitempty"`
	FailureKind         FailureKind `db:"failure_kind" json:"failure_kind,omitempty"`
	FailureReason       string      `db:"failure_reason" json:"failure_reason,omitempty"`
	Attempts            int         `db:"attempts" json:"attempts"`
	ClaimedBy           string      `db:"claimed_by" json:"-"`
	ClaimExpiresAt      *time.Time  `db:"claim_expires_at" json:"-"`
	CreatedAt           time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time   `db:"updated_at" json:"updated_at"`

	Media []*PostMedia `db:"-" json:"media,omitempty"`
}

// IsDue reports whether the post should be picked up by a dispatcher run at now.
func (p *Post) IsDue(now time.Time) bool {
	return p.Status == PostStatusScheduled && p.ScheduledAt != nil && !p.ScheduledAt.After(now)
}

func (p *Post) CanSchedule() bool {
	return p.Status == PostStatusDrafted || p.Status == PostStatusFailed
}

type MediaKind string

const (
	MediaKindImage MediaKind = "IMAGE"
	MediaKindVideo MediaKind = "VIDEO"
)

// PostMedia references a stored media object. StorageKey points into the
// object store, URL is the public address platforms can pull from.
type PostMedia struct {
	ID           string    `db:"id" json:"id"`
	PostID       string    `db:"post_id" json:"post_id"`
	Kind         MediaKind `db:"kind" json:"kind"`
	StorageKey   string    `db:"storage_key" json:"storage_key,omitempty"`
	URL          string    `db:"url" json:"url,omitempty"`
	MimeType     string    `db:"mime_type" json:"mime_type,omitempty"`
	DisplayOrder int       `db:"display_order" json:"display_order"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// PostGroup is one authored content item materialized into per-platform posts.
type PostGroup struct {
	ID        string    `db:"id" json:"id"`
	BrandID   string    `db:"brand_id" json:"brand_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
