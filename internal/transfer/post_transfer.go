package transfer

import "time"

type MediaSpec struct {
	Kind       string `json:"kind"`
	StorageKey string `json:"storage_key,omitempty"`
	URL        string `json:"url,omitempty"`
	MimeType   string `json:"mime_type,omitempty"`
}

// PostSpec describes a single post to create in DRAFTED state.
type PostSpec struct {
	BrandID             string      `json:"brand_id"`
	UserID              string      `json:"user_id"`
	Platform            string      `json:"platform"`
	SocialAccountID     string      `json:"social_account_id"`
	SocialAccountPageID string      `json:"social_account_page_id,omitempty"`
	Title               string      `json:"title,omitempty"`
	Content             string      `json:"content"`
	Media               []MediaSpec `json:"media,omitempty"`
}

type ScheduleRequest struct {
	ScheduledAt time.Time `json:"scheduled_at"`
}

type Target struct {
	Platform            string `json:"platform"`
	SocialAccountID     string `json:"social_account_id"`
	SocialAccountPageID string `json:"social_account_page_id,omitempty"`
}

// ExpandRequest fans one calendar item out into a post group.
type ExpandRequest struct {
	UserID      string      `json:"-"`
	Title       string      `json:"title,omitempty"`
	Content     string      `json:"content"`
	Media       []MediaSpec `json:"media,omitempty"`
	Targets     []Target    `json:"targets"`
	ScheduledAt time.Time   `json:"scheduled_at"`
}
