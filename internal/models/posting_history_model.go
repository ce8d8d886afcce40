package models

import "time"

type AttemptOutcome string

const (
	AttemptPublished AttemptOutcome = "PUBLISHED"
	AttemptFailed    AttemptOutcome = "FAILED"
	AttemptConflict  AttemptOutcome = "CONFLICT"
)

// PostingHistory is one dispatcher attempt at publishing a post.
type PostingHistory struct {
	ID           string         `db:"id" json:"id"`
	PostID       string         `db:"post_id" json:"post_id"`
	RunID        string         `db:"run_id" json:"run_id"`
	AccountID    string         `db:"account_id" json:"account_id"`
	Outcome      AttemptOutcome `db:"outcome" json:"outcome"`
	ErrorKind    string         `db:"error_kind" json:"error_kind,omitempty"`
	ErrorMessage string         `db:"error_message" json:"error_message,omitempty"`
	RemoteID     string         `db:"remote_id" json:"remote_id,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}
