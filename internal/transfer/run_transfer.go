package transfer

import "time"

// RunSummary is the result contract of one dispatcher invocation.
type RunSummary struct {
	RunID        string     `json:"runId"`
	StartedAt    time.Time  `json:"startedAt"`
	FinishedAt   time.Time  `json:"finishedAt"`
	Processed    int        `json:"processed"`
	SuccessCount int        `json:"successCount"`
	FailedCount  int        `json:"failedCount"`
	SkippedCount int        `json:"skippedCount"`
	Results      RunResults `json:"results"`
}

type RunResults struct {
	Published []PublishedResult `json:"published"`
	Failed    []FailedResult    `json:"failed"`
}

type PublishedResult struct {
	PostID   string `json:"postId"`
	Platform string `json:"platform"`
	RemoteID string `json:"remoteId,omitempty"`
}

type FailedResult struct {
	PostID      string `json:"postId"`
	Platform    string `json:"platform"`
	Kind        string `json:"kind"`
	Error       string `json:"error"`
	Rescheduled bool   `json:"rescheduled,omitempty"`
}

type OverduePost struct {
	PostID      string    `json:"postId"`
	Platform    string    `json:"platform"`
	ScheduledAt time.Time `json:"scheduledAt"`
	LateBy      string    `json:"lateBy"`
}

type OverdueReport struct {
	Overdue []OverduePost `json:"overdue"`
	Run     *RunSummary   `json:"run"`
}

type OrphanReport struct {
	Scanned       int      `json:"scanned"`
	Repaired      []string `json:"repaired"`
	DeletedGroups []string `json:"deletedGroups"`
}
