package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPostIsDue(t *testing.T) {
	now := time.Date(2026, 2, 17, 1, 40, 0, 0, time.UTC)
	past, future := now.Add(-5*time.Minute), now.Add(5*time.Minute)

	tests := []struct {
		name string
		post Post
		want bool
	}{
		{"scheduled in the past", Post{Status: PostStatusScheduled, ScheduledAt: &past}, true},
		{"scheduled exactly now", Post{Status: PostStatusScheduled, ScheduledAt: &now}, true},
		{"scheduled later", Post{Status: PostStatusScheduled, ScheduledAt: &future}, false},
		{"scheduled without time", Post{Status: PostStatusScheduled}, false},
		{"failed", Post{Status: PostStatusFailed, ScheduledAt: &past}, false},
		{"published", Post{Status: PostStatusPublished, ScheduledAt: &past}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.post.IsDue(now))
		})
	}
}

func TestPostCanSchedule(t *testing.T) {
	assert.True(t, (&Post{Status: PostStatusDrafted}).CanSchedule())
	assert.True(t, (&Post{Status: PostStatusFailed}).CanSchedule())
	assert.False(t, (&Post{Status: PostStatusScheduled}).CanSchedule())
	assert.False(t, (&Post{Status: PostStatusPublished}).CanSchedule())
}
