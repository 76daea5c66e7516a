package models

import (
	"database/sql"
	"time"
)

type Post struct {
	ID            string       `db:"id" json:"id"`
	UserID        string       `db:"user_id" json:"user_id"`
	Content       string       `db:"content" json:"content"`
	MediaURL      string       `db:"media_url" json:"media_url"`
	MediaMime     string       `db:"media_mime" json:"media_mime"`
	Status        string       `db:"status" json:"status"`
	ScheduledTime sql.NullTime `db:"scheduled_time" json:"scheduled_time"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
}

const (
	PostStatusCreated         = "CREATED"
	PostStatusScheduled       = "SCHEDULED"
	PostStatusQueued          = "QUEUED"
	PostStatusPublishing      = "PUBLISHING"
	PostStatusPartiallyPosted = "PARTIALLY_POSTED"
	PostStatusPosted          = "POSTED"
	PostStatusFailed          = "FAILED"
)

// IsTerminalPostStatus reports whether the post already reached a final
// aggregate outcome. A redelivered job for such a post is acknowledged
// without re-running the fan-out.
func IsTerminalPostStatus(status string) bool {
	switch status {
	case PostStatusPosted, PostStatusFailed:
		return true
	}
	return false
}
