package models

import (
	"database/sql"
	"time"
)

// PlatformPost records the outcome of publishing one post to one platform.
// There is at most one row per (post_id, platform); retries update the row
// in place. Retryable marks whether a FAILED row may be attempted again on
// a later round; a terminal failure keeps Retryable false and is skipped
// like a POSTED row.
type PlatformPost struct {
	ID              int64        `db:"id" json:"id"`
	PostID          string       `db:"post_id" json:"post_id"`
	Platform        string       `db:"platform" json:"platform"`
	AccountID       int64        `db:"account_id" json:"account_id"`
	PlatformPostID  string       `db:"platform_post_id" json:"platform_post_id"`
	PlatformPostURL string       `db:"platform_post_url" json:"platform_post_url"`
	Status          string       `db:"status" json:"status"`
	PostedAt        sql.NullTime `db:"posted_at" json:"posted_at"`
	LastError       string       `db:"last_error" json:"last_error"`
	Retryable       bool         `db:"retryable" json:"retryable"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updated_at"`
}

const (
	PlatformPostStatusPending = "PENDING"
	PlatformPostStatusPosted  = "POSTED"
	PlatformPostStatusFailed  = "FAILED"
)
