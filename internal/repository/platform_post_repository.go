package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/crossposthq/crosspost-api/internal/models"
)

type PlatformPostRepository interface {
	GetByPostAndPlatform(ctx context.Context, postID, platform string) (*models.PlatformPost, error)
	ListByPostID(ctx context.Context, postID string) ([]*models.PlatformPost, error)
	MarkPending(ctx context.Context, postID, platform string, accountID int64) error
	MarkPosted(ctx context.Context, postID, platform string, accountID int64, platformPostID, platformPostURL string, postedAt time.Time) error
	MarkFailed(ctx context.Context, postID, platform string, accountID int64, lastError string, retryable bool) error
}

type platformPostRepository struct {
	db *sql.DB
}

func NewPlatformPostRepository(db *sql.DB) PlatformPostRepository {
	return &platformPostRepository{db: db}
}

func (r *platformPostRepository) GetByPostAndPlatform(ctx context.Context, postID, platform string) (*models.PlatformPost, error) {
	query := `SELECT id, post_id, platform, account_id, platform_post_id, platform_post_url, status, posted_at, last_error, retryable, created_at, updated_at
		FROM platform_posts WHERE post_id = $1 AND platform = $2`
	row := r.db.QueryRowContext(ctx, query, postID, platform)

	var pp models.PlatformPost
	err := row.Scan(&pp.ID, &pp.PostID, &pp.Platform, &pp.AccountID, &pp.PlatformPostID,
		&pp.PlatformPostURL, &pp.Status, &pp.PostedAt, &pp.LastError, &pp.Retryable, &pp.CreatedAt, &pp.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return &pp, nil
}

func (r *platformPostRepository) ListByPostID(ctx context.Context, postID string) ([]*models.PlatformPost, error) {
	query := `SELECT id, post_id, platform, account_id, platform_post_id, platform_post_url, status, posted_at, last_error, retryable, created_at, updated_at
		FROM platform_posts WHERE post_id = $1`

	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var platformPosts []*models.PlatformPost
	for rows.Next() {
		var pp models.PlatformPost
		err := rows.Scan(&pp.ID, &pp.PostID, &pp.Platform, &pp.AccountID, &pp.PlatformPostID,
			&pp.PlatformPostURL, &pp.Status, &pp.PostedAt, &pp.LastError, &pp.Retryable, &pp.CreatedAt, &pp.UpdatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		platformPosts = append(platformPosts, &pp)
	}
	return platformPosts, nil
}

// MarkPending creates or resets the (post, platform) row for a new
// attempt. A row that already reached POSTED is left untouched.
func (r *platformPostRepository) MarkPending(ctx context.Context, postID, platform string, accountID int64) error {
	query := `
		INSERT INTO platform_posts (post_id, platform, account_id, status, last_error, retryable)
		VALUES ($1, $2, $3, $4, '', true)
		ON CONFLICT (post_id, platform)
		DO UPDATE SET
			account_id = EXCLUDED.account_id,
			status = EXCLUDED.status,
			retryable = EXCLUDED.retryable,
			updated_at = CURRENT_TIMESTAMP
		WHERE platform_posts.status != 'POSTED'
	`
	_, err := r.db.ExecContext(ctx, query, postID, platform, accountID, models.PlatformPostStatusPending)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// MarkPosted upserts the (post, platform) row as POSTED. The unique index
// on (post_id, platform) makes a retried attempt update the same row
// rather than insert a duplicate.
func (r *platformPostRepository) MarkPosted(ctx context.Context, postID, platform string, accountID int64, platformPostID, platformPostURL string, postedAt time.Time) error {
	query := `
		INSERT INTO platform_posts (post_id, platform, account_id, platform_post_id, platform_post_url, status, posted_at, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, '')
		ON CONFLICT (post_id, platform)
		DO UPDATE SET
			account_id = EXCLUDED.account_id,
			platform_post_id = EXCLUDED.platform_post_id,
			platform_post_url = EXCLUDED.platform_post_url,
			status = EXCLUDED.status,
			posted_at = EXCLUDED.posted_at,
			last_error = '',
			updated_at = CURRENT_TIMESTAMP
	`
	_, err := r.db.ExecContext(ctx, query, postID, platform, accountID, platformPostID, platformPostURL, models.PlatformPostStatusPosted, postedAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// MarkFailed upserts the (post, platform) row as FAILED with the error
// message and failure class. A row that already reached POSTED is left
// untouched.
func (r *platformPostRepository) MarkFailed(ctx context.Context, postID, platform string, accountID int64, lastError string, retryable bool) error {
	query := `
		INSERT INTO platform_posts (post_id, platform, account_id, status, last_error, retryable)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (post_id, platform)
		DO UPDATE SET
			account_id = EXCLUDED.account_id,
			status = EXCLUDED.status,
			last_error = EXCLUDED.last_error,
			retryable = EXCLUDED.retryable,
			updated_at = CURRENT_TIMESTAMP
		WHERE platform_posts.status != 'POSTED'
	`
	_, err := r.db.ExecContext(ctx, query, postID, platform, accountID, models.PlatformPostStatusFailed, lastError, retryable)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
