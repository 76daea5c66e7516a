package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossposthq/crosspost-api/internal/models"
	"github.com/crossposthq/crosspost-api/internal/publish"
	"github.com/crossposthq/crosspost-api/internal/transfer"
)

type stubPostRepo struct {
	post       *models.Post
	owned      bool
	statuses   []string
	listLimit  int
	listOffset int
	searched   string
}

func (s *stubPostRepo) GetByID(ctx context.Context, id string) (*models.Post, error) {
	return s.post, nil
}

func (s *stubPostRepo) Create(ctx context.Context, tx *sql.Tx, post *models.Post) error {
	return nil
}

func (s *stubPostRepo) GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*models.Post, error) {
	s.listLimit = limit
	s.listOffset = offset
	if s.post == nil {
		return nil, nil
	}
	return []*models.Post{s.post}, nil
}

func (s *stubPostRepo) SearchByUserID(ctx context.Context, userID, query string, limit, offset int) ([]*models.Post, error) {
	s.searched = query
	s.listLimit = limit
	s.listOffset = offset
	if s.post == nil {
		return nil, nil
	}
	return []*models.Post{s.post}, nil
}

func (s *stubPostRepo) UpdatePostStatus(ctx context.Context, status string, postID string) error {
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *stubPostRepo) CheckByUserID(ctx context.Context, postID, userID string) (bool, error) {
	return s.owned, nil
}

type stubPlatformPostRepo struct {
	rows []*models.PlatformPost
}

func (s *stubPlatformPostRepo) GetByPostAndPlatform(ctx context.Context, postID, platform string) (*models.PlatformPost, error) {
	return nil, nil
}

func (s *stubPlatformPostRepo) ListByPostID(ctx context.Context, postID string) ([]*models.PlatformPost, error) {
	return s.rows, nil
}

func (s *stubPlatformPostRepo) MarkPending(ctx context.Context, postID, platform string, accountID int64) error {
	return nil
}

func (s *stubPlatformPostRepo) MarkPosted(ctx context.Context, postID, platform string, accountID int64, platformPostID, platformPostURL string, postedAt time.Time) error {
	return nil
}

func (s *stubPlatformPostRepo) MarkFailed(ctx context.Context, postID, platform string, accountID int64, lastError string, retryable bool) error {
	return nil
}

func TestSchedulePostValidation(t *testing.T) {
	s := NewPostService(nil, nil, nil, nil, nil, 5)

	tests := []struct {
		name string
		pc   *transfer.PostCreation
	}{
		{"nil request", nil},
		{"empty content", &transfer.PostCreation{Platforms: []string{models.PlatformX}}},
		{"no platforms", &transfer.PostCreation{Content: "hello"}},
		{"unsupported platform", &transfer.PostCreation{Content: "hello", Platforms: []string{"LIKENDIN"}}},
		{"duplicate platform", &transfer.PostCreation{Content: "hello", Platforms: []string{models.PlatformX, models.PlatformX}}},
		{"bad time format", &transfer.PostCreation{Content: "hello", Platforms: []string{models.PlatformX}, ScheduledTime: "tomorrow"}},
		{"past time", &transfer.PostCreation{Content: "hello", Platforms: []string{models.PlatformX}, ScheduledTime: "2020-01-01T10:00"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.SchedulePost(context.Background(), "user-1", tt.pc, nil)

			var validationErr *publish.ValidationError
			require.ErrorAs(t, err, &validationErr)
		})
	}
}

func TestSchedulePostFutureTimeAccepted(t *testing.T) {
	future := time.Now().Add(time.Hour).Format(scheduledTimeLayout)
	pc := &transfer.PostCreation{
		Content:       "hello",
		Platforms:     []string{models.PlatformX},
		ScheduledTime: future,
	}

	parsed, err := time.Parse(scheduledTimeLayout, pc.ScheduledTime)
	require.NoError(t, err)
	assert.True(t, parsed.After(time.Now()))
}

func TestPostStatusRejectsUnknownPost(t *testing.T) {
	pr := &stubPostRepo{owned: false}
	s := NewPostService(pr, &stubPlatformPostRepo{}, nil, nil, nil, 5)

	_, err := s.PostStatus(context.Background(), "user-1", "post-1")

	var validationErr *publish.ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestPostStatusReturnsPlatformRows(t *testing.T) {
	post := &models.Post{ID: "post-1", UserID: "user-1", Status: models.PostStatusPartiallyPosted}
	rows := []*models.PlatformPost{
		{PostID: "post-1", Platform: models.PlatformLinkedin, Status: models.PlatformPostStatusPosted},
		{PostID: "post-1", Platform: models.PlatformX, Status: models.PlatformPostStatusFailed, LastError: "rate limited by X"},
	}
	pr := &stubPostRepo{post: post, owned: true}
	s := NewPostService(pr, &stubPlatformPostRepo{rows: rows}, nil, nil, nil, 5)

	status, err := s.PostStatus(context.Background(), "user-1", "post-1")

	require.NoError(t, err)
	assert.Equal(t, post, status.Post)
	assert.Len(t, status.PlatformPosts, 2)
}

func TestListClampsPagination(t *testing.T) {
	post := &models.Post{ID: "post-1", UserID: "user-1", Status: models.PostStatusPosted}
	pr := &stubPostRepo{post: post, owned: true}
	s := NewPostService(pr, &stubPlatformPostRepo{}, nil, nil, nil, 5)

	posts, err := s.List(context.Background(), "user-1", "", 0, -3)
	require.NoError(t, err)
	assert.Len(t, posts, 1)
	assert.Equal(t, defaultListLimit, pr.listLimit)
	assert.Zero(t, pr.listOffset)

	_, err = s.List(context.Background(), "user-1", "", 5000, 40)
	require.NoError(t, err)
	assert.Equal(t, maxListLimit, pr.listLimit)
	assert.Equal(t, 40, pr.listOffset)
}

func TestListDispatchesSearch(t *testing.T) {
	post := &models.Post{ID: "post-1", UserID: "user-1", Content: "launch day", Status: models.PostStatusPosted}
	pr := &stubPostRepo{post: post, owned: true}
	s := NewPostService(pr, &stubPlatformPostRepo{}, nil, nil, nil, 5)

	posts, err := s.List(context.Background(), "user-1", "launch", 10, 0)

	require.NoError(t, err)
	assert.Len(t, posts, 1)
	assert.Equal(t, "launch", pr.searched)
	assert.Equal(t, 10, pr.listLimit)
}

func TestCancelScheduledValidation(t *testing.T) {
	t.Run("empty id", func(t *testing.T) {
		s := NewPostService(&stubPostRepo{}, &stubPlatformPostRepo{}, nil, nil, nil, 5)
		err := s.CancelScheduled(context.Background(), "user-1", "")

		var validationErr *publish.ValidationError
		require.ErrorAs(t, err, &validationErr)
	})

	t.Run("not owned", func(t *testing.T) {
		s := NewPostService(&stubPostRepo{owned: false}, &stubPlatformPostRepo{}, nil, nil, nil, 5)
		err := s.CancelScheduled(context.Background(), "user-1", "post-1")

		var validationErr *publish.ValidationError
		require.ErrorAs(t, err, &validationErr)
	})

	t.Run("not scheduled", func(t *testing.T) {
		post := &models.Post{ID: "post-1", UserID: "user-1", Status: models.PostStatusQueued}
		s := NewPostService(&stubPostRepo{post: post, owned: true}, &stubPlatformPostRepo{}, nil, nil, nil, 5)
		err := s.CancelScheduled(context.Background(), "user-1", "post-1")

		var validationErr *publish.ValidationError
		require.ErrorAs(t, err, &validationErr)
	})
}
