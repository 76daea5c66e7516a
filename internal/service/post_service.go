package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"mime/multipart"
	"time"

	"github.com/hibiken/asynq"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/crossposthq/crosspost-api/internal/models"
	"github.com/crossposthq/crosspost-api/internal/publish"
	"github.com/crossposthq/crosspost-api/internal/queue"
	"github.com/crossposthq/crosspost-api/internal/repository"
	"github.com/crossposthq/crosspost-api/internal/transfer"
)

const scheduledTimeLayout = "2006-01-02T15:04"

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

type PostService interface {
	SchedulePost(ctx context.Context, userID string, pc *transfer.PostCreation, file *multipart.FileHeader) (string, error)
	PostStatus(ctx context.Context, userID, postID string) (*transfer.PostStatusResponse, error)
	List(ctx context.Context, userID, search string, limit, offset int) ([]*models.Post, error)
	CancelScheduled(ctx context.Context, userID, postID string) error
}

type postService struct {
	pr          repository.PostRepository
	ppr         repository.PlatformPostRepository
	media       MediaService
	asynqClient *asynq.Client
	inspector   *asynq.Inspector
	maxAttempts int
}

func NewPostService(
	pr repository.PostRepository,
	ppr repository.PlatformPostRepository,
	media MediaService,
	asynqClient *asynq.Client,
	inspector *asynq.Inspector,
	maxAttempts int) PostService {
	return &postService{
		pr:          pr,
		ppr:         ppr,
		media:       media,
		asynqClient: asynqClient,
		inspector:   inspector,
		maxAttempts: maxAttempts,
	}
}

// SchedulePost validates the request, creates the post record and enqueues
// exactly one publish job, delayed when a future scheduled time was given.
// No platform call happens here; the worker owns the fan-out.
func (s *postService) SchedulePost(ctx context.Context, userID string, pc *transfer.PostCreation, file *multipart.FileHeader) (string, error) {
	if pc == nil || pc.Content == "" {
		return "", &publish.ValidationError{Reason: "content cannot be empty"}
	}
	if len(pc.Platforms) == 0 {
		return "", &publish.ValidationError{Reason: "no target platforms given"}
	}

	seen := make(map[string]struct{}, len(pc.Platforms))
	for _, platform := range pc.Platforms {
		if !models.IsSupportedPlatform(platform) {
			return "", &publish.ValidationError{Reason: fmt.Sprintf("unsupported platform %q", platform)}
		}
		if _, dup := seen[platform]; dup {
			return "", &publish.ValidationError{Reason: fmt.Sprintf("duplicate platform %q", platform)}
		}
		seen[platform] = struct{}{}
	}

	var scheduledTime time.Time
	var delay time.Duration
	status := models.PostStatusCreated

	if pc.ScheduledTime != "" {
		var err error
		scheduledTime, err = time.Parse(scheduledTimeLayout, pc.ScheduledTime)
		if err != nil {
			return "", &publish.ValidationError{Reason: fmt.Sprintf("invalid scheduled time format: %v", err)}
		}

		delay = time.Until(scheduledTime)
		if delay <= 0 {
			return "", &publish.ValidationError{Reason: "scheduled time must be in the future"}
		}
		status = models.PostStatusScheduled
	}

	var mediaURL, mediaMime string
	if file != nil {
		var err error
		mediaURL, mediaMime, err = s.media.UploadImage(ctx, file)
		if err != nil {
			return "", fmt.Errorf("error uploading media: %w", err)
		}
	}

	postID, err := gonanoid.New()
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	post := models.Post{
		ID:        postID,
		UserID:    userID,
		Content:   pc.Content,
		MediaURL:  mediaURL,
		MediaMime: mediaMime,
		Status:    status,
	}
	if status == models.PostStatusScheduled {
		post.ScheduledTime = sql.NullTime{Time: scheduledTime, Valid: true}
	}

	if err := s.pr.Create(ctx, nil, &post); err != nil {
		return "", fmt.Errorf("error creating post: %w", err)
	}

	payload := queue.PublishPostPayload{
		PostID:    postID,
		UserID:    userID,
		Platforms: pc.Platforms,
	}
	if err := queue.EnqueuePost(s.asynqClient, payload, delay, s.maxAttempts); err != nil {
		return "", fmt.Errorf("error scheduling post: %w", err)
	}

	if status == models.PostStatusCreated {
		if err := s.pr.UpdatePostStatus(ctx, models.PostStatusQueued, postID); err != nil {
			slog.Info(err.Error())
		}
	}

	return postID, nil
}

// PostStatus returns the post together with its per-platform outcome rows.
func (s *postService) PostStatus(ctx context.Context, userID, postID string) (*transfer.PostStatusResponse, error) {
	if postID == "" {
		return nil, &publish.ValidationError{Reason: "post id is not valid"}
	}

	isValid, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return nil, err
	}
	if !isValid {
		return nil, &publish.ValidationError{Reason: "post doesn't exist"}
	}

	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("error getting post info")
	}

	platformPosts, err := s.ppr.ListByPostID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("error getting platform posts")
	}

	return &transfer.PostStatusResponse{
		Post:          post,
		PlatformPosts: platformPosts,
	}, nil
}

// List pages through the owner's posts newest first, optionally filtered
// by a content search term.
func (s *postService) List(ctx context.Context, userID, search string, limit, offset int) ([]*models.Post, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	var posts []*models.Post
	var err error
	if search != "" {
		posts, err = s.pr.SearchByUserID(ctx, userID, search, limit, offset)
	} else {
		posts, err = s.pr.GetByUserID(ctx, userID, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("error listing posts")
	}
	return posts, nil
}

// CancelScheduled removes a scheduled post's job before it becomes due.
// Once a worker has claimed the job, cancellation is not guaranteed and
// the request is rejected.
func (s *postService) CancelScheduled(ctx context.Context, userID, postID string) error {
	if postID == "" {
		return &publish.ValidationError{Reason: "post id is not valid"}
	}

	isValid, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return err
	}
	if !isValid {
		return &publish.ValidationError{Reason: "post doesn't exist"}
	}

	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post.Status != models.PostStatusScheduled {
		return &publish.ValidationError{Reason: "post is not awaiting its scheduled time"}
	}

	if err := queue.CancelScheduled(s.inspector, postID); err != nil {
		slog.Info(err.Error())
		return fmt.Errorf("error cancelling scheduled post")
	}

	return s.pr.UpdatePostStatus(ctx, models.PostStatusCreated, postID)
}
