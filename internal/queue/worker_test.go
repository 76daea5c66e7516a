package queue

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossposthq/crosspost-api/internal/models"
	"github.com/crossposthq/crosspost-api/internal/publish"
)

type fakePostRepo struct {
	mu       sync.Mutex
	post     *models.Post
	statuses []string
}

func (f *fakePostRepo) GetByID(ctx context.Context, id string) (*models.Post, error) {
	return f.post, nil
}

func (f *fakePostRepo) Create(ctx context.Context, tx *sql.Tx, post *models.Post) error {
	return nil
}

func (f *fakePostRepo) GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*models.Post, error) {
	return nil, nil
}

func (f *fakePostRepo) SearchByUserID(ctx context.Context, userID, query string, limit, offset int) ([]*models.Post, error) {
	return nil, nil
}

func (f *fakePostRepo) UpdatePostStatus(ctx context.Context, status string, postID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakePostRepo) CheckByUserID(ctx context.Context, postID, userID string) (bool, error) {
	return f.post != nil, nil
}

type failedRow struct {
	lastError string
	retryable bool
}

type fakePlatformPostRepo struct {
	mu       sync.Mutex
	existing map[string]*models.PlatformPost
	pending  []string
	posted   []string
	failed   map[string]failedRow
}

func newFakePlatformPostRepo() *fakePlatformPostRepo {
	return &fakePlatformPostRepo{
		existing: make(map[string]*models.PlatformPost),
		failed:   make(map[string]failedRow),
	}
}

func (f *fakePlatformPostRepo) GetByPostAndPlatform(ctx context.Context, postID, platform string) (*models.PlatformPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.existing[platform], nil
}

func (f *fakePlatformPostRepo) ListByPostID(ctx context.Context, postID string) ([]*models.PlatformPost, error) {
	return nil, nil
}

func (f *fakePlatformPostRepo) MarkPending(ctx context.Context, postID, platform string, accountID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, platform)
	return nil
}

func (f *fakePlatformPostRepo) MarkPosted(ctx context.Context, postID, platform string, accountID int64, platformPostID, platformPostURL string, postedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posted = append(f.posted, platform)
	return nil
}

func (f *fakePlatformPostRepo) MarkFailed(ctx context.Context, postID, platform string, accountID int64, lastError string, retryable bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[platform] = failedRow{lastError: lastError, retryable: retryable}
	return nil
}

type fakeResolver struct {
	errs map[string]error
}

func (f *fakeResolver) Resolve(ctx context.Context, userID, platform string) (*models.SocialAccount, string, error) {
	if err := f.errs[platform]; err != nil {
		return nil, "", err
	}
	return &models.SocialAccount{ID: 7, UserID: userID, Platform: platform}, "token", nil
}

type fakePublisher struct {
	mu       sync.Mutex
	platform string
	media    bool
	err      error
	calls    int
}

func (f *fakePublisher) Platform() string    { return f.platform }
func (f *fakePublisher) SupportsMedia() bool { return f.media }

func (f *fakePublisher) Publish(ctx context.Context, acc *models.SocialAccount, accessToken string, post *models.Post) (*publish.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &publish.Result{PlatformPostID: "pp-1", PlatformPostURL: "https://example.com/pp-1"}, nil
}

func newTestQueue(pr *fakePostRepo, ppr *fakePlatformPostRepo, resolver *fakeResolver, pubs ...*fakePublisher) *Queue {
	publishers := make(map[string]publish.Publisher, len(pubs))
	for _, p := range pubs {
		publishers[p.platform] = p
	}
	if resolver == nil {
		resolver = &fakeResolver{}
	}
	return NewQueue(pr, ppr, resolver, publishers)
}

func testPost() *models.Post {
	return &models.Post{
		ID:      "post-1",
		UserID:  "user-1",
		Content: "hello",
		Status:  models.PostStatusQueued,
	}
}

func TestPublishPostAllPlatformsSucceed(t *testing.T) {
	pr := &fakePostRepo{post: testPost()}
	ppr := newFakePlatformPostRepo()
	li := &fakePublisher{platform: models.PlatformLinkedin, media: true}
	x := &fakePublisher{platform: models.PlatformX}
	q := newTestQueue(pr, ppr, nil, li, x)

	err := q.PublishPost(context.Background(), &PublishPostPayload{
		PostID:    "post-1",
		UserID:    "user-1",
		Platforms: []string{models.PlatformLinkedin, models.PlatformX},
	}, 0, 4)

	require.NoError(t, err)
	assert.Equal(t, 1, li.calls)
	assert.Equal(t, 1, x.calls)
	assert.ElementsMatch(t, []string{models.PlatformLinkedin, models.PlatformX}, ppr.posted)
	assert.Equal(t, []string{models.PostStatusPublishing, models.PostStatusPosted}, pr.statuses)
}

func TestPublishPostSkipsAlreadyPostedPlatform(t *testing.T) {
	pr := &fakePostRepo{post: testPost()}
	ppr := newFakePlatformPostRepo()
	ppr.existing[models.PlatformLinkedin] = &models.PlatformPost{
		PostID:   "post-1",
		Platform: models.PlatformLinkedin,
		Status:   models.PlatformPostStatusPosted,
	}
	li := &fakePublisher{platform: models.PlatformLinkedin}
	x := &fakePublisher{platform: models.PlatformX}
	q := newTestQueue(pr, ppr, nil, li, x)

	err := q.PublishPost(context.Background(), &PublishPostPayload{
		PostID:    "post-1",
		UserID:    "user-1",
		Platforms: []string{models.PlatformLinkedin, models.PlatformX},
	}, 1, 4)

	require.NoError(t, err)
	assert.Zero(t, li.calls, "a platform that already reached POSTED must not be published again")
	assert.Equal(t, 1, x.calls)
	assert.Equal(t, []string{models.PostStatusPublishing, models.PostStatusPosted}, pr.statuses)
}

func TestPublishPostSkipsTerminallyFailedPlatform(t *testing.T) {
	pr := &fakePostRepo{post: testPost()}
	ppr := newFakePlatformPostRepo()
	ppr.existing[models.PlatformX] = &models.PlatformPost{
		PostID:    "post-1",
		Platform:  models.PlatformX,
		Status:    models.PlatformPostStatusFailed,
		LastError: "terminal error (X): duplicate content",
		Retryable: false,
	}
	li := &fakePublisher{platform: models.PlatformLinkedin}
	x := &fakePublisher{platform: models.PlatformX}
	q := newTestQueue(pr, ppr, nil, li, x)

	err := q.PublishPost(context.Background(), &PublishPostPayload{
		PostID:    "post-1",
		UserID:    "user-1",
		Platforms: []string{models.PlatformLinkedin, models.PlatformX},
	}, 1, 4)

	require.NoError(t, err)
	assert.Zero(t, x.calls, "a terminally failed platform must not be re-invoked on a later round")
	assert.Equal(t, 1, li.calls)
	assert.Equal(t, []string{models.PostStatusPublishing, models.PostStatusPartiallyPosted}, pr.statuses)
}

func TestPublishPostRetriesRetryablyFailedPlatform(t *testing.T) {
	pr := &fakePostRepo{post: testPost()}
	ppr := newFakePlatformPostRepo()
	ppr.existing[models.PlatformX] = &models.PlatformPost{
		PostID:    "post-1",
		Platform:  models.PlatformX,
		Status:    models.PlatformPostStatusFailed,
		LastError: "rate limited by X",
		Retryable: true,
	}
	x := &fakePublisher{platform: models.PlatformX}
	q := newTestQueue(pr, ppr, nil, x)

	err := q.PublishPost(context.Background(), &PublishPostPayload{
		PostID:    "post-1",
		UserID:    "user-1",
		Platforms: []string{models.PlatformX},
	}, 1, 4)

	require.NoError(t, err)
	assert.Equal(t, 1, x.calls, "a retryably failed platform must be attempted again")
	assert.Equal(t, []string{models.PostStatusPublishing, models.PostStatusPosted}, pr.statuses)
}

func TestPublishPostPartialTerminalFailure(t *testing.T) {
	pr := &fakePostRepo{post: testPost()}
	ppr := newFakePlatformPostRepo()
	li := &fakePublisher{platform: models.PlatformLinkedin}
	x := &fakePublisher{
		platform: models.PlatformX,
		err:      &publish.TerminalError{Platform: models.PlatformX, Reason: "duplicate content"},
	}
	q := newTestQueue(pr, ppr, nil, li, x)

	err := q.PublishPost(context.Background(), &PublishPostPayload{
		PostID:    "post-1",
		UserID:    "user-1",
		Platforms: []string{models.PlatformLinkedin, models.PlatformX},
	}, 0, 4)

	require.NoError(t, err, "a terminal platform failure is not retryable and must not resurface")
	assert.Equal(t, []string{models.PlatformLinkedin}, ppr.posted)
	require.Contains(t, ppr.failed, models.PlatformX)
	assert.False(t, ppr.failed[models.PlatformX].retryable)
	assert.Equal(t, []string{models.PostStatusPublishing, models.PostStatusPartiallyPosted}, pr.statuses)
}

func TestPublishPostAllTerminalFailures(t *testing.T) {
	pr := &fakePostRepo{post: testPost()}
	ppr := newFakePlatformPostRepo()
	x := &fakePublisher{
		platform: models.PlatformX,
		err:      &publish.TerminalError{Platform: models.PlatformX, Reason: "rejected"},
	}
	q := newTestQueue(pr, ppr, nil, x)

	err := q.PublishPost(context.Background(), &PublishPostPayload{
		PostID:    "post-1",
		UserID:    "user-1",
		Platforms: []string{models.PlatformX},
	}, 0, 4)

	require.NoError(t, err)
	assert.Equal(t, []string{models.PostStatusPublishing, models.PostStatusFailed}, pr.statuses)
}

func TestPublishPostRetryableFailureWithAttemptsRemaining(t *testing.T) {
	pr := &fakePostRepo{post: testPost()}
	ppr := newFakePlatformPostRepo()
	transient := &publish.TransientError{Platform: models.PlatformX, Err: errors.New("timeout")}
	x := &fakePublisher{platform: models.PlatformX, err: transient}
	q := newTestQueue(pr, ppr, nil, x)

	err := q.PublishPost(context.Background(), &PublishPostPayload{
		PostID:    "post-1",
		UserID:    "user-1",
		Platforms: []string{models.PlatformX},
	}, 0, 4)

	require.Error(t, err)
	assert.True(t, publish.IsRetryable(err))
	require.Contains(t, ppr.failed, models.PlatformX)
	assert.True(t, ppr.failed[models.PlatformX].retryable)

	// No terminal aggregate status while attempts remain; the post waits
	// for the next round.
	assert.Equal(t, []string{models.PostStatusPublishing, models.PostStatusQueued}, pr.statuses)
}

func TestPublishPostRetryableFailureWithBudgetExhausted(t *testing.T) {
	pr := &fakePostRepo{post: testPost()}
	ppr := newFakePlatformPostRepo()
	transient := &publish.TransientError{Platform: models.PlatformX, Err: errors.New("timeout")}
	x := &fakePublisher{platform: models.PlatformX, err: transient}
	q := newTestQueue(pr, ppr, nil, x)

	err := q.PublishPost(context.Background(), &PublishPostPayload{
		PostID:    "post-1",
		UserID:    "user-1",
		Platforms: []string{models.PlatformX},
	}, 4, 4)

	require.Error(t, err)
	assert.True(t, publish.IsRetryable(err))
	assert.Equal(t, []string{models.PostStatusPublishing, models.PostStatusFailed}, pr.statuses)
}

func TestPublishPostDropsUnknownPost(t *testing.T) {
	pr := &fakePostRepo{}
	ppr := newFakePlatformPostRepo()
	x := &fakePublisher{platform: models.PlatformX}
	q := newTestQueue(pr, ppr, nil, x)

	err := q.PublishPost(context.Background(), &PublishPostPayload{
		PostID:    "gone",
		UserID:    "user-1",
		Platforms: []string{models.PlatformX},
	}, 0, 4)

	require.NoError(t, err)
	assert.Zero(t, x.calls)
	assert.Empty(t, pr.statuses)
}

func TestPublishPostRedeliveryGuard(t *testing.T) {
	for _, status := range []string{models.PostStatusPosted, models.PostStatusFailed} {
		t.Run(status, func(t *testing.T) {
			post := testPost()
			post.Status = status
			pr := &fakePostRepo{post: post}
			ppr := newFakePlatformPostRepo()
			x := &fakePublisher{platform: models.PlatformX}
			q := newTestQueue(pr, ppr, nil, x)

			err := q.PublishPost(context.Background(), &PublishPostPayload{
				PostID:    "post-1",
				UserID:    "user-1",
				Platforms: []string{models.PlatformX},
			}, 0, 4)

			require.NoError(t, err)
			assert.Zero(t, x.calls, "redelivered job for a finished post must be a no-op")
			assert.Empty(t, pr.statuses)
		})
	}
}

func TestPublishPostMissingPublisher(t *testing.T) {
	pr := &fakePostRepo{post: testPost()}
	ppr := newFakePlatformPostRepo()
	q := newTestQueue(pr, ppr, nil)

	err := q.PublishPost(context.Background(), &PublishPostPayload{
		PostID:    "post-1",
		UserID:    "user-1",
		Platforms: []string{"MASTODON"},
	}, 0, 4)

	require.NoError(t, err)
	assert.Contains(t, ppr.failed, "MASTODON")
	assert.Equal(t, []string{models.PostStatusPublishing, models.PostStatusFailed}, pr.statuses)
}

func TestPublishPostCapabilityMismatch(t *testing.T) {
	post := testPost()
	post.MediaURL = "https://cdn.example.com/img.png"
	pr := &fakePostRepo{post: post}
	ppr := newFakePlatformPostRepo()
	x := &fakePublisher{platform: models.PlatformX, media: false}
	q := newTestQueue(pr, ppr, nil, x)

	err := q.PublishPost(context.Background(), &PublishPostPayload{
		PostID:    "post-1",
		UserID:    "user-1",
		Platforms: []string{models.PlatformX},
	}, 0, 4)

	require.NoError(t, err)
	assert.Zero(t, x.calls, "publisher without media support must not receive a media post")
	assert.Contains(t, ppr.failed[models.PlatformX].lastError, "does not support media")
	assert.False(t, ppr.failed[models.PlatformX].retryable)
	assert.Equal(t, []string{models.PostStatusPublishing, models.PostStatusFailed}, pr.statuses)
}

func TestPublishPostCredentialFailureRecorded(t *testing.T) {
	pr := &fakePostRepo{post: testPost()}
	ppr := newFakePlatformPostRepo()
	resolver := &fakeResolver{errs: map[string]error{
		models.PlatformX: &publish.CredentialError{
			Platform:       models.PlatformX,
			ReauthRequired: true,
			Reason:         "no connected account",
		},
	}}
	x := &fakePublisher{platform: models.PlatformX}
	q := newTestQueue(pr, ppr, resolver, x)

	err := q.PublishPost(context.Background(), &PublishPostPayload{
		PostID:    "post-1",
		UserID:    "user-1",
		Platforms: []string{models.PlatformX},
	}, 0, 4)

	require.NoError(t, err)
	assert.Zero(t, x.calls)
	assert.Contains(t, ppr.failed[models.PlatformX].lastError, "no connected account")
	assert.False(t, ppr.failed[models.PlatformX].retryable)
}

func TestHandlePublishPostTaskBadPayload(t *testing.T) {
	q := newTestQueue(&fakePostRepo{}, newFakePlatformPostRepo(), nil)

	task := asynq.NewTask(TaskTypePublishPost, []byte("not json"))
	err := q.HandlePublishPostTask(context.Background(), task)

	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
