package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/crossposthq/crosspost-api/internal/models"
	"github.com/crossposthq/crosspost-api/internal/publish"
)

// Platforms within one job publish concurrently, up to this many at once.
const maxConcurrentPublishes = 5

func (q *Queue) HandlePublishPostTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishPostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal publish payload: %v: %w", err, asynq.SkipRetry)
	}

	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)

	return q.PublishPost(ctx, &payload, retried, maxRetry)
}

type platformOutcome struct {
	platform string
	err      error
}

// PublishPost runs one execution round of a post's fan-out: every platform
// in the payload is attempted independently, results are written per
// platform, then the aggregate post status is reconciled. A retryable
// platform failure surfaces as a returned error so the queue reschedules
// the job while retried < maxRetry; platforms whose row already reached
// POSTED or failed terminally are skipped on later rounds.
func (q *Queue) PublishPost(ctx context.Context, payload *PublishPostPayload, retried, maxRetry int) error {
	post, err := q.pr.GetByID(ctx, payload.PostID)
	if err != nil {
		return err
	}
	if post == nil {
		slog.Info("post not found, dropping publish job", "post_id", payload.PostID)
		return nil
	}

	// Redelivery guard: a job handed out twice (worker crash, lease
	// expiry) must not republish a finished post.
	if models.IsTerminalPostStatus(post.Status) {
		slog.Info("post already in terminal status", "post_id", post.ID, "status", post.Status)
		return nil
	}

	if err := q.pr.UpdatePostStatus(ctx, models.PostStatusPublishing, post.ID); err != nil {
		return err
	}

	outcomes := make([]platformOutcome, len(payload.Platforms))

	g := new(errgroup.Group)
	g.SetLimit(maxConcurrentPublishes)
	for i, platform := range payload.Platforms {
		i, platform := i, platform
		g.Go(func() error {
			outcomes[i] = platformOutcome{
				platform: platform,
				err:      q.publishToPlatform(ctx, post, payload.UserID, platform),
			}
			return nil
		})
	}
	// Join barrier: the aggregate status write below must see every
	// platform's result for this round.
	g.Wait()

	var posted, failed int
	var retryErr error
	for _, oc := range outcomes {
		if oc.err == nil {
			posted++
			continue
		}
		failed++
		if publish.IsRetryable(oc.err) {
			// Keep the error carrying a retry-after hint if any platform
			// provided one; RetryDelay honors it.
			if _, ok := publish.RetryAfterHint(oc.err); ok || retryErr == nil {
				retryErr = oc.err
			}
		}
		slog.Info("platform publish failed", "post_id", post.ID, "platform", oc.platform, "error", oc.err.Error())
	}

	if retryErr != nil && retried < maxRetry {
		if err := q.pr.UpdatePostStatus(ctx, models.PostStatusQueued, post.ID); err != nil {
			slog.Info(err.Error())
		}
		return retryErr
	}

	status := models.PostStatusPartiallyPosted
	switch {
	case failed == 0:
		status = models.PostStatusPosted
	case posted == 0:
		status = models.PostStatusFailed
	}
	if err := q.pr.UpdatePostStatus(ctx, status, post.ID); err != nil {
		return err
	}

	slog.Info("publish job finished", "post_id", post.ID, "status", status, "posted", posted, "failed", failed)

	if retryErr != nil {
		// Attempt budget exhausted with a retryable failure left; surface
		// it so the queue records the job as failed.
		return retryErr
	}
	return nil
}

func (q *Queue) publishToPlatform(ctx context.Context, post *models.Post, userID, platform string) error {
	existing, err := q.ppr.GetByPostAndPlatform(ctx, post.ID, platform)
	if err != nil {
		return &publish.TransientError{Platform: platform, Err: err}
	}
	if existing != nil && existing.Status == models.PlatformPostStatusPosted {
		// Published in an earlier round; never invoke the publisher again.
		return nil
	}
	if existing != nil && existing.Status == models.PlatformPostStatusFailed && !existing.Retryable {
		// Terminal failure from an earlier round. The platform stays
		// failed without another publisher call.
		return &publish.TerminalError{Platform: platform, Reason: existing.LastError}
	}

	publisher, ok := q.publishers[platform]
	if !ok {
		failure := &publish.TerminalError{Platform: platform, Reason: "no publisher registered"}
		q.recordFailure(ctx, post.ID, platform, 0, failure)
		return failure
	}

	acc, token, err := q.resolver.Resolve(ctx, userID, platform)
	if err != nil {
		q.recordFailure(ctx, post.ID, platform, 0, err)
		return err
	}

	if err := q.ppr.MarkPending(ctx, post.ID, platform, acc.ID); err != nil {
		slog.Info(err.Error())
	}

	if post.MediaURL != "" && !publisher.SupportsMedia() {
		failure := &publish.TerminalError{Platform: platform, Reason: "platform does not support media posts"}
		q.recordFailure(ctx, post.ID, platform, acc.ID, failure)
		return failure
	}

	result, err := publisher.Publish(ctx, acc, token, post)
	if err != nil {
		q.recordFailure(ctx, post.ID, platform, acc.ID, err)
		return err
	}

	if err := q.ppr.MarkPosted(ctx, post.ID, platform, acc.ID, result.PlatformPostID, result.PlatformPostURL, time.Now()); err != nil {
		return &publish.TransientError{Platform: platform, Err: err}
	}

	return nil
}

func (q *Queue) recordFailure(ctx context.Context, postID, platform string, accountID int64, failure error) {
	if err := q.ppr.MarkFailed(ctx, postID, platform, accountID, failure.Error(), publish.IsRetryable(failure)); err != nil {
		slog.Info("failed to record platform failure", "post_id", postID, "platform", platform, "error", err.Error())
	}
}
