package queue

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/crossposthq/crosspost-api/internal/publish"
)

const (
	publishQueue = "default"

	// Upper bound on a single fan-out execution; a worker that dies
	// mid-job loses its lease after this and the job becomes claimable
	// again.
	taskTimeout = 10 * time.Minute

	baseRetryDelay = 30 * time.Second
	maxRetryDelay  = 15 * time.Minute
)

// EnqueuePost schedules one publish job for a post. The task ID is the
// post ID, so re-enqueueing for the same post while a job is pending,
// scheduled or running is a no-op rather than a second job.
func EnqueuePost(asynqClient *asynq.Client, payload PublishPostPayload, delay time.Duration, maxAttempts int) error {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	opts := []asynq.Option{
		asynq.TaskID(payload.PostID),
		asynq.Queue(publishQueue),
		asynq.MaxRetry(maxAttempts - 1),
		asynq.Timeout(taskTimeout),
	}
	if delay > 0 {
		opts = append(opts, asynq.ProcessIn(delay))
	}

	task := asynq.NewTask(TaskTypePublishPost, taskPayload)

	_, err = asynqClient.Enqueue(task, opts...)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			slog.Info("publish job already enqueued", "post_id", payload.PostID)
			return nil
		}
		return err
	}

	slog.Info("publish job enqueued", "post_id", payload.PostID, "delay", delay.String())
	return nil
}

// CancelScheduled removes a not-yet-due job from the queue. Returns
// asynq's not-found error when the job was already claimed or completed;
// a claimed job cannot be cancelled.
func CancelScheduled(inspector *asynq.Inspector, postID string) error {
	return inspector.DeleteTask(publishQueue, postID)
}

// RetryDelay computes the wait before the next execution round:
// exponential from 30s, capped at 15m, except when the platform supplied
// an explicit retry-after hint.
func RetryDelay(n int, err error, task *asynq.Task) time.Duration {
	if hint, ok := publish.RetryAfterHint(err); ok {
		return hint
	}

	delay := baseRetryDelay << uint(n)
	if delay > maxRetryDelay || delay <= 0 {
		return maxRetryDelay
	}
	return delay
}
