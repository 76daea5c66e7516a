package queue

import (
	"github.com/crossposthq/crosspost-api/internal/publish"
	"github.com/crossposthq/crosspost-api/internal/repository"
)

type Queue struct {
	pr         repository.PostRepository
	ppr        repository.PlatformPostRepository
	resolver   publish.CredentialResolver
	publishers map[string]publish.Publisher
}

func NewQueue(
	pr repository.PostRepository,
	ppr repository.PlatformPostRepository,
	resolver publish.CredentialResolver,
	publishers map[string]publish.Publisher) *Queue {
	return &Queue{
		pr:         pr,
		ppr:        ppr,
		resolver:   resolver,
		publishers: publishers,
	}
}

const TaskTypePublishPost = "publish:post"

// PublishPostPayload is the queue message for one post's fan-out. The
// task ID is the post ID, which is what makes enqueueing idempotent.
type PublishPostPayload struct {
	PostID    string   `json:"post_id"`
	UserID    string   `json:"user_id"`
	Platforms []string `json:"platforms"`
}
