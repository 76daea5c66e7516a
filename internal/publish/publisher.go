package publish

import (
	"context"

	"github.com/crossposthq/crosspost-api/internal/models"
)

// Result is the success outcome of one remote publish call.
type Result struct {
	PlatformPostID  string
	PlatformPostURL string
}

// Publisher turns a (post, account, token) tuple into one remote publish
// attempt. Implementations are stateless; failures are reported through
// the typed errors in this package so the worker can classify them.
type Publisher interface {
	Platform() string
	SupportsMedia() bool
	Publish(ctx context.Context, account *models.SocialAccount, accessToken string, post *models.Post) (*Result, error)
}
