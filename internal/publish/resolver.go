package publish

import (
	"context"

	"github.com/crossposthq/crosspost-api/internal/models"
)

// CredentialResolver hands the worker a connected account and a valid
// plaintext access token for (user, platform), refreshing the stored
// credential when needed. Failure surfaces as a CredentialError.
type CredentialResolver interface {
	Resolve(ctx context.Context, userID, platform string) (*models.SocialAccount, string, error)
}
