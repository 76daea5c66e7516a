package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	config "github.com/crossposthq/crosspost-api/configs"
	"github.com/crossposthq/crosspost-api/internal/models"
	"github.com/crossposthq/crosspost-api/internal/publish"
	"github.com/crossposthq/crosspost-api/internal/repository"
	"github.com/crossposthq/crosspost-api/pkg/utils"
)

// Tokens within this margin of expiry are refreshed before use so a
// publish call never runs with a token about to lapse mid-flight.
const tokenExpiryMargin = 5 * time.Minute

// TokenRefresher is the per-platform refresh hook the resolver dispatches
// to. It returns the plaintext access token after persisting the rotation.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, acc *models.SocialAccount) (string, error)
}

type credentialService struct {
	cfg        config.Config
	sa         repository.SocialAccountRepository
	refreshers map[string]TokenRefresher
}

func NewCredentialService(cfg config.Config, sa repository.SocialAccountRepository, refreshers map[string]TokenRefresher) publish.CredentialResolver {
	return &credentialService{
		cfg:        cfg,
		sa:         sa,
		refreshers: refreshers,
	}
}

// Resolve returns the connected account for (user, platform) together with
// a currently valid plaintext access token, refreshing the stored one when
// it is at or near expiry.
func (s *credentialService) Resolve(ctx context.Context, userID, platform string) (*models.SocialAccount, string, error) {
	acc, err := s.sa.GetByUserAndPlatform(ctx, userID, platform)
	if err != nil {
		return nil, "", err
	}
	if acc == nil {
		return nil, "", &publish.CredentialError{
			Platform:       platform,
			ReauthRequired: true,
			Reason:         "no connected account",
		}
	}

	if time.Until(acc.TokenExpiresAt) > tokenExpiryMargin {
		token, err := utils.Decrypt(acc.AccessToken, []byte(s.cfg.SecretKey))
		if err != nil {
			return nil, "", err
		}
		return acc, token, nil
	}

	refresher, ok := s.refreshers[platform]
	if !ok {
		return nil, "", &publish.CredentialError{
			Platform:       platform,
			ReauthRequired: true,
			Reason:         "token expired and no refresher registered",
		}
	}

	token, err := refresher.RefreshToken(ctx, acc)
	if err != nil {
		var credErr *publish.CredentialError
		if errors.As(err, &credErr) && credErr.ReauthRequired {
			if markErr := s.sa.MarkRevoked(ctx, acc.ID); markErr != nil {
				slog.Info(markErr.Error())
			}
		}
		return nil, "", err
	}

	return acc, token, nil
}
