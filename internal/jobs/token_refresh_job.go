package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/crossposthq/crosspost-api/internal/models"
	"github.com/crossposthq/crosspost-api/internal/repository"
	"github.com/crossposthq/crosspost-api/internal/service"
)

// TokenRefreshJob proactively rotates credentials that are about to
// expire so publish jobs rarely hit the refresh path mid-fan-out.
type TokenRefreshJob struct {
	sr         repository.SocialAccountRepository
	refreshers map[string]service.TokenRefresher
}

func NewTokenRefreshJob(sr repository.SocialAccountRepository, refreshers map[string]service.TokenRefresher) *TokenRefreshJob {
	return &TokenRefreshJob{
		sr:         sr,
		refreshers: refreshers,
	}
}

func (c *TokenRefreshJob) RefreshTokens() {
	ctx := context.Background()

	horizon := time.Now().Add(30 * time.Minute)

	accounts, err := c.sr.ListExpiringBetween(ctx, time.Now(), horizon)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup

	concurrencyLimit := 10
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, acc := range accounts {
		refresher, ok := c.refreshers[acc.Platform]
		if !ok {
			continue
		}

		wg.Add(1)
		semaphore <- struct{}{}

		go func(acc *models.SocialAccount) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if _, err := refresher.RefreshToken(ctx, acc); err != nil {
				slog.Info("unable to refresh token", "platform", acc.Platform, "account_id", acc.ID)
			}
		}(acc)
	}

	wg.Wait()
}
