package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.uber.org/ratelimit"
	"golang.org/x/oauth2"

	config "github.com/crossposthq/crosspost-api/configs"
	"github.com/crossposthq/crosspost-api/internal/models"
	"github.com/crossposthq/crosspost-api/internal/publish"
	"github.com/crossposthq/crosspost-api/internal/repository"
	"github.com/crossposthq/crosspost-api/internal/transfer"
	"github.com/crossposthq/crosspost-api/pkg/utils"
)

const (
	xAuthURL  = "https://twitter.com/i/oauth2/authorize"
	xTokenURL = "https://api.twitter.com/2/oauth2/token"
)

type XService interface {
	AuthURL(state string) string
	Callback(ctx context.Context, code, userID string) error
	RefreshToken(ctx context.Context, acc *models.SocialAccount) (string, error)
	Platform() string
	SupportsMedia() bool
	Publish(ctx context.Context, account *models.SocialAccount, accessToken string, post *models.Post) (*publish.Result, error)
}

type xService struct {
	cfg        config.Config
	sa         repository.SocialAccountRepository
	oauth      *oauth2.Config
	httpClient *http.Client
	limiter    ratelimit.Limiter
	apiBaseURL string
}

func NewXService(cfg config.Config, sa repository.SocialAccountRepository) XService {
	return &xService{
		cfg: cfg,
		sa:  sa,
		oauth: &oauth2.Config{
			ClientID:     cfg.XClientID,
			ClientSecret: cfg.XClientSecret,
			RedirectURL:  cfg.XRedirectURI,
			Scopes:       []string{"tweet.read", "tweet.write", "users.read", "offline.access"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   xAuthURL,
				TokenURL:  xTokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    ratelimit.New(1),
		apiBaseURL: "https://api.twitter.com",
	}
}

func (s *xService) Platform() string {
	return models.PlatformX
}

// X publishing here is text-only; tweets with media would need the v1.1
// chunked upload endpoint, which this account tier does not expose.
func (s *xService) SupportsMedia() bool {
	return false
}

func (s *xService) AuthURL(state string) string {
	return s.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", "challenge"),
		oauth2.SetAuthURLParam("code_challenge_method", "plain"),
	)
}

func (s *xService) Callback(ctx context.Context, code, userID string) error {
	if code == "" {
		err := errors.New("authorization code is empty")
		slog.Info(err.Error())
		return err
	}

	token, err := s.oauth.Exchange(ctx, code, oauth2.SetAuthURLParam("code_verifier", "challenge"))
	if err != nil {
		slog.Info(err.Error())
		return fmt.Errorf("failed to exchange code: %w", err)
	}

	userInfo, err := s.userInfo(ctx, token.AccessToken)
	if err != nil {
		return err
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(token.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	encryptedRefreshToken := ""
	if token.RefreshToken != "" {
		encryptedRefreshToken, err = utils.Encrypt([]byte(token.RefreshToken), []byte(s.cfg.SecretKey))
		if err != nil {
			return err
		}
	}

	accountInfo := &models.SocialAccount{
		UserID:         userID,
		Platform:       models.PlatformX,
		PlatformUserID: userInfo.Data.ID,
		AccountName:    userInfo.Data.Name,
		ProfilePicture: userInfo.Data.ProfileImageURL,
		AccessToken:    encryptedAccessToken,
		RefreshToken:   encryptedRefreshToken,
		TokenExpiresAt: token.Expiry,
	}

	_, err = s.sa.Create(ctx, nil, accountInfo)
	if err != nil {
		return err
	}

	return nil
}

func (s *xService) userInfo(ctx context.Context, accessToken string) (*transfer.XUserResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiBaseURL+"/2/users/me?user.fields=profile_image_url", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("X users/me returned status %d", resp.StatusCode)
	}

	var userInfo transfer.XUserResponse
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return &userInfo, nil
}

// RefreshToken rotates the stored OAuth2 token through the token source,
// persists it and returns the plaintext access token.
func (s *xService) RefreshToken(ctx context.Context, acc *models.SocialAccount) (string, error) {
	if acc.RefreshToken == "" {
		return "", &publish.CredentialError{
			Platform:       models.PlatformX,
			ReauthRequired: true,
			Reason:         "no refresh token stored",
		}
	}

	decryptedRefreshToken, err := utils.Decrypt(acc.RefreshToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return "", err
	}

	source := s.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: decryptedRefreshToken})
	token, err := source.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			if retrieveErr.Response != nil && retrieveErr.Response.StatusCode >= 500 {
				return "", &publish.TransientError{Platform: models.PlatformX, Err: err}
			}
			return "", &publish.CredentialError{
				Platform:       models.PlatformX,
				ReauthRequired: true,
				Reason:         fmt.Sprintf("refresh rejected: %s", string(retrieveErr.Body)),
			}
		}
		return "", &publish.TransientError{Platform: models.PlatformX, Err: err}
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(token.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return "", err
	}

	encryptedRefreshToken := ""
	if token.RefreshToken != "" {
		encryptedRefreshToken, err = utils.Encrypt([]byte(token.RefreshToken), []byte(s.cfg.SecretKey))
		if err != nil {
			return "", err
		}
	}

	socialAccount := models.SocialAccount{
		AccessToken:    encryptedAccessToken,
		RefreshToken:   encryptedRefreshToken,
		TokenExpiresAt: token.Expiry,
	}

	if err := s.sa.SetToken(ctx, acc.ID, &socialAccount); err != nil {
		return "", err
	}

	return token.AccessToken, nil
}

func (s *xService) Publish(ctx context.Context, account *models.SocialAccount, accessToken string, post *models.Post) (*publish.Result, error) {
	jsonData, err := json.Marshal(transfer.XTweetRequest{Text: post.Content})
	if err != nil {
		return nil, err
	}

	s.limiter.Take()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiBaseURL+"/2/tweets", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &publish.TransientError{Platform: models.PlatformX, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, publish.MapResponse(models.PlatformX, resp.StatusCode, resp.Header.Get("Retry-After"), string(respBody))
	}

	var result transfer.XTweetResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return nil, &publish.TransientError{Platform: models.PlatformX, Err: err}
	}

	return &publish.Result{
		PlatformPostID:  result.Data.ID,
		PlatformPostURL: fmt.Sprintf("https://x.com/%s/status/%s", account.PlatformUserID, result.Data.ID),
	}, nil
}
