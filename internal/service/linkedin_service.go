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
	"net/url"
	"strings"
	"time"

	"go.uber.org/ratelimit"

	config "github.com/crossposthq/crosspost-api/configs"
	"github.com/crossposthq/crosspost-api/internal/models"
	"github.com/crossposthq/crosspost-api/internal/publish"
	"github.com/crossposthq/crosspost-api/internal/repository"
	"github.com/crossposthq/crosspost-api/internal/transfer"
	"github.com/crossposthq/crosspost-api/pkg/utils"
)

const (
	linkedinAuthURL  = "https://www.linkedin.com/oauth/v2/authorization"
	linkedinTokenURL = "https://www.linkedin.com/oauth/v2/accessToken"
)

type LinkedinService interface {
	AuthURL(state string) string
	Callback(ctx context.Context, code, userID string) error
	RefreshToken(ctx context.Context, acc *models.SocialAccount) (string, error)
	Platform() string
	SupportsMedia() bool
	Publish(ctx context.Context, account *models.SocialAccount, accessToken string, post *models.Post) (*publish.Result, error)
}

type linkedinService struct {
	cfg        config.Config
	sa         repository.SocialAccountRepository
	httpClient *http.Client
	limiter    ratelimit.Limiter
	apiBaseURL string
	tokenURL   string
}

func NewLinkedinService(cfg config.Config, sa repository.SocialAccountRepository) LinkedinService {
	return &linkedinService{
		cfg:        cfg,
		sa:         sa,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    ratelimit.New(2), // LinkedIn throttles aggressively
		apiBaseURL: "https://api.linkedin.com",
		tokenURL:   linkedinTokenURL,
	}
}

// tokenExpiry converts the token endpoint's expires_in seconds into an
// absolute expiry timestamp.
func tokenExpiry(expiresIn int) time.Time {
	return time.Now().Add(time.Duration(expiresIn) * time.Second)
}

func (s *linkedinService) Platform() string {
	return models.PlatformLinkedin
}

func (s *linkedinService) SupportsMedia() bool {
	return true
}

func (s *linkedinService) AuthURL(state string) string {
	params := url.Values{}
	params.Add("response_type", "code")
	params.Add("client_id", s.cfg.LinkedinClientID)
	params.Add("redirect_uri", s.cfg.LinkedinRedirectURI)
	params.Add("scope", "openid profile email w_member_social")
	params.Add("state", state)

	return fmt.Sprintf("%s?%s", linkedinAuthURL, params.Encode())
}

func (s *linkedinService) Callback(ctx context.Context, code, userID string) error {
	if code == "" {
		err := errors.New("authorization code is empty")
		slog.Info(err.Error())
		return err
	}

	tokenResponse, err := s.exchangeCodeForToken(ctx, code)
	if err != nil {
		return err
	}

	userInfo, err := s.userInfo(ctx, tokenResponse.AccessToken)
	if err != nil {
		return err
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(tokenResponse.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	encryptedRefreshToken := ""
	if tokenResponse.RefreshToken != "" {
		encryptedRefreshToken, err = utils.Encrypt([]byte(tokenResponse.RefreshToken), []byte(s.cfg.SecretKey))
		if err != nil {
			return err
		}
	}

	accountInfo := &models.SocialAccount{
		UserID:         userID,
		Platform:       models.PlatformLinkedin,
		PlatformUserID: userInfo.Sub,
		AccountName:    userInfo.Name,
		ProfilePicture: userInfo.Picture,
		AccessToken:    encryptedAccessToken,
		RefreshToken:   encryptedRefreshToken,
		TokenExpiresAt: tokenExpiry(tokenResponse.ExpiresIn),
	}

	_, err = s.sa.Create(ctx, nil, accountInfo)
	if err != nil {
		return err
	}

	return nil
}

func (s *linkedinService) exchangeCodeForToken(ctx context.Context, code string) (*transfer.LinkedinTokenResponse, error) {
	data := url.Values{}
	data.Add("grant_type", "authorization_code")
	data.Add("code", code)
	data.Add("redirect_uri", s.cfg.LinkedinRedirectURI)
	data.Add("client_id", s.cfg.LinkedinClientID)
	data.Add("client_secret", s.cfg.LinkedinClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Info("LinkedIn token endpoint returned non-200 status")
		return nil, errors.New("LinkedIn token endpoint returned non-200 status")
	}

	var tokenResponse transfer.LinkedinTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResponse); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}

	return &tokenResponse, nil
}

func (s *linkedinService) userInfo(ctx context.Context, accessToken string) (*transfer.LinkedinUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiBaseURL+"/v2/userinfo", nil)
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
		return nil, fmt.Errorf("LinkedIn userinfo returned status %d", resp.StatusCode)
	}

	var userInfo transfer.LinkedinUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return &userInfo, nil
}

// RefreshToken exchanges the stored refresh token for a new access token,
// persists the rotated credential and returns the plaintext access token.
func (s *linkedinService) RefreshToken(ctx context.Context, acc *models.SocialAccount) (string, error) {
	if acc.RefreshToken == "" {
		return "", &publish.CredentialError{
			Platform:       models.PlatformLinkedin,
			ReauthRequired: true,
			Reason:         "no refresh token stored",
		}
	}

	decryptedRefreshToken, err := utils.Decrypt(acc.RefreshToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return "", err
	}

	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", decryptedRefreshToken)
	data.Set("client_id", s.cfg.LinkedinClientID)
	data.Set("client_secret", s.cfg.LinkedinClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", &publish.TransientError{Platform: models.PlatformLinkedin, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
			// Refresh token revoked or expired: user must reconnect.
			return "", &publish.CredentialError{
				Platform:       models.PlatformLinkedin,
				ReauthRequired: true,
				Reason:         fmt.Sprintf("refresh rejected: %s", string(body)),
			}
		}
		return "", publish.MapResponse(models.PlatformLinkedin, resp.StatusCode, resp.Header.Get("Retry-After"), string(body))
	}

	var tokenResponse transfer.LinkedinTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResponse); err != nil {
		return "", err
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(tokenResponse.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return "", err
	}

	encryptedRefreshToken := ""
	if tokenResponse.RefreshToken != "" {
		encryptedRefreshToken, err = utils.Encrypt([]byte(tokenResponse.RefreshToken), []byte(s.cfg.SecretKey))
		if err != nil {
			return "", err
		}
	}

	socialAccount := models.SocialAccount{
		AccessToken:    encryptedAccessToken,
		RefreshToken:   encryptedRefreshToken,
		TokenExpiresAt: tokenExpiry(tokenResponse.ExpiresIn),
	}

	if err := s.sa.SetToken(ctx, acc.ID, &socialAccount); err != nil {
		return "", err
	}

	return tokenResponse.AccessToken, nil
}

// Publish posts to LinkedIn. Text-only posts go straight to ugcPosts; a
// post with media runs the three-step flow (registerUpload, binary upload,
// ugcPosts referencing the asset). Any step failing fails the attempt.
func (s *linkedinService) Publish(ctx context.Context, account *models.SocialAccount, accessToken string, post *models.Post) (*publish.Result, error) {
	if post.MediaURL == "" {
		return s.publishText(ctx, account, accessToken, post.Content)
	}

	uploadURL, asset, err := s.registerImageUpload(ctx, accessToken, account.PlatformUserID)
	if err != nil {
		return nil, err
	}

	imageBytes, err := s.fetchMedia(ctx, post.MediaURL)
	if err != nil {
		return nil, err
	}

	if err := s.uploadImage(ctx, uploadURL, accessToken, imageBytes); err != nil {
		return nil, err
	}

	return s.publishImage(ctx, account, accessToken, post.Content, asset)
}

func (s *linkedinService) publishText(ctx context.Context, account *models.SocialAccount, accessToken, text string) (*publish.Result, error) {
	body := transfer.LinkedinUgcPostRequest{
		Author:         "urn:li:person:" + account.PlatformUserID,
		LifecycleState: "PUBLISHED",
		SpecificContent: map[string]transfer.LinkedinShareContent{
			"com.linkedin.ugc.ShareContent": {
				ShareCommentary:    transfer.LinkedinShareCommentary{Text: text},
				ShareMediaCategory: "NONE",
			},
		},
		Visibility: map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	return s.postUgc(ctx, accessToken, &body)
}

func (s *linkedinService) publishImage(ctx context.Context, account *models.SocialAccount, accessToken, text, asset string) (*publish.Result, error) {
	body := transfer.LinkedinUgcPostRequest{
		Author:         "urn:li:person:" + account.PlatformUserID,
		LifecycleState: "PUBLISHED",
		SpecificContent: map[string]transfer.LinkedinShareContent{
			"com.linkedin.ugc.ShareContent": {
				ShareCommentary:    transfer.LinkedinShareCommentary{Text: text},
				ShareMediaCategory: "IMAGE",
				Media: []transfer.LinkedinMedia{
					{Status: "READY", Media: asset},
				},
			},
		},
		Visibility: map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	return s.postUgc(ctx, accessToken, &body)
}

func (s *linkedinService) postUgc(ctx context.Context, accessToken string, body *transfer.LinkedinUgcPostRequest) (*publish.Result, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	s.limiter.Take()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiBaseURL+"/v2/ugcPosts", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &publish.TransientError{Platform: models.PlatformLinkedin, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, publish.MapResponse(models.PlatformLinkedin, resp.StatusCode, resp.Header.Get("Retry-After"), string(respBody))
	}

	var result transfer.LinkedinUgcPostResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return nil, &publish.TransientError{Platform: models.PlatformLinkedin, Err: err}
	}

	return &publish.Result{
		PlatformPostID:  result.ID,
		PlatformPostURL: fmt.Sprintf("https://www.linkedin.com/feed/update/%s/", result.ID),
	}, nil
}

func (s *linkedinService) registerImageUpload(ctx context.Context, accessToken, platformUserID string) (uploadURL, asset string, err error) {
	body := transfer.LinkedinRegisterUploadRequest{
		RegisterUploadRequest: transfer.LinkedinRegisterUploadBody{
			Recipes: []string{"urn:li:digitalmediaRecipe:feedshare-image"},
			Owner:   "urn:li:person:" + platformUserID,
			ServiceRelationships: []transfer.LinkedinServiceRelationship{
				{
					RelationshipType: "OWNER",
					Identifier:       "urn:li:userGeneratedContent",
				},
			},
		},
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", "", err
	}

	s.limiter.Take()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiBaseURL+"/v2/assets?action=registerUpload", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", "", &publish.TransientError{Platform: models.PlatformLinkedin, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", "", publish.MapResponse(models.PlatformLinkedin, resp.StatusCode, resp.Header.Get("Retry-After"), string(respBody))
	}

	var result transfer.LinkedinRegisterUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return "", "", &publish.TransientError{Platform: models.PlatformLinkedin, Err: err}
	}

	mechanism, ok := result.Value.UploadMechanism["com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest"]
	if !ok || mechanism.UploadURL == "" {
		return "", "", &publish.TerminalError{
			Platform: models.PlatformLinkedin,
			Reason:   "register upload response missing upload mechanism",
		}
	}

	return mechanism.UploadURL, result.Value.Asset, nil
}

func (s *linkedinService) fetchMedia(ctx context.Context, mediaURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &publish.TransientError{Platform: models.PlatformLinkedin, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &publish.TransientError{
			Platform: models.PlatformLinkedin,
			Err:      fmt.Errorf("media fetch returned status %d", resp.StatusCode),
		}
	}

	return io.ReadAll(resp.Body)
}

func (s *linkedinService) uploadImage(ctx context.Context, uploadURL, accessToken string, imageBytes []byte) error {
	s.limiter.Take()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(imageBytes))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &publish.TransientError{Platform: models.PlatformLinkedin, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return publish.MapResponse(models.PlatformLinkedin, resp.StatusCode, resp.Header.Get("Retry-After"), string(respBody))
	}

	return nil
}
