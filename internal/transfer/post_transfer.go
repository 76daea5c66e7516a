package transfer

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/crossposthq/crosspost-api/internal/models"
)

type PostCreation struct {
	Content       string   `json:"content"`
	Platforms     []string `json:"platforms"`
	ScheduledTime string   `json:"scheduled_time"`
}

type PostStatusResponse struct {
	Post          *models.Post           `json:"post"`
	PlatformPosts []*models.PlatformPost `json:"platform_posts"`
}

type CustomClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}
