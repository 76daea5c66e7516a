package handlers

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	config "github.com/crossposthq/crosspost-api/configs"
	"github.com/crossposthq/crosspost-api/internal/models"
	"github.com/crossposthq/crosspost-api/internal/service"
	"github.com/crossposthq/crosspost-api/pkg/utils"
)

type PlatformHandler struct {
	cfg config.Config
	ls  service.LinkedinService
	xs  service.XService
	as  service.AccountService
}

func NewPlatformHandler(cfg config.Config, ls service.LinkedinService, xs service.XService, as service.AccountService) *PlatformHandler {
	return &PlatformHandler{
		cfg: cfg,
		ls:  ls,
		xs:  xs,
		as:  as,
	}
}

// AddSocialAccount redirects the user to the platform's consent page. The
// OAuth state parameter carries a short-lived token so the callback can
// attribute the connection without a session.
func (h *PlatformHandler) AddSocialAccount(c *fiber.Ctx) error {
	userID := GetUserID(c)
	platform := strings.ToUpper(c.Params("platform"))

	state, err := utils.GenerateToken(h.cfg.SecretKey, userID, 10*time.Minute)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to start platform connection",
		})
	}

	var authURL string
	switch platform {
	case models.PlatformLinkedin:
		authURL = h.ls.AuthURL(state)
	case models.PlatformX:
		authURL = h.xs.AuthURL(state)
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unsupported platform",
		})
	}

	return c.Redirect(authURL, fiber.StatusTemporaryRedirect)
}

func (h *PlatformHandler) CallbackHandler(c *fiber.Ctx) error {
	platform := strings.ToUpper(c.Params("platform"))
	code := c.Query("code")
	state := c.Query("state")

	if errParam := c.Query("error"); errParam != "" {
		slog.Info("platform connection denied", "platform", platform, "error", errParam)
		return c.Redirect(h.cfg.FrontendURL + "/error?error=Authentication_Failed")
	}

	claims, err := utils.ValidateToken(h.cfg.SecretKey, state)
	if err != nil {
		return c.Redirect(h.cfg.FrontendURL + "/error?error=Unauthenticated")
	}

	switch platform {
	case models.PlatformLinkedin:
		err = h.ls.Callback(c.Context(), code, claims.UserID)
	case models.PlatformX:
		err = h.xs.Callback(c.Context(), code, claims.UserID)
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unsupported platform",
		})
	}

	if err != nil {
		slog.Error(err.Error())
		return c.Redirect(h.cfg.FrontendURL + "/error?error=Connection_Failed")
	}

	return c.Redirect(h.cfg.FrontendURL + "/home")
}

func (h *PlatformHandler) ListSocialAccounts(c *fiber.Ctx) error {
	userID := GetUserID(c)

	accounts, err := h.as.List(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to list social accounts",
		})
	}

	return c.Status(fiber.StatusOK).JSON(accounts)
}

func (h *PlatformHandler) DeleteSocialAccount(c *fiber.Ctx) error {
	userID := GetUserID(c)
	accountID := int64(c.QueryInt("id", 0))

	if err := h.as.Disconnect(c.Context(), userID, accountID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to disconnect account",
		})
	}

	return c.SendStatus(fiber.StatusOK)
}
