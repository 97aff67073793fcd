package middleware

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/ahmetcoskunkizilkaya/chat-relay/internal/dto"
	"github.com/ahmetcoskunkizilkaya/chat-relay/internal/models"
	"github.com/ahmetcoskunkizilkaya/chat-relay/internal/services"
	"github.com/gofiber/fiber/v2"
)

const (
	bearerPrefix = "Bearer "

	localUser  = "user"
	localToken = "token"
)

type userLookup interface {
	UserByID(ctx context.Context, id uint) (*models.User, error)
}

// RequireUser resolves the bearer token to a stored user on every request.
// Bad or revoked tokens get 401; tokens of deleted users get 404.
func RequireUser(tokens *services.TokenService, users userLookup, denylist services.Denylist) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(header, bearerPrefix) {
			return unauthorized(c, "Missing or malformed Authorization header")
		}
		raw := strings.TrimPrefix(header, bearerPrefix)

		claims, err := tokens.Validate(raw)
		if err != nil {
			return unauthorized(c, "Unauthorized: invalid or expired token")
		}
		userID, err := services.UserIDFromClaims(claims)
		if err != nil {
			return unauthorized(c, "Unauthorized: invalid token claims")
		}

		ctx := c.UserContext()
		revoked, err := denylist.IsRevoked(ctx, raw)
		if err != nil {
			slog.Error("denylist lookup failed", "error", err)
			return fiber.NewError(fiber.StatusInternalServerError, "Internal server error")
		}
		if revoked {
			return unauthorized(c, "Unauthorized: token has been revoked")
		}

		user, err := users.UserByID(ctx, userID)
		if err != nil {
			if errors.Is(err, services.ErrUserNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
					Error: true, Message: "User not found",
				})
			}
			return err
		}

		c.Locals(localUser, user)
		c.Locals(localToken, raw)
		return c.Next()
	}
}

// CurrentUser returns the user resolved by RequireUser.
func CurrentUser(c *fiber.Ctx) (*models.User, bool) {
	user, ok := c.Locals(localUser).(*models.User)
	return user, ok && user != nil
}

// CurrentToken returns the raw bearer token accepted by RequireUser.
func CurrentToken(c *fiber.Ctx) string {
	token, _ := c.Locals(localToken).(string)
	return token
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
		Error: true, Message: message,
	})
}
