package handlers

import (
	"github.com/ahmetcoskunkizilkaya/chat-relay/internal/dto"
	"github.com/ahmetcoskunkizilkaya/chat-relay/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/chat-relay/internal/services"
	"github.com/gofiber/fiber/v2"
)

type UserHandler struct {
	authService *services.AuthService
}

func NewUserHandler(authService *services.AuthService) *UserHandler {
	return &UserHandler{authService: authService}
}

// Me handles GET /api/me
func (h *UserHandler) Me(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return fiber.ErrUnauthorized
	}
	return c.JSON(dto.NewUserResponse(user))
}

// UpdateMe handles PUT /api/me
func (h *UserHandler) UpdateMe(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	var req dto.UpdateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	updated, err := h.authService.UpdateProfile(c.UserContext(), user, &req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.NewUserResponse(updated))
}

// DeleteMe handles DELETE /api/me
func (h *UserHandler) DeleteMe(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	if err := h.authService.DeleteAccount(c.UserContext(), user); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
