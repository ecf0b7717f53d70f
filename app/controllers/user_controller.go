package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Izza86/automated-video-platform-sub000/app/repository"
	"github.com/Izza86/automated-video-platform-sub000/internal/pkg/session"
	"github.com/Izza86/automated-video-platform-sub000/internal/pkg/usercontext"
	"github.com/Izza86/automated-video-platform-sub000/internal/pkg/utils"
)

// HandleGetProfile returns the caller's own account data.
func HandleGetProfile(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
	}

	user, err := repository.GetGlobalRepositories().User.GetByID(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "User not found"})
	}

	avatar := user.AvatarURL
	if avatar == "" {
		avatar = utils.GetGravatarURL(user.Email, 160)
	}

	return c.JSON(fiber.Map{
		"user": fiber.Map{
			"id":        user.ID,
			"username":  user.Name,
			"email":     user.Email,
			"avatarUrl": avatar,
			"isAdmin":   user.IsAdmin(),
			"plan":      userCtx.Plan,
			"createdAt": user.CreatedAt,
		},
	})
}

// HandleUpdateProfile updates the caller's display name and avatar.
func HandleUpdateProfile(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
	}

	var req struct {
		Username  string `json:"username"`
		AvatarURL string `json:"avatarUrl"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid request body"})
	}

	userRepo := repository.GetGlobalRepositories().User
	user, err := userRepo.GetByID(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "User not found"})
	}

	if name := strings.TrimSpace(req.Username); name != "" {
		user.Name = name
	}
	if req.AvatarURL != "" {
		user.AvatarURL = strings.TrimSpace(req.AvatarURL)
	}
	if err := user.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}
	if err := userRepo.Update(user); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Update failed"})
	}

	// keep the session's display name in sync
	_ = session.SetSessionValue(c, USER_NAME, user.Name)

	return c.JSON(fiber.Map{"message": "Profile updated"})
}

// HandleChangePassword sets a new password after verifying the current one.
func HandleChangePassword(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
	}

	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := c.BodyParser(&req); err != nil || len(req.NewPassword) < 6 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "a new password of at least 6 characters is required"})
	}

	userRepo := repository.GetGlobalRepositories().User
	user, err := userRepo.GetByID(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "User not found"})
	}

	if !user.CheckPassword(req.CurrentPassword) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Current password is wrong"})
	}

	if err := user.SetPassword(req.NewPassword); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Password change failed"})
	}
	if err := userRepo.Update(user); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Password change failed"})
	}

	return c.JSON(fiber.Map{"message": "Password changed"})
}
