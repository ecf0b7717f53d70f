package controllers

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/Izza86/automated-video-platform-sub000/app/models"
	"github.com/Izza86/automated-video-platform-sub000/app/repository"
	"github.com/Izza86/automated-video-platform-sub000/internal/pkg/database"
	"github.com/Izza86/automated-video-platform-sub000/internal/pkg/env"
	"github.com/Izza86/automated-video-platform-sub000/internal/pkg/mail"
	"github.com/Izza86/automated-video-platform-sub000/internal/pkg/session"
	"github.com/Izza86/automated-video-platform-sub000/internal/pkg/statistics"
)

const (
	AUTH_KEY       string = "authenticated"
	USER_ID        string = "user_id"
	USER_NAME      string = "username"
	USER_IS_ADMIN  string = "isAdmin"
	FROM_PROTECTED string = "from_protected"
)

// HandleRegister creates a new inactive account and mails the activation link.
func HandleRegister(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid request body"})
	}

	user, err := models.CreateUser(req.Username, req.Email, req.Password)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}

	if err := user.GenerateActivationToken(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Registration failed"})
	}

	userRepo := repository.GetGlobalRepositories().User
	if err := userRepo.Create(user); err != nil {
		// notice: in production you should not inform the user
		// with detailed messages about registration failures
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": "Registration failed"})
	}

	go sendActivationMail(user)

	// Update statistics after registration
	go statistics.UpdateStatisticsCache()

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Registration successful. Please check your inbox to activate your account.",
	})
}

// HandleActivate flips an account to active when the token matches.
func HandleActivate(c *fiber.Ctx) error {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		var req struct {
			Token string `json:"token"`
		}
		if err := c.BodyParser(&req); err == nil {
			token = strings.TrimSpace(req.Token)
		}
	}
	if token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "token is required"})
	}

	userRepo := repository.GetGlobalRepositories().User
	user, err := userRepo.GetByActivationToken(token)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Invalid activation token"})
	}

	user.Status = models.STATUS_ACTIVE
	user.ActivationToken = ""
	if err := userRepo.Update(user); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Activation failed"})
	}

	return c.JSON(fiber.Map{"message": "Account activated. You can log in now."})
}

// HandleLogin authenticates by email and password and opens a session.
func HandleLogin(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid request body"})
	}

	// notice: in production you should not inform the user
	// with detailed messages about login failures
	var user models.User
	result := database.GetDB().Where("email = ?", req.Email).First(&user)
	if result.Error != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "There is a problem with the login process"})
	}

	if !models.CheckPasswordHash(req.Password, user.Password) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "There is a problem with the login process"})
	}

	if user.Status != models.STATUS_ACTIVE {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Account is not activated"})
	}

	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Login failed"})
	}

	sess.Set(AUTH_KEY, true)
	sess.Set(USER_ID, user.ID)
	sess.Set(USER_NAME, user.Name)
	sess.Set(USER_IS_ADMIN, user.Role == models.ROLE_ADMIN)
	// plan is re-resolved on the next request
	sess.Delete("user_plan")

	if err := sess.Save(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Login failed"})
	}

	database.GetDB().Model(&user).Update("last_login_at", time.Now())

	return c.JSON(fiber.Map{
		"user": fiber.Map{
			"id":       user.ID,
			"username": user.Name,
			"email":    user.Email,
			"isAdmin":  user.Role == models.ROLE_ADMIN,
		},
	})
}

// HandleLogout destroys the session.
func HandleLogout(c *fiber.Ctx) error {
	sess, err := session.GetSessionStore().Get(c)
	if err == nil {
		_ = sess.Destroy()
	}

	c.Locals(FROM_PROTECTED, false)

	return c.JSON(fiber.Map{"message": "Logged out"})
}

// HandleForgotPassword mints a reset token and mails the reset link. The
// response is identical whether or not the address exists.
func HandleForgotPassword(c *fiber.Ctx) error {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "email is required"})
	}

	genericResponse := fiber.Map{"message": "If the address exists, a reset link has been sent."}

	repos := repository.GetGlobalRepositories()
	user, err := repos.User.GetByEmail(strings.TrimSpace(req.Email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(genericResponse)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Request failed"})
	}

	token, err := models.NewPasswordResetToken(user.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Request failed"})
	}
	if err := repos.PasswordReset.Create(token); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Request failed"})
	}

	go sendPasswordResetMail(user, token.Token)

	return c.JSON(genericResponse)
}

// HandleResetPassword redeems a reset token and sets the new password. Tokens
// are single-use and expire after models.PasswordResetTokenTTL.
func HandleResetPassword(c *fiber.Ctx) error {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Token) == "" || len(req.Password) < 6 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "token and a password of at least 6 characters are required"})
	}

	repos := repository.GetGlobalRepositories()
	prt, err := repos.PasswordReset.GetByToken(strings.TrimSpace(req.Token))
	if err != nil || !prt.IsRedeemable() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid or expired token"})
	}

	user, err := repos.User.GetByID(prt.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Reset failed"})
	}

	if err := user.SetPassword(req.Password); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Reset failed"})
	}
	if err := repos.User.Update(user); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Reset failed"})
	}
	if err := repos.PasswordReset.MarkUsed(prt.ID); err != nil {
		log.Printf("[Auth] failed to mark reset token %d used: %v", prt.ID, err)
	}

	return c.JSON(fiber.Map{"message": "Password updated. You can log in now."})
}

func sendActivationMail(user *models.User) {
	domain := env.GetEnv("PUBLIC_DOMAIN", "http://localhost:8080")
	link := fmt.Sprintf("%s/activate?token=%s", domain, user.ActivationToken)
	body := fmt.Sprintf("<p>Hi %s,</p><p>please activate your account:</p><p><a href=\"%s\">%s</a></p>", user.Name, link, link)
	if err := mail.SendMail(user.Email, "Activate your account", body); err != nil {
		log.Printf("[Auth] activation mail to user %d failed: %v", user.ID, err)
	}
}

func sendPasswordResetMail(user *models.User, token string) {
	domain := env.GetEnv("PUBLIC_DOMAIN", "http://localhost:8080")
	link := fmt.Sprintf("%s/reset-password?token=%s", domain, token)
	body := fmt.Sprintf("<p>Hi %s,</p><p>reset your password within %d minutes:</p><p><a href=\"%s\">%s</a></p>",
		user.Name, int(models.PasswordResetTokenTTL.Minutes()), link, link)
	if err := mail.SendMail(user.Email, "Reset your password", body); err != nil {
		log.Printf("[Auth] reset mail to user %d failed: %v", user.ID, err)
	}
}
