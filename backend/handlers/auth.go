package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/models"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/system"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	maxFailedAttempts = 5
	lockoutDuration   = 5 * time.Minute
	minPasswordLength = 8
)

// LoginRequest struct
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func jwtSecretFrom(configured string) []byte {
	if configured != "" {
		return []byte(configured)
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("failed to generate jwt secret: %v", err))
	}
	system.Warn("auth.jwt_secret not set; using a random secret, tokens will not survive a restart")

	return buf
}

// EnsureBootstrapAdmin creates the first operator when the admin table is
// empty. A missing password is generated and logged once.
func EnsureBootstrapAdmin(db *gorm.DB, username, password string) error {
	var count int64
	if err := db.Model(&models.Admin{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count admins: %w", err)
	}
	if count > 0 {
		return nil
	}

	if username == "" {
		username = "admin"
	}

	generated := password == ""
	if generated {
		buf := make([]byte, 9)
		if _, err := rand.Read(buf); err != nil {
			return fmt.Errorf("failed to generate password: %w", err)
		}
		password = hex.EncodeToString(buf)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := db.Create(&models.Admin{Username: username, Password: string(hashed)}).Error; err != nil {
		return fmt.Errorf("failed to create admin %s: %w", username, err)
	}

	if generated {
		system.Warn("Created initial admin %q with generated password %s; change it after first login", username, password)
	} else {
		system.Info("Created initial admin %q", username)
	}

	return nil
}

func (h *Handler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid input"})
	}

	var admin models.Admin
	if err := h.DB.Where("username = ?", req.Username).First(&admin).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		system.Warn("Failed login attempt for unknown user: %s", req.Username)
		return c.Status(401).JSON(fiber.Map{"error": "Invalid credentials"})
	}

	now := time.Now()
	if admin.Locked(now) {
		minutes := int(admin.LockedUntil.Sub(now).Minutes()) + 1
		return c.Status(403).JSON(fiber.Map{"error": fmt.Sprintf("Account is locked. Try again in %d minutes.", minutes)})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.Password), []byte(req.Password)); err != nil {
		admin.FailedAttempts++
		admin.LastFailedAttempt = &now
		msg := "Invalid credentials"
		if admin.FailedAttempts >= maxFailedAttempts {
			lockUntil := now.Add(lockoutDuration)
			admin.LockedUntil = &lockUntil
			msg = "Account locked for 5 minutes"
		}
		h.DB.Save(&admin)

		system.Warn("Failed login attempt for user: %s (attempt %d)", req.Username, admin.FailedAttempts)
		return c.Status(401).JSON(fiber.Map{"error": msg})
	}

	admin.FailedAttempts = 0
	admin.LockedUntil = nil
	admin.LastLoginAt = &now
	h.DB.Save(&admin)

	ttl := h.Config.Auth.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	claims := jwt.MapClaims{
		"user": admin.Username,
		"exp":  now.Add(ttl).Unix(),
	}
	t, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.jwtSecret)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "Could not login"})
	}

	AddEvent("success", "User logged in: "+admin.Username)
	return c.JSON(fiber.Map{"token": t})
}

// ChangePassword handler
func (h *Handler) ChangePassword(c *fiber.Ctx) error {
	username := currentUser(c)
	if username == "" {
		return c.Status(401).JSON(fiber.Map{"error": "Not authenticated"})
	}

	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid input"})
	}
	if len(req.NewPassword) < minPasswordLength {
		return c.Status(400).JSON(fiber.Map{"error": fmt.Sprintf("Password must be at least %d characters", minPasswordLength)})
	}

	var admin models.Admin
	if err := h.DB.Where("username = ?", username).First(&admin).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "User not found"})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.Password), []byte(req.OldPassword)); err != nil {
		return c.Status(401).JSON(fiber.Map{"error": "Incorrect old password"})
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "Could not hash password"})
	}
	admin.Password = string(hashed)
	admin.FailedAttempts = 0
	admin.LockedUntil = nil

	h.DB.Save(&admin)
	system.Info("User changed password: %s", username)

	return c.JSON(fiber.Map{"message": "Password updated"})
}

// JWTAuthMiddleware validates the bearer token. With auth disabled every
// request passes.
func (h *Handler) JWTAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !h.Config.Auth.Enabled {
			return c.Next()
		}

		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(401).JSON(fiber.Map{"error": "Missing authorization header"})
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.Status(401).JSON(fiber.Map{"error": "Invalid authorization format"})
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fiber.NewError(401, "Invalid signing method")
			}
			return h.jwtSecret, nil
		})

		if err != nil || !token.Valid {
			return c.Status(401).JSON(fiber.Map{"error": "Invalid or expired token"})
		}

		// Store token in context for handlers
		c.Locals("user", token)

		return c.Next()
	}
}

func currentUser(c *fiber.Ctx) string {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok {
		return ""
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return ""
	}
	user, _ := claims["user"].(string)

	return user
}
