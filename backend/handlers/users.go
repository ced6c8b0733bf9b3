package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/models"
	"golang.org/x/crypto/bcrypt"
)

func (h *Handler) GetUsers(c *fiber.Ctx) error {
	var users []models.Admin
	if result := h.DB.Order("id").Find(&users); result.Error != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": result.Error.Error()})
	}
	return c.JSON(users)
}

func (h *Handler) CreateUser(c *fiber.Ctx) error {
	var input struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&input); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	input.Username = strings.TrimSpace(input.Username)
	if input.Username == "" || len(input.Password) < minPasswordLength {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Username required and password must be at least 8 characters"})
	}

	var exists int64
	h.DB.Model(&models.Admin{}).Where("username = ?", input.Username).Count(&exists)
	if exists > 0 {
		return c.Status(http.StatusConflict).JSON(fiber.Map{"error": "User already exists"})
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Could not hash password"})
	}
	user := models.Admin{Username: input.Username, Password: string(hashed)}
	if result := h.DB.Create(&user); result.Error != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": result.Error.Error()})
	}

	AddEvent("info", "User created: "+user.Username)
	return c.Status(http.StatusCreated).JSON(fiber.Map{"message": "User created", "user": user.Username})
}

func (h *Handler) DeleteUser(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid user id"})
	}

	var target models.Admin
	if err := h.DB.First(&target, id).Error; err != nil {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	}
	if target.Username == currentUser(c) {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Cannot delete the logged in user"})
	}

	var count int64
	h.DB.Model(&models.Admin{}).Count(&count)
	if count <= 1 {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Cannot delete the last user"})
	}

	if result := h.DB.Delete(&target); result.Error != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": result.Error.Error()})
	}

	AddEvent("info", "User deleted: "+target.Username)
	return c.JSON(fiber.Map{"message": "User deleted"})
}
