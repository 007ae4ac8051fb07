package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"coach-chat/internal/middleware"
	"coach-chat/internal/models"
	"coach-chat/internal/repositories"
)

// UserHandler exposes the profiles people chat with.
type UserHandler struct {
	users repositories.UserRepository
}

// NewUserHandler builds a UserHandler.
func NewUserHandler(users repositories.UserRepository) *UserHandler {
	return &UserHandler{users: users}
}

// Me returns the authenticated user's profile.
func (h *UserHandler) Me(c *gin.Context) {
	user, err := h.users.GetUser(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err, "failed to load user")
		return
	}
	c.JSON(http.StatusOK, user)
}

// ListByRole lists trainers or trainees, e.g. the coaches a trainee can message.
func (h *UserHandler) ListByRole(c *gin.Context) {
	role := models.Role(c.Query("role"))
	if role != models.RoleTrainer && role != models.RoleTrainee {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be trainer or trainee"})
		return
	}

	users, err := h.users.ListByRole(c.Request.Context(), role)
	if err != nil {
		respondError(c, err, "failed to load users")
		return
	}
	if users == nil {
		users = []models.User{}
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}
