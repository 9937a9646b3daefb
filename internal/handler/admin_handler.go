package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"drivingschool-api/internal/middleware"
)

func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.creds.ListUsers(c.Request.Context())
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "users": users})
}

func (h *Handler) CreateUser(c *gin.Context) {
	var req credentialsRequest
	if err := bind(c, &req); err != nil {
		middleware.RespondError(c, err)
		return
	}
	u, err := h.creds.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "User created",
		"user":    userSummary{ID: u.ID, Username: u.Username},
	})
}

func (h *Handler) DeleteUser(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	if err := h.creds.DeleteUser(c.Request.Context(), id); err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "User deleted"})
}

type resetPasswordRequest struct {
	NewPassword string `json:"newPassword"`
}

func (h *Handler) ResetPassword(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	var req resetPasswordRequest
	if err := bind(c, &req); err != nil {
		middleware.RespondError(c, err)
		return
	}
	if err := h.creds.ResetPassword(c.Request.Context(), id, req.NewPassword); err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Password reset"})
}
