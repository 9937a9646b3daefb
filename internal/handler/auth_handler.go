package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"drivingschool-api/internal/middleware"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userSummary struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

func (h *Handler) Register(c *gin.Context) {
	var req credentialsRequest
	if err := bind(c, &req); err != nil {
		middleware.RespondError(c, err)
		return
	}
	if _, err := h.creds.Register(c.Request.Context(), req.Username, req.Password); err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "Registration successful"})
}

func (h *Handler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := bind(c, &req); err != nil {
		middleware.RespondError(c, err)
		return
	}
	u, err := h.creds.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	tok, err := h.sessions.Mint(u)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"token":   tok,
		"user":    userSummary{ID: u.ID, Username: u.Username},
	})
}
