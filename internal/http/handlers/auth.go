package handlers

import (
	"errors"
	"net/http"
	"strings"

	"task_tracker/internal/domain"
	"task_tracker/internal/service"

	"github.com/gin-gonic/gin"
)

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

// Refresh exchanges a refresh token for a new pair.
func (h *Handler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Refresh == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refresh is required"})
		return
	}

	userID, err := service.ParseRefreshJWT(req.Refresh)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	_, err = h.Users.GetByID(c.Request.Context(), userID)
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	pair, err := service.GenerateTokenPair(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token generation failed"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

type devLoginRequest struct {
	Username string `json:"username"`
}

// DevLogin issues a session for username, creating the user when missing.
// It is only routed in DEV_MODE.
func (h *Handler) DevLogin(c *gin.Context) {
	if !h.DevMode {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	var req devLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username is required"})
		return
	}

	ctx := c.Request.Context()
	user, err := h.Users.GetByUsername(ctx, username)
	if errors.Is(err, domain.ErrNotFound) {
		user = &domain.User{Username: username}
		err = h.Users.Create(ctx, user)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	pair, err := service.GenerateTokenPair(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token generation failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access":          pair.Access,
		"refresh":         pair.Refresh,
		"access_expires":  pair.AccessExpires,
		"refresh_expires": pair.RefreshExpires,
		"user":            user,
	})
}
