package handlers

import (
	"errors"
	"net/http"
	"strings"

	"task_tracker/internal/logger"
	"task_tracker/internal/service"

	"github.com/gin-gonic/gin"
)

// IssueTelegramLink returns a one-time deep link for the current user.
func (h *Handler) IssueTelegramLink(c *gin.Context) {
	uid, ok := mustUserID(c)
	if !ok {
		return
	}

	link, err := h.Links.IssueLink(c.Request.Context(), uid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"telegram_link": link.URL,
		"link_token":    link.Token,
		"expires_in":    int(link.ExpiresIn.Seconds()),
	})
}

func (h *Handler) UnlinkTelegram(c *gin.Context) {
	uid, ok := mustUserID(c)
	if !ok {
		return
	}
	if err := h.Links.Unlink(c.Request.Context(), uid); err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "unlinked"})
}

type confirmRequest struct {
	Code       string `json:"code"`
	TelegramID *int64 `json:"telegram_id"`
}

// ConfirmTelegram is called by the bot with the code from the deep link.
func (h *Handler) ConfirmTelegram(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code and telegram_id are required"})
		return
	}
	code := strings.TrimSpace(req.Code)
	if code == "" || req.TelegramID == nil || *req.TelegramID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code and telegram_id are required"})
		return
	}

	pair, err := h.Links.Confirm(c.Request.Context(), code, *req.TelegramID)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"status":          "linked",
			"access":          pair.Access,
			"refresh":         pair.Refresh,
			"access_expires":  pair.AccessExpires,
			"refresh_expires": pair.RefreshExpires,
		})
	case errors.Is(err, service.ErrLinkRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many attempts, try again later"})
	case errors.Is(err, service.ErrInvalidLinkCode):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or expired code"})
	case errors.Is(err, service.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	case errors.Is(err, service.ErrTelegramAlreadyLinked):
		c.JSON(http.StatusConflict, gin.H{"error": "telegram account already linked to another user"})
	default:
		logger.FromContext(c.Request.Context()).Error("telegram confirm failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
