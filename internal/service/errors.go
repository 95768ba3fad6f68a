package service

import "errors"

var (
	ErrInvalidLinkCode       = errors.New("invalid or expired link code")
	ErrLinkRateLimited       = errors.New("too many link attempts")
	ErrTelegramAlreadyLinked = errors.New("telegram account already linked to another user")
	ErrUserNotFound          = errors.New("user not found")
	// ErrForbidden is returned when the caller can see a task but may not perform the action.
	ErrForbidden = errors.New("forbidden")
)
