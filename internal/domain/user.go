package domain

import "time"

type User struct {
	ID         int64     `db:"id" json:"id"`
	Username   string    `db:"username" json:"username"`
	TelegramID *int64    `db:"telegram_id" json:"telegram_id,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
