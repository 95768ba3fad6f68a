package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEntryURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		bot  string
		want string
	}{
		{"explicit url", Config{BotEntryURL: "https://t.me/custom", BotUsername: "other"}, "api_bot", "https://t.me/custom"},
		{"configured username", Config{BotUsername: "team_bot"}, "api_bot", "https://t.me/team_bot"},
		{"authorized bot", Config{}, "api_bot", "https://t.me/api_bot"},
		{"fallback", Config{}, "", "https://t.me/TaskTrackerBot"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.EntryURL(tt.bot))
		})
	}
}

func TestSecondsEnv(t *testing.T) {
	t.Setenv("TT_SECONDS", "12")
	assert.Equal(t, 12*time.Second, secondsEnv("TT_SECONDS", time.Minute))

	t.Setenv("TT_SECONDS", "-3")
	assert.Equal(t, time.Minute, secondsEnv("TT_SECONDS", time.Minute), "non-positive values fall back")
}
