package notification

import (
	"encoding/json"
	"fmt"

	"github.com/skyfay/dbackup/internal/db"
)

// Per-channel-type Config shapes, unmarshaled from db.Channel.Config JSON.
// db.Channel.Secret (decrypted transparently by GORM on load) holds whatever
// credential that channel type needs: SMTP password, HMAC secret, bot token,
// auth token, or Twilio auth token.

type emailConfig struct {
	Host     string   `json:"host"`
	Port     int      `json:"port"`
	Username string   `json:"username"`
	From     string   `json:"from"`
	TLS      bool     `json:"tls"`
	To       []string `json:"to"`
}

type webhookConfig struct {
	URL string `json:"url"`
}

type telegramConfig struct {
	ChatID string `json:"chat_id"`
}

type pushConfig struct {
	URL      string `json:"url"`   // ntfy topic URL or Gotify server base URL
	Priority string `json:"priority,omitempty"`
}

type twilioSMSConfig struct {
	AccountSID string `json:"account_sid"`
	From       string `json:"from"`
	To         string `json:"to"`
}

func decodeConfig(raw string, into any) error {
	if raw == "" {
		return fmt.Errorf("%w: empty config", ErrInvalidConfig)
	}
	if err := json.Unmarshal([]byte(raw), into); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, err)
	}
	return nil
}

// resolveEmailRecipients applies the channel's NotifyMode override (spec
// §4.8 "per-user mode") when the event carries a user email.
func resolveEmailRecipients(ch *db.Channel, cfg emailConfig, ev Event) []string {
	if ev.UserEmail == "" {
		return cfg.To
	}
	switch ch.NotifyMode {
	case "none":
		return nil
	case "only":
		return []string{ev.UserEmail}
	default: // "also"
		return append(append([]string{}, cfg.To...), ev.UserEmail)
	}
}
