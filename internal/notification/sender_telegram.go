package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/skyfay/dbackup/internal/db"
)

// sendTelegram delivers a Payload via the Telegram Bot API's sendMessage
// method. The bot token lives in Channel.Secret; the chat to post into is
// configured per channel.
func sendTelegram(ctx context.Context, ch *db.Channel, p Payload) error {
	var cfg telegramConfig
	if err := decodeConfig(ch.Config, &cfg); err != nil {
		return err
	}
	if cfg.ChatID == "" {
		return fmt.Errorf("%w: chat_id is required", ErrInvalidConfig)
	}
	token := string(ch.Secret)
	if token == "" {
		return fmt.Errorf("%w: bot token is required", ErrInvalidConfig)
	}

	text := fmt.Sprintf("*%s*\n%s", p.Title, p.Message)
	body, err := json.Marshal(map[string]any{
		"chat_id":    cfg.ChatID,
		"text":       text,
		"parse_mode": "Markdown",
	})
	if err != nil {
		return fmt.Errorf("%w: failed to marshal payload: %s", ErrSendFailed, err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", token)
	return postJSON(ctx, url, body, nil)
}
