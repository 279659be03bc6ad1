package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/skyfay/dbackup/internal/db"
)

// sendNtfy delivers a Payload to an ntfy topic URL (e.g.
// https://ntfy.sh/my-topic). An optional access token in Channel.Secret is
// sent as a bearer token for protected topics.
func sendNtfy(ctx context.Context, ch *db.Channel, p Payload) error {
	var cfg pushConfig
	if err := decodeConfig(ch.Config, &cfg); err != nil {
		return err
	}
	if cfg.URL == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidConfig)
	}

	body, err := json.Marshal(map[string]any{
		"title":    p.Title,
		"message":  p.Message,
		"priority": ntfyPriority(p, cfg),
		"tags":     ntfyTags(p),
	})
	if err != nil {
		return fmt.Errorf("%w: failed to marshal payload: %s", ErrSendFailed, err)
	}

	headers := map[string]string{}
	if token := string(ch.Secret); token != "" {
		headers["Authorization"] = "Bearer " + token
	}
	return postJSON(ctx, cfg.URL, body, headers)
}

// sendGotify delivers a Payload to a self-hosted Gotify server. The
// application token lives in Channel.Secret and is sent as a query parameter
// per Gotify's message API.
func sendGotify(ctx context.Context, ch *db.Channel, p Payload) error {
	var cfg pushConfig
	if err := decodeConfig(ch.Config, &cfg); err != nil {
		return err
	}
	if cfg.URL == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidConfig)
	}
	token := string(ch.Secret)
	if token == "" {
		return fmt.Errorf("%w: application token is required", ErrInvalidConfig)
	}

	body, err := json.Marshal(map[string]any{
		"title":    p.Title,
		"message":  p.Message,
		"priority": gotifyPriority(p),
	})
	if err != nil {
		return fmt.Errorf("%w: failed to marshal payload: %s", ErrSendFailed, err)
	}

	url := fmt.Sprintf("%s/message?token=%s", cfg.URL, token)
	return postJSON(ctx, url, body, nil)
}

func ntfyPriority(p Payload, cfg pushConfig) string {
	if cfg.Priority != "" {
		return cfg.Priority
	}
	if p.Success {
		return "default"
	}
	return "high"
}

func ntfyTags(p Payload) []string {
	if p.Success {
		return []string{"white_check_mark"}
	}
	return []string{"x"}
}

func gotifyPriority(p Payload) int {
	if p.Success {
		return 3
	}
	return 7
}
