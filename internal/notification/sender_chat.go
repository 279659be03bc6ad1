package notification

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/skyfay/dbackup/internal/db"
)

// sendChat delivers a rendered Payload to one of the four webhook-shaped
// channel types. All four share the same build-payload/POST/require-2xx
// pattern; only the payload shape differs.
func sendChat(ctx context.Context, ch *db.Channel, p Payload) error {
	var cfg webhookConfig
	if err := decodeConfig(ch.Config, &cfg); err != nil {
		return err
	}
	if cfg.URL == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidConfig)
	}

	var body []byte
	var err error
	switch ch.Type {
	case "discord":
		body, err = json.Marshal(discordPayload(p))
	case "slack":
		body, err = json.Marshal(slackPayload(p))
	case "teams":
		body, err = json.Marshal(teamsPayload(p))
	default: // "webhook": generic, Slack/Discord-compatible "text" field
		body, err = json.Marshal(genericWebhookPayload(p))
	}
	if err != nil {
		return fmt.Errorf("%w: failed to marshal payload: %s", ErrSendFailed, err)
	}

	headers := map[string]string{}
	if ch.Type == "webhook" {
		if secret := string(ch.Secret); secret != "" {
			headers["X-Dbackup-Signature"] = "sha256=" + hmacSHA256(body, secret)
		}
	}

	return postJSON(ctx, cfg.URL, body, headers)
}

type genericWebhookBody struct {
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Text      string         `json:"text"`
	Success   bool           `json:"success"`
	Fields    []Field        `json:"fields,omitempty"`
	Timestamp string         `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

func genericWebhookPayload(p Payload) genericWebhookBody {
	return genericWebhookBody{
		Title:     p.Title,
		Text:      fmt.Sprintf("%s\n%s", p.Title, p.Message),
		Success:   p.Success,
		Fields:    p.Fields,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type discordEmbed struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Color       int                 `json:"color"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
}

type discordBody struct {
	Embeds []discordEmbed `json:"embeds"`
}

func discordPayload(p Payload) discordBody {
	fields := make([]discordEmbedField, 0, len(p.Fields))
	for _, f := range p.Fields {
		fields = append(fields, discordEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return discordBody{Embeds: []discordEmbed{{
		Title:       p.Title,
		Description: p.Message,
		Color:       hexColorToInt(p.Color),
		Fields:      fields,
	}}}
}

type slackAttachmentField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short,omitempty"`
}

type slackAttachment struct {
	Color  string                 `json:"color"`
	Title  string                 `json:"title"`
	Text   string                 `json:"text"`
	Fields []slackAttachmentField `json:"fields,omitempty"`
}

type slackBody struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments"`
}

func slackPayload(p Payload) slackBody {
	fields := make([]slackAttachmentField, 0, len(p.Fields))
	for _, f := range p.Fields {
		fields = append(fields, slackAttachmentField{Title: f.Name, Value: f.Value, Short: f.Inline})
	}
	return slackBody{
		Text: p.Title,
		Attachments: []slackAttachment{{
			Color:  p.Color,
			Title:  p.Title,
			Text:   p.Message,
			Fields: fields,
		}},
	}
}

type teamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type teamsSection struct {
	ActivityTitle string      `json:"activityTitle"`
	Text          string      `json:"text"`
	Facts         []teamsFact `json:"facts,omitempty"`
}

type teamsBody struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	Summary    string         `json:"summary"`
	ThemeColor string         `json:"themeColor"`
	Title      string         `json:"title"`
	Sections   []teamsSection `json:"sections"`
}

func teamsPayload(p Payload) teamsBody {
	facts := make([]teamsFact, 0, len(p.Fields))
	for _, f := range p.Fields {
		facts = append(facts, teamsFact{Name: f.Name, Value: f.Value})
	}
	return teamsBody{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		Summary:    p.Title,
		ThemeColor: strings.TrimPrefix(p.Color, "#"),
		Title:      p.Title,
		Sections:   []teamsSection{{ActivityTitle: p.Title, Text: p.Message, Facts: facts}},
	}
}

// hexColorToInt parses a "#rrggbb" string into the decimal int Discord
// embeds expect. Falls back to 0 (black) on a malformed color.
func hexColorToInt(hexColor string) int {
	hexColor = strings.TrimPrefix(hexColor, "#")
	n, err := parseHexInt(hexColor)
	if err != nil {
		return 0
	}
	return n
}

func parseHexInt(s string) (int, error) {
	var n int64
	_, err := fmt.Sscanf(s, "%x", &n)
	return int(n), err
}

func hmacSHA256(data []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}
