package notification

import (
	"testing"

	"github.com/skyfay/dbackup/internal/db"
)

func TestResolveEmailRecipientsModes(t *testing.T) {
	cfg := emailConfig{To: []string{"ops@example.com"}}
	ev := Event{UserEmail: "alice@example.com"}

	also := resolveEmailRecipients(&db.Channel{NotifyMode: "also"}, cfg, ev)
	if len(also) != 2 {
		t.Fatalf("expected also mode to add the user email, got %v", also)
	}

	only := resolveEmailRecipients(&db.Channel{NotifyMode: "only"}, cfg, ev)
	if len(only) != 1 || only[0] != ev.UserEmail {
		t.Fatalf("expected only mode to target just the user email, got %v", only)
	}

	none := resolveEmailRecipients(&db.Channel{NotifyMode: "none"}, cfg, ev)
	if len(none) != 0 {
		t.Fatalf("expected none mode to produce no recipients, got %v", none)
	}

	noUser := resolveEmailRecipients(&db.Channel{NotifyMode: "also"}, cfg, Event{})
	if len(noUser) != 1 || noUser[0] != "ops@example.com" {
		t.Fatalf("expected configured recipients when no user email is present, got %v", noUser)
	}
}

func TestDecodeConfigRejectsEmpty(t *testing.T) {
	var cfg webhookConfig
	if err := decodeConfig("", &cfg); err == nil {
		t.Fatal("expected error decoding empty config")
	}
}
