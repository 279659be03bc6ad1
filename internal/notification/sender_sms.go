package notification

import (
	"context"
	"fmt"
	"net/url"

	"github.com/skyfay/dbackup/internal/db"
)

// sendTwilioSMS delivers a terse Payload summary via Twilio's Messages REST
// API using HTTP Basic Auth (account SID + auth token) and a form-encoded
// body, as Twilio's API requires.
func sendTwilioSMS(ctx context.Context, ch *db.Channel, p Payload) error {
	var cfg twilioSMSConfig
	if err := decodeConfig(ch.Config, &cfg); err != nil {
		return err
	}
	if cfg.AccountSID == "" || cfg.From == "" || cfg.To == "" {
		return fmt.Errorf("%w: account_sid, from, and to are required", ErrInvalidConfig)
	}
	authToken := string(ch.Secret)
	if authToken == "" {
		return fmt.Errorf("%w: auth token is required", ErrInvalidConfig)
	}

	form := url.Values{}
	form.Set("From", cfg.From)
	form.Set("To", cfg.To)
	form.Set("Body", fmt.Sprintf("%s: %s", p.Title, p.Message))

	endpoint := fmt.Sprintf("https://api.twilio.com/2010-04-01/Accounts/%s/Messages.json", cfg.AccountSID)
	headers := map[string]string{
		"Authorization": "Basic " + basicAuth(cfg.AccountSID, authToken),
	}
	return postForm(ctx, endpoint, []byte(form.Encode()), headers)
}
