package notification

import "errors"

// Sentinel errors returned by senders and the dispatch service. Callers
// should use errors.Is for comparison.
var (
	// ErrSendFailed is returned when a channel could not deliver a payload.
	// It is logged and recorded in a NotificationLog row but never propagated
	// to the caller that raised the event (spec §4.8 "failure policy").
	ErrSendFailed = errors.New("notification: send failed")

	// ErrInvalidConfig is returned when a channel's Config JSON is missing a
	// required field or fails to parse.
	ErrInvalidConfig = errors.New("notification: invalid channel configuration")
)
