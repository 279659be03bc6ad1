// Package notification dispatches events produced by the runner, scheduler,
// and alert monitor to configured channels (email, chat webhooks, SMS, push).
// It is the single component responsible for rendering event payloads and
// fanning them out; no other package should call a channel sender directly.
package notification

import "github.com/google/uuid"

// EventType is the closed enum of events the orchestrator can notify on
// (spec §4.8).
type EventType string

const (
	EventBackupSuccess       EventType = "backup_success"
	EventBackupFailure       EventType = "backup_failure"
	EventRestoreComplete     EventType = "restore_complete"
	EventRestoreFailure      EventType = "restore_failure"
	EventConfigBackup        EventType = "config_backup"
	EventSystemError         EventType = "system_error"
	EventUserLogin           EventType = "user_login"
	EventUserCreated         EventType = "user_created"
	EventStorageUsageSpike   EventType = "storage_usage_spike"
	EventStorageLimitWarning EventType = "storage_limit_warning"
	EventStorageMissingBackup EventType = "storage_missing_backup"
)

// Notification condition values a Job (or a system-level default) can set
// to gate dispatch by outcome (spec §4.8 per-job dispatch contract).
const (
	ConditionAlways      = "ALWAYS"
	ConditionSuccessOnly = "SUCCESS_ONLY"
	ConditionFailureOnly = "FAILURE_ONLY"
)

// Event carries everything a template needs to render a payload and every
// sender needs to deliver it, without either knowing about the other.
type Event struct {
	Type EventType

	JobID   *uuid.UUID
	JobName string

	Message string // human-readable detail: error string, destination name, etc.

	// UserEmail is set for account events (user_login, user_created) so that
	// email-type channels can apply their NotifyMode override (spec §4.8
	// "per-user mode").
	UserEmail string

	// ChannelIDs restricts dispatch to this explicit set of channels. Empty
	// means dispatch falls back to the global channel list.
	ChannelIDs []uuid.UUID

	// Condition gates dispatch against the payload's Success flag: ALWAYS
	// dispatches unconditionally, SUCCESS_ONLY/FAILURE_ONLY only dispatch
	// when the rendered payload's Success matches. Empty defaults to
	// ConditionAlways. System-level events bypass this gate entirely (spec
	// §7 "Integrity and Internal also emit a system_error notification
	// regardless of the job's notification condition").
	Condition string

	// Fields are rendered as the payload's structured field list.
	Fields []Field
}

// Field is one name/value pair attached to a rendered payload (e.g. "Job",
// "Destination", "Duration").
type Field struct {
	Name   string
	Value  string
	Inline bool
}
