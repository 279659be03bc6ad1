package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skyfay/dbackup/internal/db"
	"github.com/skyfay/dbackup/internal/metrics"
	"github.com/skyfay/dbackup/internal/repositories"
)

// globalChannelsSettingKey is the Settings row backing the system-wide
// channel list used by job-less events and by jobs that set no explicit
// channel list of their own (spec.md §4.8 "for a system event, it is the
// global list from system settings, with per-event overrides").
const globalChannelsSettingKey = "notification.global_channels"

// Service is the single entry point for dispatching events to notification
// channels. Callers (runner, scheduler, alert monitor, API handlers) use the
// typed Notify* methods rather than constructing events manually, so event
// content and channel selection stay consistent across the codebase.
type Service interface {
	// NotifyBackupSuccess and NotifyBackupFailure take the job's notification
	// channel list (nil/empty falls back to the global list) and condition
	// (empty defaults to ALWAYS) so dispatch honors per-job configuration.
	NotifyBackupSuccess(ctx context.Context, jobID uuid.UUID, jobName string, channelIDs []uuid.UUID, condition string, fields []Field) error
	NotifyBackupFailure(ctx context.Context, jobID uuid.UUID, jobName, errMsg string, channelIDs []uuid.UUID, condition string, fields []Field) error
	NotifyRestoreComplete(ctx context.Context, jobName string, fields []Field) error
	NotifyRestoreFailure(ctx context.Context, jobName, errMsg string, fields []Field) error
	NotifyConfigBackup(ctx context.Context, message string) error
	NotifySystemError(ctx context.Context, message string) error
	NotifyUserLogin(ctx context.Context, userEmail string) error
	NotifyUserCreated(ctx context.Context, userEmail string) error
	NotifyStorageUsageSpike(ctx context.Context, destinationName string, deltaPercent float64) error
	NotifyStorageLimitWarning(ctx context.Context, destinationName string, usedPercent float64) error
	NotifyStorageMissingBackup(ctx context.Context, destinationName string, hoursSince float64) error
}

type service struct {
	channels repositories.ChannelRepository
	logs     repositories.NotificationLogRepository
	settings repositories.SettingsRepository
	logger   *zap.Logger
}

// Config holds the dependencies required to build a notification Service.
type Config struct {
	Channels repositories.ChannelRepository
	Logs     repositories.NotificationLogRepository
	Settings repositories.SettingsRepository
	Logger   *zap.Logger
}

// NewService creates a new notification Service.
func NewService(cfg Config) Service {
	return &service{
		channels: cfg.Channels,
		logs:     cfg.Logs,
		settings: cfg.Settings,
		logger:   cfg.Logger.Named("notification"),
	}
}

// -----------------------------------------------------------------------------
// Typed methods
// -----------------------------------------------------------------------------

func (s *service) NotifyBackupSuccess(ctx context.Context, jobID uuid.UUID, jobName string, channelIDs []uuid.UUID, condition string, fields []Field) error {
	return s.dispatch(ctx, Event{Type: EventBackupSuccess, JobID: &jobID, JobName: jobName, Message: "Backup completed successfully.", ChannelIDs: channelIDs, Condition: condition, Fields: fields})
}

func (s *service) NotifyBackupFailure(ctx context.Context, jobID uuid.UUID, jobName, errMsg string, channelIDs []uuid.UUID, condition string, fields []Field) error {
	return s.dispatch(ctx, Event{Type: EventBackupFailure, JobID: &jobID, JobName: jobName, Message: errMsg, ChannelIDs: channelIDs, Condition: condition, Fields: fields})
}

func (s *service) NotifyRestoreComplete(ctx context.Context, jobName string, fields []Field) error {
	return s.dispatch(ctx, Event{Type: EventRestoreComplete, JobName: jobName, Message: "Restore completed successfully.", Fields: fields})
}

func (s *service) NotifyRestoreFailure(ctx context.Context, jobName, errMsg string, fields []Field) error {
	return s.dispatch(ctx, Event{Type: EventRestoreFailure, JobName: jobName, Message: errMsg, Fields: fields})
}

func (s *service) NotifyConfigBackup(ctx context.Context, message string) error {
	return s.dispatch(ctx, Event{Type: EventConfigBackup, Message: message})
}

func (s *service) NotifySystemError(ctx context.Context, message string) error {
	return s.dispatch(ctx, Event{Type: EventSystemError, Message: message})
}

func (s *service) NotifyUserLogin(ctx context.Context, userEmail string) error {
	return s.dispatch(ctx, Event{Type: EventUserLogin, UserEmail: userEmail, Message: fmt.Sprintf("%s signed in.", userEmail)})
}

func (s *service) NotifyUserCreated(ctx context.Context, userEmail string) error {
	return s.dispatch(ctx, Event{Type: EventUserCreated, UserEmail: userEmail, Message: fmt.Sprintf("Account %s was created.", userEmail)})
}

func (s *service) NotifyStorageUsageSpike(ctx context.Context, destinationName string, deltaPercent float64) error {
	return s.dispatch(ctx, Event{
		Type:    EventStorageUsageSpike,
		Message: fmt.Sprintf("Destination %q grew %.1f%% since the last snapshot.", destinationName, deltaPercent),
		Fields:  []Field{{Name: "Destination", Value: destinationName}, {Name: "Delta", Value: fmt.Sprintf("%.1f%%", deltaPercent)}},
	})
}

func (s *service) NotifyStorageLimitWarning(ctx context.Context, destinationName string, usedPercent float64) error {
	return s.dispatch(ctx, Event{
		Type:    EventStorageLimitWarning,
		Message: fmt.Sprintf("Destination %q is at %.1f%% of its configured limit.", destinationName, usedPercent),
		Fields:  []Field{{Name: "Destination", Value: destinationName}, {Name: "Used", Value: fmt.Sprintf("%.1f%%", usedPercent)}},
	})
}

func (s *service) NotifyStorageMissingBackup(ctx context.Context, destinationName string, hoursSince float64) error {
	return s.dispatch(ctx, Event{
		Type:    EventStorageMissingBackup,
		Message: fmt.Sprintf("Destination %q has not received a new artifact in %.1f hours.", destinationName, hoursSince),
		Fields:  []Field{{Name: "Destination", Value: destinationName}, {Name: "Hours since", Value: fmt.Sprintf("%.1f", hoursSince)}},
	})
}

// -----------------------------------------------------------------------------
// Internal dispatch
// -----------------------------------------------------------------------------

// dispatch renders ev once, resolves the channel set (the event's own
// ChannelIDs if set, else the global system-settings list, else every
// enabled channel), applies the event's condition gate, and fans out to
// whatever survives. Delivery failures are logged and recorded in a
// NotificationLog row but never propagated — notification delivery must
// never fail the caller's operation (spec §4.8 "failure policy").
func (s *service) dispatch(ctx context.Context, ev Event) error {
	payload := render(ev)

	if !conditionAllows(ev.Condition, payload.Success) {
		return nil
	}

	channels, err := s.resolveChannels(ctx, ev.ChannelIDs)
	if err != nil {
		return fmt.Errorf("notification: failed to resolve channels: %w", err)
	}
	if len(channels) == 0 {
		return nil
	}

	for i := range channels {
		ch := &channels[i]
		if ch.Type == "email" && ch.NotifyMode == "none" && ev.UserEmail != "" {
			continue
		}

		err := s.sendOne(ctx, ch, payload, ev)
		status := "success"
		errMsg := ""
		if err != nil {
			status = "failed"
			errMsg = err.Error()
			s.logger.Warn("notification delivery failed",
				zap.String("channel_id", ch.ID.String()),
				zap.String("channel_type", ch.Type),
				zap.String("event_type", string(ev.Type)),
				zap.Error(err),
			)
		}
		s.recordLog(ctx, ch.ID, ev.Type, status, errMsg, payload)
		metrics.NotificationsTotal.WithLabelValues(ch.Type, status).Inc()
	}

	return nil
}

// conditionAllows reports whether condition permits dispatch given the
// rendered payload's outcome. Empty condition defaults to ALWAYS.
func conditionAllows(condition string, success bool) bool {
	switch condition {
	case "", ConditionAlways:
		return true
	case ConditionSuccessOnly:
		return success
	case ConditionFailureOnly:
		return !success
	default:
		return true
	}
}

// resolveChannels returns the channels an event should dispatch to: want, if
// non-empty, restricts to those IDs (filtered against the enabled set);
// otherwise the global list from system settings; otherwise every enabled
// channel.
func (s *service) resolveChannels(ctx context.Context, want []uuid.UUID) ([]db.Channel, error) {
	enabled, err := s.channels.ListEnabled(ctx)
	if err != nil {
		return nil, err
	}

	if len(want) == 0 {
		want, err = s.globalChannelIDs(ctx)
		if err != nil {
			return nil, err
		}
	}
	if len(want) == 0 {
		return enabled, nil
	}

	wantSet := make(map[uuid.UUID]bool, len(want))
	for _, id := range want {
		wantSet[id] = true
	}
	var out []db.Channel
	for _, ch := range enabled {
		if wantSet[ch.ID] {
			out = append(out, ch)
		}
	}
	return out, nil
}

// globalChannelIDs reads the comma-separated channel UUID list from the
// notification.global_channels setting. A missing or unreadable setting
// means "no global restriction" (nil, nil), not an error.
func (s *service) globalChannelIDs(ctx context.Context) ([]uuid.UUID, error) {
	if s.settings == nil {
		return nil, nil
	}
	setting, err := s.settings.Get(ctx, globalChannelsSettingKey)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	raw := strings.TrimSpace(string(setting.Value))
	if raw == "" {
		return nil, nil
	}
	var ids []uuid.UUID
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := uuid.Parse(part)
		if err != nil {
			s.logger.Warn("ignoring malformed channel id in global channel list", zap.String("value", part))
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *service) sendOne(ctx context.Context, ch *db.Channel, p Payload, ev Event) error {
	switch ch.Type {
	case "email":
		return sendEmail(ctx, ch, p, ev)
	case "discord", "slack", "teams", "webhook":
		return sendChat(ctx, ch, p)
	case "telegram":
		return sendTelegram(ctx, ch, p)
	case "ntfy":
		return sendNtfy(ctx, ch, p)
	case "gotify":
		return sendGotify(ctx, ch, p)
	case "twilio_sms":
		return sendTwilioSMS(ctx, ch, p)
	default:
		return fmt.Errorf("%w: unknown channel type %q", ErrInvalidConfig, ch.Type)
	}
}

func (s *service) recordLog(ctx context.Context, channelID uuid.UUID, evType EventType, status, errMsg string, p Payload) {
	payloadJSON, err := json.Marshal(p)
	if err != nil {
		s.logger.Error("failed to marshal notification payload for log", zap.Error(err))
		payloadJSON = []byte("{}")
	}

	log := &db.NotificationLog{
		ChannelID: channelID,
		EventType: string(evType),
		Status:    status,
		Error:     errMsg,
		Payload:   string(payloadJSON),
	}
	if err := s.logs.Create(ctx, log); err != nil {
		s.logger.Error("failed to persist notification log", zap.Error(err))
	}
}
