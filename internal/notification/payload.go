package notification

import "fmt"

// Payload is the adapter-agnostic result of rendering an Event (spec §4.8
// "a pure function event -> payload"). Each sender maps Payload onto its own
// wire format (chat embed, HTML email, SMS body, generic JSON).
type Payload struct {
	Title   string
	Message string
	Success bool
	Color   string // hex, e.g. "#2ecc71" for success, "#e74c3c" for failure
	Badge   string // short status word shown by chat adapters, e.g. "SUCCESS"
	Fields  []Field
}

const (
	colorSuccess = "#2ecc71"
	colorFailure = "#e74c3c"
	colorWarning = "#f39c12"
	colorInfo    = "#3498db"
)

// render maps an Event onto its Payload. Title and Message wording is fixed
// per event type; Fields and Message detail come from the event itself.
func render(ev Event) Payload {
	switch ev.Type {
	case EventBackupSuccess:
		return Payload{
			Title: fmt.Sprintf("Backup succeeded: %s", ev.JobName), Message: ev.Message,
			Success: true, Color: colorSuccess, Badge: "SUCCESS", Fields: ev.Fields,
		}
	case EventBackupFailure:
		return Payload{
			Title: fmt.Sprintf("Backup failed: %s", ev.JobName), Message: ev.Message,
			Success: false, Color: colorFailure, Badge: "FAILED", Fields: ev.Fields,
		}
	case EventRestoreComplete:
		return Payload{
			Title: fmt.Sprintf("Restore completed: %s", ev.JobName), Message: ev.Message,
			Success: true, Color: colorSuccess, Badge: "SUCCESS", Fields: ev.Fields,
		}
	case EventRestoreFailure:
		return Payload{
			Title: fmt.Sprintf("Restore failed: %s", ev.JobName), Message: ev.Message,
			Success: false, Color: colorFailure, Badge: "FAILED", Fields: ev.Fields,
		}
	case EventConfigBackup:
		return Payload{
			Title: "Configuration backup completed", Message: ev.Message,
			Success: true, Color: colorInfo, Badge: "INFO", Fields: ev.Fields,
		}
	case EventSystemError:
		return Payload{
			Title: "System error", Message: ev.Message,
			Success: false, Color: colorFailure, Badge: "ERROR", Fields: ev.Fields,
		}
	case EventUserLogin:
		return Payload{
			Title: "New login", Message: ev.Message,
			Success: true, Color: colorInfo, Badge: "INFO", Fields: ev.Fields,
		}
	case EventUserCreated:
		return Payload{
			Title: "Account created", Message: ev.Message,
			Success: true, Color: colorInfo, Badge: "INFO", Fields: ev.Fields,
		}
	case EventStorageUsageSpike:
		return Payload{
			Title: "Storage usage spike detected", Message: ev.Message,
			Success: false, Color: colorWarning, Badge: "WARNING", Fields: ev.Fields,
		}
	case EventStorageLimitWarning:
		return Payload{
			Title: "Storage limit approaching", Message: ev.Message,
			Success: false, Color: colorWarning, Badge: "WARNING", Fields: ev.Fields,
		}
	case EventStorageMissingBackup:
		return Payload{
			Title: "Expected backup did not run", Message: ev.Message,
			Success: false, Color: colorWarning, Badge: "WARNING", Fields: ev.Fields,
		}
	default:
		return Payload{Title: string(ev.Type), Message: ev.Message, Color: colorInfo, Badge: "INFO", Fields: ev.Fields}
	}
}
