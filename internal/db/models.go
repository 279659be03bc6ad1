package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// base contains the common fields shared by all models.
// ID uses UUID v7 (time-ordered) for efficient B-tree indexing and natural
// chronological ordering without a separate created_at sort. CreatedAt and
// UpdatedAt are managed automatically by GORM.
type base struct {
	ID        uuid.UUID `gorm:"type:text;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// BeforeCreate generates a new UUID v7 if the ID is not already set.
func (b *base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == (uuid.UUID{}) {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		b.ID = id
	}
	return nil
}

// softDelete extends base with a nullable DeletedAt field for soft deletion.
type softDelete struct {
	base
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// -----------------------------------------------------------------------------
// Sources
// -----------------------------------------------------------------------------

// Source is a database endpoint this orchestrator knows how to dump.
// Credentials are encrypted at rest; Config carries engine-specific JSON
// (e.g. which databases to include, SSL mode, SSH tunnel settings).
type Source struct {
	softDelete
	Name        string          `gorm:"not null"`
	Engine      string          `gorm:"not null"` // "postgres", "mysql", "mariadb", "mongo", "mssql"
	Host        string          `gorm:"not null"`
	Port        int             `gorm:"not null"`
	Database    string          `gorm:"not null;default:''"` // empty means "all databases" where the engine supports it
	Username    string          `gorm:"not null;default:''"`
	Password    EncryptedString `gorm:"type:text"`
	Config      string          `gorm:"type:text;default:'{}'"` // JSON: ssl_mode, ssh_tunnel, extra dump flags
	Enabled     bool            `gorm:"not null;default:true"`
}

// -----------------------------------------------------------------------------
// Destinations
// -----------------------------------------------------------------------------

// Destination is a storage target backup artifacts are uploaded to.
// Credentials are encrypted at rest; Config carries adapter-specific JSON
// (bucket/endpoint for S3, base path for local/SFTP/WebDAV, folder ID for
// Drive).
type Destination struct {
	softDelete
	Name        string          `gorm:"not null"`
	Type        string          `gorm:"not null"` // "local", "s3", "ftp", "webdav", "sftp", "gdrive"
	Credentials EncryptedString `gorm:"type:text"` // JSON, encrypted
	Config      string          `gorm:"type:text;default:'{}'"`
	Enabled     bool            `gorm:"not null;default:true"`
}

// -----------------------------------------------------------------------------
// Notification channels
// -----------------------------------------------------------------------------

// Channel is a configured notification destination (spec §4.8 channel set).
type Channel struct {
	softDelete
	Name       string          `gorm:"not null"`
	Type       string          `gorm:"not null"` // "email","discord","slack","telegram","teams","ntfy","gotify","twilio_sms","webhook"
	Config     string          `gorm:"type:text;default:'{}'"`     // non-sensitive settings (URL, chat ID, room)
	Secret     EncryptedString `gorm:"type:text"`                  // token/password/HMAC secret, encrypted
	NotifyMode string          `gorm:"not null;default:'also'"`    // "none","also","only" (spec §4.8)
	Enabled    bool            `gorm:"not null;default:true"`
}

// -----------------------------------------------------------------------------
// Encryption profiles
// -----------------------------------------------------------------------------

// EncryptionProfile holds an envelope-wrapped 32-byte data key used to
// encrypt backup artifacts for jobs that reference it (spec §3/§4.10).
type EncryptionProfile struct {
	softDelete
	Name       string          `gorm:"not null"`
	WrappedKey EncryptedString `gorm:"type:text;not null"` // master-key-wrapped 64-hex data key
}

// -----------------------------------------------------------------------------
// Jobs
// -----------------------------------------------------------------------------

// Job defines what to back up, where, how, and on what schedule.
// Destinations is populated by repository queries, not GORM associations —
// GORM cannot auto-resolve foreign keys against uuid.UUID primary keys.
type Job struct {
	softDelete
	Name              string    `gorm:"not null"`
	SourceID          uuid.UUID `gorm:"type:text;not null;index"`
	Schedule          string    `gorm:"not null"` // cron expression
	Enabled           bool      `gorm:"not null;default:true"`
	Compression       string    `gorm:"not null;default:'none'"` // "none","gzip","brotli"
	EncryptionProfile  *uuid.UUID `gorm:"type:text;index"`        // nil = unencrypted artifacts
	RetentionMode     string    `gorm:"not null;default:'NONE'"`  // "NONE","SIMPLE","SMART"
	RetentionSimpleN  int       `gorm:"not null;default:0"`       // keep last N, used when RetentionMode=SIMPLE
	RetentionDaily    int       `gorm:"not null;default:7"`       // GFS slots, used when RetentionMode=SMART
	RetentionWeekly   int       `gorm:"not null;default:4"`
	RetentionMonthly  int       `gorm:"not null;default:6"`
	RetentionYearly   int       `gorm:"not null;default:1"`
	Deadline          int       `gorm:"not null;default:3600"` // seconds, 0 = no deadline
	LastRunAt         *time.Time
	NextRunAt         *time.Time

	// NotificationChannelIDs is a comma-separated list of channel UUIDs this
	// job's events should dispatch to. Empty means "use the global channel
	// list" (system settings key notification.global_channels).
	NotificationChannelIDs string `gorm:"not null;default:''"`
	// NotificationCondition gates dispatch by outcome: ALWAYS, SUCCESS_ONLY,
	// or FAILURE_ONLY.
	NotificationCondition string `gorm:"not null;default:'ALWAYS'"`

	Destinations []JobDestination `gorm:"-"`
}

// JobDestination is the join table between Job and Destination, ordered by
// Priority (lower tried first) — enables 3-2-1 style fan-out.
type JobDestination struct {
	base
	JobID         uuid.UUID `gorm:"type:text;not null;index"`
	DestinationID uuid.UUID `gorm:"type:text;not null;index"`
	Priority      int       `gorm:"not null;default:0"`
}

// -----------------------------------------------------------------------------
// Executions
// -----------------------------------------------------------------------------

// Execution records a single run of a Job, whether fired by the scheduler or
// triggered via the Job Trigger API (spec §4.7, §6).
// Logs and per-destination results are loaded via repository queries.
type Execution struct {
	base
	JobID     uuid.UUID  `gorm:"type:text;not null;index"`
	SourceID  uuid.UUID  `gorm:"type:text;not null;index"`
	Kind      string     `gorm:"not null;default:'backup'"`   // "backup","restore"
	Status    string     `gorm:"not null;default:'pending'"` // "pending","running","succeeded","failed","partial"
	Trigger   string     `gorm:"not null;default:'schedule'"` // "schedule","manual","api"
	StartedAt *time.Time
	EndedAt   *time.Time
	Error     string `gorm:"type:text;default:''"`
	LogLines  string `gorm:"type:text;default:'[]'"` // JSON array of {ts,level,message}, bulk-written at completion

	Destinations []ExecutionDestination `gorm:"-"`
}

// ExecutionDestination tracks the per-destination outcome of an execution,
// including the backup artifact's sidecar metadata once uploaded.
type ExecutionDestination struct {
	base
	ExecutionID   uuid.UUID  `gorm:"type:text;not null;index"`
	DestinationID uuid.UUID  `gorm:"type:text;not null;index"`
	Status        string     `gorm:"not null;default:'pending'"`
	ArtifactKey   string     `gorm:"default:''"` // storage key/path of the uploaded artifact
	SizeBytes     int64      `gorm:"default:0"`
	Checksum      string     `gorm:"default:''"` // sha256 hex of the plaintext dump, computed by the runner before compression/encryption
	StartedAt     *time.Time
	EndedAt       *time.Time
	Error         string `gorm:"type:text;default:''"`
}

// -----------------------------------------------------------------------------
// Storage snapshots
// -----------------------------------------------------------------------------

// StorageSnapshot is a point-in-time usage sample for a destination, taken by
// the alert monitor (spec §4.9) to detect spikes, limit breaches, and missing
// backups.
type StorageSnapshot struct {
	base
	DestinationID uuid.UUID `gorm:"type:text;not null;index"`
	ArtifactCount int64     `gorm:"default:0"`
	TotalBytes    int64     `gorm:"default:0"`
	SampledAt     time.Time `gorm:"not null;index"`
}

// AlertState is the de-duplication record the alert monitor persists per
// destination per alert kind, so a breach that is still active does not
// re-notify on every poll (spec §4.9, 24h cooldown).
type AlertState struct {
	base
	DestinationID  uuid.UUID `gorm:"type:text;not null;index"`
	Kind           string    `gorm:"not null"` // "spike","limit","missing_backup"
	Active         bool      `gorm:"not null;default:false"`
	LastNotifiedAt *time.Time
}

// -----------------------------------------------------------------------------
// Notification logs
// -----------------------------------------------------------------------------

// NotificationLog records the outcome of one channel delivery attempt for a
// dispatched event (spec §4.8): one row per (event, channel) pair, regardless
// of whether delivery succeeded.
type NotificationLog struct {
	base
	ChannelID uuid.UUID `gorm:"type:text;not null;index"`
	EventType string    `gorm:"not null;index"`
	Status    string    `gorm:"not null"` // "success","failed"
	Error     string    `gorm:"not null;default:''"`
	Payload   string    `gorm:"type:text;not null;default:'{}'"`
}

// -----------------------------------------------------------------------------
// Settings
// -----------------------------------------------------------------------------

// Setting is a generic key-value configuration entry (rate limit thresholds,
// alert monitor thresholds, default deadlines). Sensitive values are
// encrypted at the application layer via EncryptedString before being
// persisted.
type Setting struct {
	Key       string          `gorm:"primaryKey"`
	Value     EncryptedString `gorm:"type:text;not null"`
	UpdatedAt time.Time       `gorm:"not null;autoUpdateTime"`
}

// -----------------------------------------------------------------------------
// API keys
// -----------------------------------------------------------------------------

// APIKey is a capability-bearing credential for the Job Trigger API
// (spec §6). Only the SHA-256 hash of the raw key is stored.
type APIKey struct {
	base
	Name         string `gorm:"not null"`
	KeyHash      string `gorm:"not null;uniqueIndex"` // sha256 hex of the raw key
	Capabilities string `gorm:"not null"`              // comma-separated: "jobs:execute","jobs:read"
	RevokedAt    *time.Time
	LastUsedAt   *time.Time
}
