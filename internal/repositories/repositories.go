// Package repositories implements the persistence layer for every entity in
// the orchestrator's data model. One interface per entity, one GORM-backed
// implementation per interface, sharing a common ListOptions type and
// sentinel errors rather than typed not-found errors per entity.
package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/skyfay/dbackup/internal/db"
)

// ListOptions contains common pagination options for list queries.
type ListOptions struct {
	Limit  int
	Offset int
}

// -----------------------------------------------------------------------------
// SourceRepository
// -----------------------------------------------------------------------------

type SourceRepository interface {
	Create(ctx context.Context, source *db.Source) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.Source, error)
	Update(ctx context.Context, source *db.Source) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, opts ListOptions) ([]db.Source, int64, error)
}

// -----------------------------------------------------------------------------
// DestinationRepository
// -----------------------------------------------------------------------------

type DestinationRepository interface {
	Create(ctx context.Context, destination *db.Destination) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.Destination, error)
	Update(ctx context.Context, destination *db.Destination) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, opts ListOptions) ([]db.Destination, int64, error)
	ListEnabled(ctx context.Context) ([]db.Destination, error)
}

// -----------------------------------------------------------------------------
// ChannelRepository
// -----------------------------------------------------------------------------

type ChannelRepository interface {
	Create(ctx context.Context, channel *db.Channel) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.Channel, error)
	Update(ctx context.Context, channel *db.Channel) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, opts ListOptions) ([]db.Channel, int64, error)
	ListEnabled(ctx context.Context) ([]db.Channel, error)
}

// -----------------------------------------------------------------------------
// EncryptionProfileRepository
// -----------------------------------------------------------------------------

type EncryptionProfileRepository interface {
	Create(ctx context.Context, profile *db.EncryptionProfile) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.EncryptionProfile, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, opts ListOptions) ([]db.EncryptionProfile, int64, error)
}

// -----------------------------------------------------------------------------
// JobRepository
// -----------------------------------------------------------------------------

type JobRepository interface {
	Create(ctx context.Context, job *db.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.Job, error)

	// GetByIDWithDestinations retrieves a job together with its JobDestination
	// records, loaded via a separate query because GORM cannot auto-resolve
	// foreign keys against uuid.UUID primary keys (see db/models.go).
	GetByIDWithDestinations(ctx context.Context, id uuid.UUID) (*db.Job, []db.JobDestination, error)

	Update(ctx context.Context, job *db.Job) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, opts ListOptions) ([]db.Job, int64, error)
	ListEnabled(ctx context.Context) ([]db.Job, error)
	UpdateSchedule(ctx context.Context, id uuid.UUID, lastRunAt, nextRunAt time.Time) error

	AddDestination(ctx context.Context, jd *db.JobDestination) error
	RemoveDestination(ctx context.Context, jobID, destinationID uuid.UUID) error
}

// -----------------------------------------------------------------------------
// ExecutionRepository
// -----------------------------------------------------------------------------

type ExecutionRepository interface {
	Create(ctx context.Context, execution *db.Execution) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.Execution, error)

	// GetByIDWithDestinations mirrors JobRepository.GetByIDWithDestinations.
	GetByIDWithDestinations(ctx context.Context, id uuid.UUID) (*db.Execution, []db.ExecutionDestination, error)

	Update(ctx context.Context, execution *db.Execution) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, endedAt *time.Time, errMsg string) error
	List(ctx context.Context, opts ListOptions) ([]db.Execution, int64, error)
	ListByJob(ctx context.Context, jobID uuid.UUID, opts ListOptions) ([]db.Execution, int64, error)

	CreateDestination(ctx context.Context, ed *db.ExecutionDestination) error
	ListDestinationsByExecution(ctx context.Context, executionID uuid.UUID) ([]db.ExecutionDestination, error)
	UpdateDestination(ctx context.Context, ed *db.ExecutionDestination) error
}

// -----------------------------------------------------------------------------
// StorageSnapshotRepository
// -----------------------------------------------------------------------------

type StorageSnapshotRepository interface {
	Create(ctx context.Context, snapshot *db.StorageSnapshot) error
	ListByDestination(ctx context.Context, destinationID uuid.UUID, limit int) ([]db.StorageSnapshot, error)
	LatestByDestination(ctx context.Context, destinationID uuid.UUID) (*db.StorageSnapshot, error)
	DeleteOlderThan(ctx context.Context, t time.Time) error
}

// -----------------------------------------------------------------------------
// AlertStateRepository
// -----------------------------------------------------------------------------

type AlertStateRepository interface {
	GetOrCreate(ctx context.Context, destinationID uuid.UUID, kind string) (*db.AlertState, error)
	Update(ctx context.Context, state *db.AlertState) error
}

// -----------------------------------------------------------------------------
// NotificationLogRepository
// -----------------------------------------------------------------------------

type NotificationLogRepository interface {
	Create(ctx context.Context, log *db.NotificationLog) error
	ListByChannel(ctx context.Context, channelID uuid.UUID, opts ListOptions) ([]db.NotificationLog, int64, error)
}

// -----------------------------------------------------------------------------
// SettingsRepository
// -----------------------------------------------------------------------------

type SettingsRepository interface {
	Get(ctx context.Context, key string) (*db.Setting, error)
	Set(ctx context.Context, key string, value db.EncryptedString) error
	GetMany(ctx context.Context, prefix string) ([]db.Setting, error)
	Delete(ctx context.Context, key string) error
}

// -----------------------------------------------------------------------------
// APIKeyRepository
// -----------------------------------------------------------------------------

type APIKeyRepository interface {
	Create(ctx context.Context, key *db.APIKey) error
	GetByHash(ctx context.Context, hash string) (*db.APIKey, error)
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
	Revoke(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, opts ListOptions) ([]db.APIKey, int64, error)
}
