// Package runner implements the backup and restore pipelines (spec §4.5):
// a linear state machine walking resolve → dump → transform → upload →
// sidecar → retention → finalize: a sequence of closures over a job state
// struct, one in-process database/storage/codec invocation per stage
// rather than one restic call per destination.
package runner

import (
	"time"

	"github.com/google/uuid"

	"github.com/skyfay/dbackup/internal/db"
)

// LogLevel mirrors the level field stored in Execution.LogLines.
type LogLevel string

const (
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// LogEntry is one line of the execution's log, serialized into
// db.Execution.LogLines at Finalize.
type LogEntry struct {
	Timestamp time.Time `json:"ts"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
}

// Stage names surfaced via Progress, matching spec §4.5's named stages.
type Stage string

const (
	StageResolve   Stage = "resolve"
	StageDump      Stage = "dump"
	StageTransform Stage = "transform"
	StageUpload    Stage = "upload"
	StageSidecar   Stage = "sidecar"
	StageRetention Stage = "retention"
	StageFinalize  Stage = "finalize"
)

// stageWeight apportions the overall percent-done across stages (spec §4.5
// "Progress... coarse weights (dump 50, upload 40, retention 5, finalize 5
// by default)"). Resolve, transform, and sidecar are folded into their
// neighbor's budget since they are comparatively instantaneous.
var stageWeight = map[Stage]float64{
	StageResolve:   0,
	StageDump:      50,
	StageTransform: 0,
	StageUpload:    40,
	StageSidecar:   0,
	StageRetention: 5,
	StageFinalize:  5,
}

// ProgressFunc receives the overall 0-100 percent complete and the stage
// that produced it.
type ProgressFunc func(percent float64, stage Stage)

// runContext carries per-run mutable state threaded through every stage
// function, mirroring spec §4.5's RunnerContext shape.
type runContext struct {
	jobID     uuid.UUID
	job       *db.Job
	jobDests  []db.JobDestination
	execution *db.Execution

	logs     []LogEntry
	progress ProgressFunc

	tempPath   string
	remoteBase string // "backups/{sanitized-job-name}"

	metadata sidecarMetadata

	status    string
	startedAt time.Time
}

func (c *runContext) log(level LogLevel, msg string) {
	c.logs = append(c.logs, LogEntry{Timestamp: time.Now().UTC(), Level: level, Message: msg})
}

func (c *runContext) reportProgress(stage Stage, stageFraction float64) {
	if c.progress == nil {
		return
	}
	var done float64
	order := []Stage{StageResolve, StageDump, StageTransform, StageUpload, StageSidecar, StageRetention, StageFinalize}
	for _, s := range order {
		if s == stage {
			done += stageWeight[s] * stageFraction
			break
		}
		done += stageWeight[s]
	}
	c.progress(done, stage)
}

// sidecarMetadata is the JSON document written alongside each artifact, one
// per remote object at `remotePath + ".meta.json"`.
type sidecarMetadata struct {
	JobName     string          `json:"jobName"`
	SourceName  string          `json:"sourceName"`
	SourceType  string          `json:"sourceType"`
	Databases   databasesMeta   `json:"databases"`
	Compression string          `json:"compression"`
	Encryption  *encryptionMeta `json:"encryption,omitempty"`
	Locked      bool            `json:"locked"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// databasesMeta describes the scope of a dump. Count is either the exact
// number of databases captured or the literal "All" when the job targets an
// entire server.
type databasesMeta struct {
	Count any    `json:"count"` // number or "All"
	Label string `json:"label"`
}

// encryptionMeta records the material a restore needs to authenticate and
// decrypt the artifact: IV and AuthTag are hex-encoded, captured once the
// AES-256-GCM seal finalizes, never folded into the ciphertext stream.
type encryptionMeta struct {
	ProfileID    string `json:"profileId"`
	IV           string `json:"iv"`
	AuthTag      string `json:"authTag"`
	OriginalName string `json:"originalName"`
}
