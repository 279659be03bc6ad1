// Package database implements the database adapter interface (spec §4.3):
// one dialect per supported engine, each pairing an external dump/restore
// subprocess with a native driver connection used for the cheap test and
// listDatabases operations.
package database

import (
	"context"
	"io"
)

// Engine identifies a source database family.
type Engine string

const (
	EnginePostgres Engine = "postgres"
	EngineMySQL    Engine = "mysql"
	EngineMariaDB  Engine = "mariadb"
	EngineMongoDB  Engine = "mongodb"
	EngineMSSQL    Engine = "mssql"
)

// Config carries the resolved (decrypted) connection parameters for a single
// source. Building an Adapter never touches the database row — callers
// resolve the db.Source fields and pass them in directly.
type Config struct {
	Engine   Engine
	Host     string
	Port     int
	Database string // empty means "all databases"
	Username string
	Password string
	Extra    map[string]string // dialect-specific options, e.g. ssh host for mssql
}

// ProgressFunc is called with a 0-100 sub-progress value as a dump or
// restore subprocess reports it. May be nil.
type ProgressFunc func(percent float64)

// LogFunc receives one line of subprocess stderr/stdout at a time, for
// forwarding into the execution log. May be nil.
type LogFunc func(line string)

// DumpResult describes the outcome of a successful Dump.
type DumpResult struct {
	BytesWritten int64
	// DatabaseLabel is a human label for what was dumped: "Single DB",
	// "N DBs", "All DBs", or "Unknown".
	DatabaseLabel string
	// Extension is appended to the caller's temp path if the adapter
	// produced a different container format (e.g. ".dump", ".archive.gz").
	Extension string
}

// RestoreTarget maps one database found in a dump stream to a destination
// name and whether it should be restored at all.
type RestoreTarget struct {
	TargetName string
	Selected   bool
}

// PrivilegedAuth carries optional elevated credentials used only during
// restore to create missing target databases.
type PrivilegedAuth struct {
	Username string
	Password string
}

// Adapter is implemented by every supported database engine.
type Adapter interface {
	// Test verifies connectivity and returns the server version string.
	Test(ctx context.Context) (version string, err error)

	// ListDatabases returns every database name visible to Config's
	// credentials.
	ListDatabases(ctx context.Context) ([]string, error)

	// Dump writes a logical dump to dst, streaming as it goes.
	Dump(ctx context.Context, dst io.Writer, progress ProgressFunc, log LogFunc) (DumpResult, error)

	// Restore reads a logical dump from src and applies it. mapping is
	// nil for single-database restores where Config.Database already
	// names the target. privileged is nil unless the caller wants
	// missing target databases created automatically.
	Restore(ctx context.Context, src io.Reader, mapping map[string]RestoreTarget, privileged *PrivilegedAuth, progress ProgressFunc, log LogFunc) error
}
