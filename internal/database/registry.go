package database

import (
	"fmt"

	"github.com/skyfay/dbackup/internal/apperr"
)

// New builds an Adapter for the given engine. Built as a direct switch
// rather than a map-of-constructors like the storage registry, since every
// dialect here also needs engine-specific Config validation before
// construction (spec §4.3 "dialect layer").
func New(cfg Config) (Adapter, error) {
	switch cfg.Engine {
	case EnginePostgres:
		return newPostgresAdapter(cfg), nil
	case EngineMySQL, EngineMariaDB:
		return newMySQLAdapter(cfg), nil
	case EngineMongoDB:
		return newMongoAdapter(cfg), nil
	case EngineMSSQL:
		return newMSSQLAdapter(cfg), nil
	default:
		return nil, apperr.New(apperr.KindConfig, "database.New", fmt.Sprintf("unknown engine %q", cfg.Engine))
	}
}
