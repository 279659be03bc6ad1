package runner

import (
	"encoding/json"

	"github.com/skyfay/dbackup/internal/database"
	"github.com/skyfay/dbackup/internal/db"
	"github.com/skyfay/dbackup/internal/storage"
)

// toDatabaseEngine maps a Source.Engine column value to the database
// package's Engine constant. Both "mongo" and "mongodb" are accepted since
// the two names appear interchangeably across the corpus this orchestrator
// was modeled on.
func toDatabaseEngine(s string) database.Engine {
	switch s {
	case "postgres", "postgresql":
		return database.EnginePostgres
	case "mysql":
		return database.EngineMySQL
	case "mariadb":
		return database.EngineMariaDB
	case "mongo", "mongodb":
		return database.EngineMongoDB
	case "mssql", "sqlserver":
		return database.EngineMSSQL
	default:
		return database.Engine(s)
	}
}

// stringConfig unmarshals a JSON config blob into a flat string map,
// silently dropping any non-string values. Source/destination Config
// columns are small, mostly-string option bags (ssl mode, ssh tunnel
// settings, bucket names); this tolerates the rare non-string field rather
// than failing adapter construction outright.
func stringConfig(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	var generic map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &generic); err != nil {
		return nil
	}
	out := make(map[string]string, len(generic))
	for k, v := range generic {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// buildDatabaseAdapter resolves a source row (already decrypted by GORM's
// EncryptedString.Scan) into a database.Adapter.
func buildDatabaseAdapter(source *db.Source) (database.Adapter, error) {
	cfg := database.Config{
		Engine:   toDatabaseEngine(source.Engine),
		Host:     source.Host,
		Port:     source.Port,
		Database: source.Database,
		Username: source.Username,
		Password: string(source.Password),
		Extra:    stringConfig(source.Config),
	}
	return database.New(cfg)
}

// buildStorageAdapter resolves a destination row (already decrypted) into a
// storage.Adapter.
func buildStorageAdapter(dest *db.Destination) (storage.Adapter, error) {
	return storage.New(storage.Config{
		Type:        dest.Type,
		ConfigJSON:  dest.Config,
		Credentials: string(dest.Credentials),
	})
}
