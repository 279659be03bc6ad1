package storage

import (
	"encoding/json"
	"fmt"

	"github.com/skyfay/dbackup/internal/apperr"
)

// Config carries the resolved (decrypted) destination config and
// credentials JSON blobs. Building an Adapter never touches the database —
// callers resolve the db.Destination row and pass its fields in.
type Config struct {
	Type        string
	ConfigJSON  string
	Credentials string
}

// builderFunc constructs an Adapter from the raw config/credentials JSON of
// a single destination.
type builderFunc func(cfg Config) (Adapter, error)

// registry maps destination Type strings to adapter constructors. Built as a
// static map rather than discovered dynamically — spec §9 notes the set of
// backends is small and fixed, so a static registry is simpler than a
// plugin-loading mechanism.
var registry = map[string]builderFunc{
	"local":  buildLocal,
	"s3":     buildS3,
	"ftp":    buildFTP,
	"webdav": buildWebDAV,
	"sftp":   buildSFTP,
	"gdrive": buildGDrive,
}

// New builds an Adapter for the given destination type.
func New(cfg Config) (Adapter, error) {
	builder, ok := registry[cfg.Type]
	if !ok {
		return nil, apperr.New(apperr.KindConfig, "storage.New", fmt.Sprintf("unknown destination type %q", cfg.Type))
	}
	return builder(cfg)
}

func unmarshalConfig(raw string, dst any) error {
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return apperr.Wrap(apperr.KindConfig, "storage.unmarshalConfig", "invalid config JSON", err)
	}
	return nil
}
