// Package main implements a one-shot CLI that issues API keys for the Job
// Trigger API (spec §6). It lives alongside the daemon so it can reach the
// same database and secret store directly, without needing the daemon to be
// running or exposing a key-management HTTP endpoint.
//
// Usage:
//
//	dbkey issue --name "ci-pipeline" --capability jobs:execute --capability jobs:read
//	dbkey revoke --id <uuid>
//
// Environment variables:
//
//	DBACKUP_DB_DRIVER   sqlite or postgres (default: sqlite)
//	DBACKUP_DB_DSN      SQLite file path or Postgres DSN (default: ./dbackup.db)
//	DBACKUP_SECRET_KEY  Master key — must match the value used by dbackupd
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/skyfay/dbackup/internal/apikey"
	"github.com/skyfay/dbackup/internal/db"
	"github.com/skyfay/dbackup/internal/repositories"
	"github.com/skyfay/dbackup/internal/secret"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dbkey",
		Short: "Issue and revoke dbackupd Job Trigger API keys",
	}
	root.AddCommand(newIssueCmd())
	root.AddCommand(newRevokeCmd())
	return root
}

func newIssueCmd() *cobra.Command {
	var name string
	var capStrings []string

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a new API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			caps, err := parseCapabilities(capStrings)
			if err != nil {
				return err
			}

			mgr, cleanup, err := buildManager()
			if err != nil {
				return err
			}
			defer cleanup()

			raw, record, err := mgr.Issue(context.Background(), name, caps)
			if err != nil {
				return fmt.Errorf("issue key: %w", err)
			}

			fmt.Printf("Key issued — store it now, it cannot be shown again.\n\n")
			fmt.Printf("  ID:           %s\n", record.ID)
			fmt.Printf("  Name:         %s\n", record.Name)
			fmt.Printf("  Capabilities: %s\n", record.Capabilities)
			fmt.Printf("  Key:          %s\n", raw)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Human-readable name for the key (required)")
	cmd.Flags().StringArrayVar(&capStrings, "capability", nil, "Capability to grant (jobs:execute, jobs:read); may be repeated")
	return cmd
}

func newRevokeCmd() *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke an API key by ID",
		RunE: func(cmd *cobra.Command, args []string) error {
			keyID, err := uuid.Parse(id)
			if err != nil {
				return fmt.Errorf("--id must be a valid UUID: %w", err)
			}

			mgr, cleanup, err := buildManager()
			if err != nil {
				return err
			}
			defer cleanup()

			if err := mgr.Revoke(context.Background(), keyID); err != nil {
				return fmt.Errorf("revoke key: %w", err)
			}
			fmt.Printf("Key %s revoked\n", keyID)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "ID of the key to revoke (required)")
	return cmd
}

func parseCapabilities(raw []string) ([]apikey.Capability, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("at least one --capability is required (jobs:execute, jobs:read)")
	}
	caps := make([]apikey.Capability, 0, len(raw))
	for _, r := range raw {
		switch apikey.Capability(strings.TrimSpace(r)) {
		case apikey.CapJobsExecute:
			caps = append(caps, apikey.CapJobsExecute)
		case apikey.CapJobsRead:
			caps = append(caps, apikey.CapJobsRead)
		default:
			return nil, fmt.Errorf("unknown capability %q (want jobs:execute or jobs:read)", r)
		}
	}
	return caps, nil
}

// buildManager wires a secret store and database connection and returns a
// ready-to-use apikey.Manager plus a cleanup func for the underlying
// *sql.DB. Kept separate from main() so both subcommands share it without
// duplicating the wiring.
func buildManager() (*apikey.Manager, func(), error) {
	dsn := envOrDefault("DBACKUP_DB_DSN", "./dbackup.db")

	secretKey := os.Getenv("DBACKUP_SECRET_KEY")
	if secretKey == "" {
		return nil, nil, fmt.Errorf(
			"DBACKUP_SECRET_KEY is not set\n" +
				"  Set it to the same value used by dbackupd.",
		)
	}
	keyBytes := make([]byte, 32)
	copy(keyBytes, []byte(secretKey))
	if err := secret.Init(keyBytes); err != nil {
		return nil, nil, fmt.Errorf("init secret store: %w", err)
	}

	logger, _ := zap.NewDevelopment()

	database, err := db.New(db.Config{
		Driver:   envOrDefault("DBACKUP_DB_DRIVER", "sqlite"),
		DSN:      dsn,
		Logger:   logger,
		LogLevel: gormlogger.Silent,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := database.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("get sql.DB: %w", err)
	}

	repo := repositories.NewAPIKeyRepository(database)
	return apikey.New(repo), func() { _ = sqlDB.Close() }, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
