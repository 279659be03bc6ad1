package database

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/skyfay/dbackup/internal/apperr"
)

// postgresAdapter dumps via pg_dump (single DB, custom format) or a
// pg_dumpall-style tool (all DBs, plain SQL), per spec §4.3. Test and
// ListDatabases probe over the wire with pgx rather than shelling out.
type postgresAdapter struct {
	cfg Config
}

func newPostgresAdapter(cfg Config) *postgresAdapter {
	return &postgresAdapter{cfg: cfg}
}

func (a *postgresAdapter) connString(database string) string {
	if database == "" {
		database = "postgres"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=prefer",
		a.cfg.Username, a.cfg.Password, a.cfg.Host, a.cfg.Port, database)
}

func (a *postgresAdapter) Test(ctx context.Context) (string, error) {
	conn, err := pgx.Connect(ctx, a.connString(a.cfg.Database))
	if err != nil {
		return "", apperr.Wrap(apperr.KindConnection, "database.postgres.Test", "connecting", err)
	}
	defer conn.Close(ctx)

	var version string
	if err := conn.QueryRow(ctx, "show server_version").Scan(&version); err != nil {
		return "", apperr.Wrap(apperr.KindConnection, "database.postgres.Test", "querying version", err)
	}
	return version, nil
}

func (a *postgresAdapter) ListDatabases(ctx context.Context) ([]string, error) {
	conn, err := pgx.Connect(ctx, a.connString("postgres"))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConnection, "database.postgres.ListDatabases", "connecting", err)
	}
	defer conn.Close(ctx)

	rows, err := conn.Query(ctx, "select datname from pg_database where not datistemplate order by datname")
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConnection, "database.postgres.ListDatabases", "querying pg_database", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, apperr.Wrap(apperr.KindIO, "database.postgres.ListDatabases", "scanning row", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// majorVersion parses a "14.9" / "16beta1" style version string down to its
// leading integer. Unparseable input defaults to 16, the documented
// fallback for an unknown server version.
func majorVersion(version string) int {
	cut := strings.IndexFunc(version, func(r rune) bool { return r < '0' || r > '9' })
	if cut == -1 {
		cut = len(version)
	}
	n, err := strconv.Atoi(version[:cut])
	if err != nil {
		return 16
	}
	return n
}

func (a *postgresAdapter) Dump(ctx context.Context, dst io.Writer, progress ProgressFunc, log LogFunc) (DumpResult, error) {
	env := []string{"PGPASSWORD=" + a.cfg.Password}

	if a.cfg.Database != "" {
		args := []string{
			"-h", a.cfg.Host, "-p", strconv.Itoa(a.cfg.Port), "-U", a.cfg.Username,
			"-Fc", "--compress=6", "-d", a.cfg.Database,
		}
		if version, err := a.Test(ctx); err == nil {
			if mv := majorVersion(version); mv == 14 || mv == 15 {
				args = append(args, "--no-sync")
			}
		}
		n, err := runArgv(ctx, "pg_dump", args, env, nil, dst, log)
		if err != nil {
			return DumpResult{}, err
		}
		if progress != nil {
			progress(100)
		}
		return DumpResult{BytesWritten: n, DatabaseLabel: "Single DB", Extension: ".dump"}, nil
	}

	// Multi-database: plain SQL dump-all, explicitly UTF-8 on PG17+.
	args := []string{"-h", a.cfg.Host, "-p", strconv.Itoa(a.cfg.Port), "-U", a.cfg.Username}
	if version, err := a.Test(ctx); err == nil {
		if majorVersion(version) >= 17 {
			args = append(args, "--encoding=UTF8")
		}
	}
	n, err := runArgv(ctx, "pg_dumpall", args, env, nil, dst, log)
	if err != nil {
		return DumpResult{}, err
	}
	if progress != nil {
		progress(100)
	}
	return DumpResult{BytesWritten: n, DatabaseLabel: "All DBs", Extension: ".sql"}, nil
}

func (a *postgresAdapter) Restore(ctx context.Context, src io.Reader, mapping map[string]RestoreTarget, privileged *PrivilegedAuth, progress ProgressFunc, log LogFunc) error {
	username, password := a.cfg.Username, a.cfg.Password
	if privileged != nil {
		username, password = privileged.Username, privileged.Password
	}
	env := []string{"PGPASSWORD=" + password}

	if a.cfg.Database != "" || len(mapping) <= 1 {
		target := a.cfg.Database
		for _, t := range mapping {
			if t.Selected {
				target = t.TargetName
			}
		}
		args := []string{"-h", a.cfg.Host, "-p", strconv.Itoa(a.cfg.Port), "-U", username, "-d", target, "--no-owner"}
		_, err := runArgv(ctx, "pg_restore", args, env, src, io.Discard, log)
		if progress != nil {
			progress(100)
		}
		return err
	}

	// Multi-database plain-SQL restore: psql applies the whole stream,
	// relying on the stream's own \connect / CREATE DATABASE statements —
	// selection filtering for Postgres multi-DB restore happens upstream
	// of this adapter since pg_dumpall output isn't line-rewritable the
	// way MySQL's USE statements are.
	args := []string{"-h", a.cfg.Host, "-p", strconv.Itoa(a.cfg.Port), "-U", username, "-d", "postgres"}
	_, err := runArgv(ctx, "psql", args, env, src, io.Discard, log)
	if progress != nil {
		progress(100)
	}
	return err
}
