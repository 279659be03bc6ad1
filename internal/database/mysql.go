package database

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"github.com/skyfay/dbackup/internal/apperr"
)

// mysqlAdapter dumps via mysqldump or mariadb-dump, preferring the
// family-matching client binary (spec §4.3). Test and ListDatabases use
// database/sql over go-sql-driver/mysql.
type mysqlAdapter struct {
	cfg Config
}

func newMySQLAdapter(cfg Config) *mysqlAdapter {
	return &mysqlAdapter{cfg: cfg}
}

func (a *mysqlAdapter) dsn(database string) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", a.cfg.Username, a.cfg.Password, a.cfg.Host, a.cfg.Port, database)
}

func (a *mysqlAdapter) Test(ctx context.Context) (string, error) {
	db, err := sql.Open("mysql", a.dsn(""))
	if err != nil {
		return "", apperr.Wrap(apperr.KindConfig, "database.mysql.Test", "opening connection", err)
	}
	defer db.Close()

	var version string
	if err := db.QueryRowContext(ctx, "select version()").Scan(&version); err != nil {
		return "", apperr.Wrap(apperr.KindConnection, "database.mysql.Test", "querying version", err)
	}
	return version, nil
}

func (a *mysqlAdapter) ListDatabases(ctx context.Context) ([]string, error) {
	db, err := sql.Open("mysql", a.dsn(""))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConfig, "database.mysql.ListDatabases", "opening connection", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, "show databases")
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConnection, "database.mysql.ListDatabases", "SHOW DATABASES failed", err)
	}
	defer rows.Close()

	skip := map[string]bool{"information_schema": true, "performance_schema": true, "mysql": true, "sys": true}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, apperr.Wrap(apperr.KindIO, "database.mysql.ListDatabases", "scanning row", err)
		}
		if !skip[name] {
			names = append(names, name)
		}
	}
	return names, rows.Err()
}

// dumpClient resolves the mysqldump/mariadb-dump binary, preferring the
// family matching the connected server's reported version string.
func (a *mysqlAdapter) dumpClient(ctx context.Context) (string, bool, error) {
	isMariaDB := false
	if version, err := a.Test(ctx); err == nil {
		isMariaDB = strings.Contains(strings.ToLower(version), "mariadb")
	}
	if isMariaDB {
		path, err := lookPath("mariadb-dump", "mysqldump")
		return path, true, err
	}
	path, err := lookPath("mysqldump", "mariadb-dump")
	return path, false, err
}

func (a *mysqlAdapter) Dump(ctx context.Context, dst io.Writer, progress ProgressFunc, log LogFunc) (DumpResult, error) {
	client, _, err := a.dumpClient(ctx)
	if err != nil {
		return DumpResult{}, err
	}

	env := []string{"MYSQL_PWD=" + a.cfg.Password}
	args := []string{"-h", a.cfg.Host, "-P", strconv.Itoa(a.cfg.Port), "-u", a.cfg.Username, "--single-transaction", "--routines", "--triggers"}

	label := "Single DB"
	if a.cfg.Database != "" {
		args = append(args, a.cfg.Database)
	} else {
		dbs, err := a.ListDatabases(ctx)
		if err != nil {
			return DumpResult{}, err
		}
		args = append(args, "--databases")
		args = append(args, dbs...)
		label = "All DBs"
	}

	n, err := runArgv(ctx, client, args, env, nil, dst, log)
	if err != nil {
		return DumpResult{}, err
	}
	if progress != nil {
		progress(100)
	}
	return DumpResult{BytesWritten: n, DatabaseLabel: label, Extension: ".sql"}, nil
}

var (
	useStmt    = regexp.MustCompile("(?i)^USE `?([^`;]+)`?;")
	createStmt = regexp.MustCompile("(?i)^CREATE DATABASE(?: IF NOT EXISTS)? `?([^`;]+)`?")
)

// rewritingReader filters a mysqldump stream line by line, rewriting USE
// and CREATE DATABASE headers according to mapping and dropping sections for
// databases not selected (spec §4.3 multi-database restore mapping).
type rewritingReader struct {
	scanner  *bufio.Scanner
	mapping  map[string]RestoreTarget
	current  string // original db name of the section currently being read
	selected bool
	buf      []byte
	single   string // if non-empty, restore targets only this DB and strips switching statements
}

func newRewritingReader(src io.Reader, mapping map[string]RestoreTarget, single string) *rewritingReader {
	s := bufio.NewScanner(src)
	s.Buffer(make([]byte, 64*1024), 10*1024*1024)
	return &rewritingReader{scanner: s, mapping: mapping, selected: true, single: single}
}

func (r *rewritingReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		if !r.scanner.Scan() {
			if err := r.scanner.Err(); err != nil {
				return 0, err
			}
			return 0, io.EOF
		}
		line := r.scanner.Text()

		if r.single != "" {
			if useStmt.MatchString(line) || createStmt.MatchString(line) {
				continue // all switching statements stripped, single target pre-selected
			}
			r.buf = append([]byte(line), '\n')
			continue
		}

		if m := createStmt.FindStringSubmatch(line); m != nil {
			r.current = m[1]
			target, ok := r.mapping[r.current]
			r.selected = ok && target.Selected
			if !r.selected {
				continue
			}
			rewritten := createStmt.ReplaceAllString(line, "CREATE DATABASE IF NOT EXISTS `"+target.TargetName+"`")
			r.buf = append([]byte(rewritten), '\n')
			continue
		}
		if m := useStmt.FindStringSubmatch(line); m != nil {
			r.current = m[1]
			target, ok := r.mapping[r.current]
			r.selected = ok && target.Selected
			if !r.selected {
				continue
			}
			r.buf = append([]byte("USE `"+target.TargetName+"`;"), '\n')
			continue
		}
		if !r.selected {
			continue
		}
		r.buf = append([]byte(line), '\n')
	}

	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

func (a *mysqlAdapter) Restore(ctx context.Context, src io.Reader, mapping map[string]RestoreTarget, privileged *PrivilegedAuth, progress ProgressFunc, log LogFunc) error {
	username, password := a.cfg.Username, a.cfg.Password
	if privileged != nil {
		username, password = privileged.Username, privileged.Password
	}
	env := []string{"MYSQL_PWD=" + password}
	args := []string{"-h", a.cfg.Host, "-P", strconv.Itoa(a.cfg.Port), "-u", username}

	single := ""
	selectedCount := 0
	for _, t := range mapping {
		if t.Selected {
			selectedCount++
		}
	}
	switch {
	case a.cfg.Database != "":
		single = a.cfg.Database
	case selectedCount == 1:
		for _, t := range mapping {
			if t.Selected {
				single = t.TargetName
			}
		}
	}
	if single != "" {
		args = append(args, single)
	}

	client, err := lookPath("mysql", "mariadb")
	if err != nil {
		return err
	}

	reader := src
	if len(mapping) > 0 {
		reader = newRewritingReader(src, mapping, single)
	}

	_, err = runArgv(ctx, client, args, env, reader, io.Discard, log)
	if progress != nil {
		progress(100)
	}
	return err
}
