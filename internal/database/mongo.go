package database

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/skyfay/dbackup/internal/apperr"
)

// mongoAdapter dumps via mongodump --archive (gzip-compressed), per
// spec §4.3. Test and ListDatabases use the official mongo-driver.
type mongoAdapter struct {
	cfg Config
}

func newMongoAdapter(cfg Config) *mongoAdapter {
	return &mongoAdapter{cfg: cfg}
}

func (a *mongoAdapter) uri() string {
	if a.cfg.Username == "" {
		return fmt.Sprintf("mongodb://%s:%d", a.cfg.Host, a.cfg.Port)
	}
	return fmt.Sprintf("mongodb://%s:%s@%s:%d", a.cfg.Username, a.cfg.Password, a.cfg.Host, a.cfg.Port)
}

func (a *mongoAdapter) connect(ctx context.Context) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(a.uri()))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConnection, "database.mongo.connect", "connecting", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, apperr.Wrap(apperr.KindConnection, "database.mongo.connect", "ping failed", err)
	}
	return client, nil
}

func (a *mongoAdapter) Test(ctx context.Context) (string, error) {
	client, err := a.connect(ctx)
	if err != nil {
		return "", err
	}
	defer client.Disconnect(ctx)

	var result bson.M
	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "buildInfo", Value: 1}}).Decode(&result); err != nil {
		return "", apperr.Wrap(apperr.KindConnection, "database.mongo.Test", "buildInfo failed", err)
	}
	version, _ := result["version"].(string)
	return version, nil
}

func (a *mongoAdapter) ListDatabases(ctx context.Context) ([]string, error) {
	client, err := a.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Disconnect(ctx)

	names, err := client.ListDatabaseNames(ctx, bson.D{})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConnection, "database.mongo.ListDatabases", "ListDatabaseNames failed", err)
	}

	var filtered []string
	for _, n := range names {
		if n != "admin" && n != "local" && n != "config" {
			filtered = append(filtered, n)
		}
	}
	return filtered, nil
}

func (a *mongoAdapter) Dump(ctx context.Context, dst io.Writer, progress ProgressFunc, log LogFunc) (DumpResult, error) {
	args := []string{
		"--host", a.cfg.Host, "--port", strconv.Itoa(a.cfg.Port),
		"--archive", "--gzip",
	}
	if a.cfg.Username != "" {
		args = append(args, "--username", a.cfg.Username, "--password", a.cfg.Password)
	}

	label := "All DBs"
	if a.cfg.Database != "" {
		args = append(args, "--db", a.cfg.Database)
		label = "Single DB"
	}

	n, err := runArgv(ctx, "mongodump", args, nil, nil, dst, log)
	if err != nil {
		return DumpResult{}, err
	}
	if progress != nil {
		progress(100)
	}
	return DumpResult{BytesWritten: n, DatabaseLabel: label, Extension: ".archive.gz"}, nil
}

func (a *mongoAdapter) Restore(ctx context.Context, src io.Reader, mapping map[string]RestoreTarget, privileged *PrivilegedAuth, progress ProgressFunc, log LogFunc) error {
	username, password := a.cfg.Username, a.cfg.Password
	if privileged != nil {
		username, password = privileged.Username, privileged.Password
	}

	args := []string{
		"--host", a.cfg.Host, "--port", strconv.Itoa(a.cfg.Port),
		"--archive", "--gzip", "--drop",
	}
	if username != "" {
		args = append(args, "--username", username, "--password", password)
	}

	// Multi-database archives are restored wholesale: selected mapping
	// entries whose target name differs are renamed with --nsFrom/--nsTo,
	// and entries that are not selected are still restored, since no
	// exclusion flag is passed for them (spec §4.3).
	for original, target := range mapping {
		if target.Selected && target.TargetName != original {
			args = append(args, "--nsFrom", original+".*", "--nsTo", target.TargetName+".*")
		}
	}
	if a.cfg.Database != "" {
		args = append(args, "--nsInclude", a.cfg.Database+".*")
	}

	_, err := runArgv(ctx, "mongorestore", args, nil, src, io.Discard, log)
	if progress != nil {
		progress(100)
	}
	return err
}
