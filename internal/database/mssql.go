package database

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"path"
	"time"

	_ "github.com/microsoft/go-mssqldb"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/skyfay/dbackup/internal/apperr"
)

// mssqlAdapter produces a .bak file on the SQL Server host with a BACKUP
// DATABASE statement issued over the native driver, then
// transfers it over an SFTP side channel when the orchestrator and the
// server share no filesystem (spec §4.3). Arbitrary SSH command execution
// is deliberately not supported — only the fixed BACKUP/RESTORE statements
// issued over the native driver, plus file transfer over SFTP.
type mssqlAdapter struct {
	cfg Config
}

func newMSSQLAdapter(cfg Config) *mssqlAdapter {
	return &mssqlAdapter{cfg: cfg}
}

func (a *mssqlAdapter) dsn(database string) string {
	query := fmt.Sprintf("sqlserver://%s:%s@%s:%d?database=%s",
		a.cfg.Username, a.cfg.Password, a.cfg.Host, a.cfg.Port, database)
	return query
}

func (a *mssqlAdapter) Test(ctx context.Context) (string, error) {
	db, err := sql.Open("sqlserver", a.dsn("master"))
	if err != nil {
		return "", apperr.Wrap(apperr.KindConfig, "database.mssql.Test", "opening connection", err)
	}
	defer db.Close()

	var version string
	if err := db.QueryRowContext(ctx, "select @@version").Scan(&version); err != nil {
		return "", apperr.Wrap(apperr.KindConnection, "database.mssql.Test", "querying version", err)
	}
	return version, nil
}

func (a *mssqlAdapter) ListDatabases(ctx context.Context) ([]string, error) {
	db, err := sql.Open("sqlserver", a.dsn("master"))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConfig, "database.mssql.ListDatabases", "opening connection", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, "select name from sys.databases where database_id > 4")
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConnection, "database.mssql.ListDatabases", "querying sys.databases", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, apperr.Wrap(apperr.KindIO, "database.mssql.ListDatabases", "scanning row", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// sshClient dials the SFTP side channel using the connection details in
// Config.Extra.
func (a *mssqlAdapter) sshClient() (*ssh.Client, error) {
	host := a.cfg.Extra["ssh_host"]
	if host == "" {
		host = a.cfg.Host
	}
	port := a.cfg.Extra["ssh_port"]
	if port == "" {
		port = "22"
	}

	var auth []ssh.AuthMethod
	if key := a.cfg.Extra["ssh_private_key"]; key != "" {
		signer, err := ssh.ParsePrivateKey([]byte(key))
		if err != nil {
			return nil, apperr.Wrap(apperr.KindConfig, "database.mssql.sshClient", "parsing ssh private key", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	} else {
		auth = append(auth, ssh.Password(a.cfg.Extra["ssh_password"]))
	}

	client, err := ssh.Dial("tcp", host+":"+port, &ssh.ClientConfig{
		User:            a.cfg.Extra["ssh_username"],
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         30 * time.Second,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConnection, "database.mssql.sshClient", "SSH dial failed", err)
	}
	return client, nil
}

func (a *mssqlAdapter) remoteBakDir() string {
	if dir := a.cfg.Extra["remote_bak_dir"]; dir != "" {
		return dir
	}
	return "/var/opt/mssql/data"
}

func (a *mssqlAdapter) Dump(ctx context.Context, dst io.Writer, progress ProgressFunc, log LogFunc) (DumpResult, error) {
	db, err := sql.Open("sqlserver", a.dsn("master"))
	if err != nil {
		return DumpResult{}, apperr.Wrap(apperr.KindConfig, "database.mssql.Dump", "opening connection", err)
	}
	defer db.Close()

	label := "Single DB"
	database := a.cfg.Database
	if database == "" {
		label = "All DBs"
		return DumpResult{}, apperr.New(apperr.KindConfig, "database.mssql.Dump", "config.database is required: SQL Server backs up one database per .bak file")
	}

	remoteName := database + "_" + time.Now().UTC().Format("20060102T150405Z") + ".bak"
	remotePath := path.Join(a.remoteBakDir(), remoteName)

	stmt := fmt.Sprintf("BACKUP DATABASE [%s] TO DISK = N'%s' WITH NOFORMAT, INIT, COMPRESSION", database, remotePath)
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return DumpResult{}, apperr.Wrap(apperr.KindSubprocess, "database.mssql.Dump", "BACKUP DATABASE failed", err)
	}
	if log != nil {
		log("BACKUP DATABASE completed: " + remotePath)
	}
	if progress != nil {
		progress(60)
	}

	sshClient, err := a.sshClient()
	if err != nil {
		return DumpResult{}, err
	}
	defer sshClient.Close()

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		return DumpResult{}, apperr.Wrap(apperr.KindConnection, "database.mssql.Dump", "opening SFTP session", err)
	}
	defer sftpClient.Close()

	f, err := sftpClient.Open(remotePath)
	if err != nil {
		return DumpResult{}, apperr.Wrap(apperr.KindIO, "database.mssql.Dump", "opening remote .bak over SFTP", err)
	}
	defer f.Close()

	n, err := io.Copy(dst, f)
	if err != nil {
		return DumpResult{}, apperr.Wrap(apperr.KindIO, "database.mssql.Dump", "downloading .bak over SFTP", err)
	}
	if progress != nil {
		progress(100)
	}

	_ = sftpClient.Remove(remotePath)
	return DumpResult{BytesWritten: n, DatabaseLabel: label, Extension: ".bak"}, nil
}

func (a *mssqlAdapter) Restore(ctx context.Context, src io.Reader, mapping map[string]RestoreTarget, privileged *PrivilegedAuth, progress ProgressFunc, log LogFunc) error {
	username, password := a.cfg.Username, a.cfg.Password
	if privileged != nil {
		username, password = privileged.Username, privileged.Password
	}

	target := a.cfg.Database
	for _, t := range mapping {
		if t.Selected {
			target = t.TargetName
		}
	}
	if target == "" {
		return apperr.New(apperr.KindConfig, "database.mssql.Restore", "no target database selected")
	}

	sshClient, err := a.sshClient()
	if err != nil {
		return err
	}
	defer sshClient.Close()

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		return apperr.Wrap(apperr.KindConnection, "database.mssql.Restore", "opening SFTP session", err)
	}
	defer sftpClient.Close()

	remotePath := path.Join(a.remoteBakDir(), target+"_restore_"+time.Now().UTC().Format("20060102T150405Z")+".bak")
	f, err := sftpClient.Create(remotePath)
	if err != nil {
		return apperr.Wrap(apperr.KindIO, "database.mssql.Restore", "creating remote .bak over SFTP", err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return apperr.Wrap(apperr.KindIO, "database.mssql.Restore", "uploading .bak over SFTP", err)
	}
	f.Close()
	if progress != nil {
		progress(50)
	}

	dsn := fmt.Sprintf("sqlserver://%s:%s@%s:%d?database=master", username, password, a.cfg.Host, a.cfg.Port)
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return apperr.Wrap(apperr.KindConfig, "database.mssql.Restore", "opening connection", err)
	}
	defer db.Close()

	stmt := fmt.Sprintf("RESTORE DATABASE [%s] FROM DISK = N'%s' WITH REPLACE, RECOVERY", target, remotePath)
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return apperr.Wrap(apperr.KindSubprocess, "database.mssql.Restore", "RESTORE DATABASE failed", err)
	}
	if log != nil {
		log("RESTORE DATABASE completed: " + target)
	}
	if progress != nil {
		progress(100)
	}

	_ = sftpClient.Remove(remotePath)
	return nil
}
