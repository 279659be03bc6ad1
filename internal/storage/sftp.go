package storage

import (
	"context"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/skyfay/dbackup/internal/apperr"
)

// sftpConfig is the "config" JSON shape for the SFTP backend.
type sftpConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	PathPrefix   string `json:"path_prefix"`
	HostKeyCheck bool   `json:"host_key_check"`
	HostKey      string `json:"host_key"` // authorized_keys-format pubkey, required if HostKeyCheck
}

// sftpCredentials is the "credentials" JSON shape for the SFTP backend.
// Either password or private key authentication is supplied, never both.
type sftpCredentials struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	PrivateKey string `json:"private_key"`
	Passphrase string `json:"passphrase"`
}

type sftpAdapter struct {
	addr   string
	config *ssh.ClientConfig
	prefix string
}

func buildSFTP(cfg Config) (Adapter, error) {
	var sc sftpConfig
	if err := unmarshalConfig(cfg.ConfigJSON, &sc); err != nil {
		return nil, err
	}
	if sc.Host == "" {
		return nil, apperr.New(apperr.KindConfig, "storage.buildSFTP", "config.host is required")
	}
	if sc.Port == 0 {
		sc.Port = 22
	}

	var creds sftpCredentials
	if cfg.Credentials != "" {
		if err := unmarshalConfig(cfg.Credentials, &creds); err != nil {
			return nil, err
		}
	}

	var auth []ssh.AuthMethod
	switch {
	case creds.PrivateKey != "":
		var signer ssh.Signer
		var err error
		if creds.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase([]byte(creds.PrivateKey), []byte(creds.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey([]byte(creds.PrivateKey))
		}
		if err != nil {
			return nil, apperr.Wrap(apperr.KindConfig, "storage.buildSFTP", "parsing private key", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	case creds.Password != "":
		auth = append(auth, ssh.Password(creds.Password))
	default:
		return nil, apperr.New(apperr.KindConfig, "storage.buildSFTP", "credentials.password or credentials.private_key is required")
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if sc.HostKeyCheck {
		if sc.HostKey == "" {
			return nil, apperr.New(apperr.KindConfig, "storage.buildSFTP", "config.host_key is required when host_key_check is enabled")
		}
		pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(sc.HostKey))
		if err != nil {
			return nil, apperr.Wrap(apperr.KindConfig, "storage.buildSFTP", "parsing host key", err)
		}
		hostKeyCallback = ssh.FixedHostKey(pub)
	}

	return &sftpAdapter{
		addr: sc.Host + ":" + strconv.Itoa(sc.Port),
		config: &ssh.ClientConfig{
			User:            creds.Username,
			Auth:            auth,
			HostKeyCallback: hostKeyCallback,
			Timeout:         30 * time.Second,
		},
		prefix: sc.PathPrefix,
	}, nil
}

func (a *sftpAdapter) dial(ctx context.Context) (*ssh.Client, *sftp.Client, error) {
	conn, err := ssh.Dial("tcp", a.addr, a.config)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.KindConnection, "storage.sftp.dial", "SSH dial failed", err)
	}
	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, nil, apperr.Wrap(apperr.KindConnection, "storage.sftp.dial", "SFTP session failed", err)
	}
	return conn, client, nil
}

func (a *sftpAdapter) key(k string) string {
	if a.prefix == "" {
		return k
	}
	return path.Join(a.prefix, k)
}

func (a *sftpAdapter) Upload(ctx context.Context, key string, r io.Reader) (int64, error) {
	conn, client, err := a.dial(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()
	defer client.Close()

	full := a.key(key)
	if dir := path.Dir(full); dir != "." && dir != "/" {
		_ = client.MkdirAll(dir)
	}

	f, err := client.Create(full)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindIO, "storage.sftp.Upload", "creating remote file", err)
	}
	defer f.Close()

	n, err := io.Copy(f, r)
	if err != nil {
		return n, apperr.Wrap(apperr.KindIO, "storage.sftp.Upload", "writing remote file", err)
	}
	return n, nil
}

func (a *sftpAdapter) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	conn, client, err := a.dial(ctx)
	if err != nil {
		return nil, err
	}

	f, err := client.Open(a.key(key))
	if err != nil {
		client.Close()
		conn.Close()
		return nil, apperr.Wrap(apperr.KindIO, "storage.sftp.Download", "opening remote file", err)
	}
	return &sftpDownload{file: f, client: client, conn: conn}, nil
}

func (a *sftpAdapter) Delete(ctx context.Context, key string) error {
	conn, client, err := a.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	defer client.Close()

	if err := client.Remove(a.key(key)); err != nil && !strings.Contains(err.Error(), "not exist") {
		return apperr.Wrap(apperr.KindIO, "storage.sftp.Delete", "removing remote file", err)
	}
	return nil
}

func (a *sftpAdapter) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	conn, client, err := a.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	defer client.Close()

	full := a.key(prefix)
	dir := path.Dir(full)

	entries, err := client.ReadDir(dir)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindIO, "storage.sftp.List", "reading remote directory", err)
	}

	var objs []ObjectInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		key := path.Join(dir, e.Name())
		if !strings.HasPrefix(key, full) {
			continue
		}
		objs = append(objs, ObjectInfo{Key: key, SizeBytes: e.Size(), LastModified: e.ModTime()})
	}
	return objs, nil
}

func (a *sftpAdapter) Test(ctx context.Context) error {
	conn, client, err := a.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	defer client.Close()
	return nil
}

type sftpDownload struct {
	file   *sftp.File
	client *sftp.Client
	conn   *ssh.Client
}

func (d *sftpDownload) Read(p []byte) (int, error) { return d.file.Read(p) }

func (d *sftpDownload) Close() error {
	err := d.file.Close()
	d.client.Close()
	d.conn.Close()
	return err
}
