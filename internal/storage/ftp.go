package storage

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net/textproto"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/skyfay/dbackup/internal/apperr"
)

// ftpConfig is the "config" JSON shape for the FTP/FTPS backend.
type ftpConfig struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	PathPrefix string `json:"path_prefix"`
	Explicit   bool   `json:"explicit_tls"`
}

// ftpCredentials is the "credentials" JSON shape for the FTP/FTPS backend.
type ftpCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type ftpAdapter struct {
	addr     string
	username string
	password string
	explicit bool
	prefix   string
}

func buildFTP(cfg Config) (Adapter, error) {
	var fc ftpConfig
	if err := unmarshalConfig(cfg.ConfigJSON, &fc); err != nil {
		return nil, err
	}
	if fc.Host == "" {
		return nil, apperr.New(apperr.KindConfig, "storage.buildFTP", "config.host is required")
	}
	if fc.Port == 0 {
		fc.Port = 21
	}

	var creds ftpCredentials
	if cfg.Credentials != "" {
		if err := unmarshalConfig(cfg.Credentials, &creds); err != nil {
			return nil, err
		}
	}

	return &ftpAdapter{
		addr:     fc.Host + ":" + strconv.Itoa(fc.Port),
		username: creds.Username,
		password: creds.Password,
		explicit: fc.Explicit,
		prefix:   fc.PathPrefix,
	}, nil
}

// dial opens a fresh control connection. The underlying FTP protocol has no
// connection pooling story worth building here — every operation dials,
// performs its single command sequence, and quits.
func (a *ftpAdapter) dial(ctx context.Context) (*ftp.ServerConn, error) {
	opts := []ftp.DialOption{ftp.DialWithContext(ctx), ftp.DialWithTimeout(30 * time.Second)}
	if a.explicit {
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{ServerName: strings.Split(a.addr, ":")[0]}))
	}
	conn, err := ftp.Dial(a.addr, opts...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConnection, "storage.ftp.dial", "dialing FTP server", err)
	}
	if err := conn.Login(a.username, a.password); err != nil {
		conn.Quit()
		return nil, apperr.Wrap(apperr.KindAuth, "storage.ftp.dial", "FTP login rejected", err)
	}
	return conn, nil
}

func (a *ftpAdapter) key(k string) string {
	if a.prefix == "" {
		return k
	}
	return path.Join(a.prefix, k)
}

func (a *ftpAdapter) Upload(ctx context.Context, key string, r io.Reader) (int64, error) {
	conn, err := a.dial(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Quit()

	full := a.key(key)
	if dir := path.Dir(full); dir != "." && dir != "/" {
		_ = conn.MakeDir(dir)
	}

	counter := &countingReader{r: r}
	if err := conn.Stor(full, counter); err != nil {
		return counter.n, apperr.Wrap(apperr.KindConnection, "storage.ftp.Upload", "STOR failed", err)
	}
	return counter.n, nil
}

func (a *ftpAdapter) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	conn, err := a.dial(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := conn.Retr(a.key(key))
	if err != nil {
		conn.Quit()
		return nil, apperr.Wrap(apperr.KindIO, "storage.ftp.Download", "RETR failed", err)
	}
	return &ftpDownload{resp: resp, conn: conn}, nil
}

func (a *ftpAdapter) Delete(ctx context.Context, key string) error {
	conn, err := a.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Quit()

	if err := conn.Delete(a.key(key)); err != nil {
		var tpErr *textproto.Error
		if errors.As(err, &tpErr) && tpErr.Code == 550 {
			return nil // 550: file unavailable, already absent
		}
		return apperr.Wrap(apperr.KindConnection, "storage.ftp.Delete", "DELE failed", err)
	}
	return nil
}

func (a *ftpAdapter) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	conn, err := a.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Quit()

	full := a.key(prefix)
	dir := path.Dir(full)
	entries, err := conn.List(dir)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConnection, "storage.ftp.List", "LIST failed", err)
	}

	var objs []ObjectInfo
	for _, e := range entries {
		if e.Type != ftp.EntryTypeFile {
			continue
		}
		key := path.Join(dir, e.Name)
		if !strings.HasPrefix(key, full) {
			continue
		}
		objs = append(objs, ObjectInfo{Key: key, SizeBytes: int64(e.Size), LastModified: e.Time})
	}
	return objs, nil
}

func (a *ftpAdapter) Test(ctx context.Context) error {
	conn, err := a.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Quit()
	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

type ftpDownload struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (d *ftpDownload) Read(p []byte) (int, error) { return d.resp.Read(p) }

func (d *ftpDownload) Close() error {
	err := d.resp.Close()
	d.conn.Quit()
	return err
}
