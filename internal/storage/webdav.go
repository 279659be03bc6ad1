package storage

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/studio-b12/gowebdav"

	"github.com/skyfay/dbackup/internal/apperr"
)

// webdavConfig is the "config" JSON shape for the WebDAV backend.
type webdavConfig struct {
	URL        string `json:"url"`
	PathPrefix string `json:"path_prefix"`
}

// webdavCredentials is the "credentials" JSON shape for the WebDAV backend.
type webdavCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type webdavAdapter struct {
	client *gowebdav.Client
	prefix string
}

func buildWebDAV(cfg Config) (Adapter, error) {
	var wc webdavConfig
	if err := unmarshalConfig(cfg.ConfigJSON, &wc); err != nil {
		return nil, err
	}
	if wc.URL == "" {
		return nil, apperr.New(apperr.KindConfig, "storage.buildWebDAV", "config.url is required")
	}

	var creds webdavCredentials
	if cfg.Credentials != "" {
		if err := unmarshalConfig(cfg.Credentials, &creds); err != nil {
			return nil, err
		}
	}

	client := gowebdav.NewClient(wc.URL, creds.Username, creds.Password)
	return &webdavAdapter{client: client, prefix: wc.PathPrefix}, nil
}

func (a *webdavAdapter) key(k string) string {
	if a.prefix == "" {
		return k
	}
	return path.Join(a.prefix, k)
}

func (a *webdavAdapter) Upload(ctx context.Context, key string, r io.Reader) (int64, error) {
	full := a.key(key)
	if dir := path.Dir(full); dir != "." && dir != "/" {
		if err := a.client.MkdirAll(dir, 0o750); err != nil {
			return 0, apperr.Wrap(apperr.KindConnection, "storage.webdav.Upload", "MKCOL failed", err)
		}
	}
	counter := &countingReader{r: r}
	if err := a.client.WriteStream(full, counter, 0o640); err != nil {
		return counter.n, apperr.Wrap(apperr.KindConnection, "storage.webdav.Upload", "PUT failed", err)
	}
	return counter.n, nil
}

func (a *webdavAdapter) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := a.client.ReadStream(a.key(key))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindIO, "storage.webdav.Download", "GET failed", err)
	}
	if rc, ok := r.(io.ReadCloser); ok {
		return rc, nil
	}
	return io.NopCloser(r), nil
}

func (a *webdavAdapter) Delete(ctx context.Context, key string) error {
	if err := a.client.Remove(a.key(key)); err != nil {
		return apperr.Wrap(apperr.KindConnection, "storage.webdav.Delete", "DELETE failed", err)
	}
	return nil
}

func (a *webdavAdapter) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	full := a.key(prefix)
	dir := path.Dir(full)

	entries, err := a.client.ReadDir(dir)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConnection, "storage.webdav.List", "PROPFIND failed", err)
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

func (a *webdavAdapter) Test(ctx context.Context) error {
	if _, err := a.client.ReadDir("/"); err != nil {
		return apperr.Wrap(apperr.KindConnection, "storage.webdav.Test", "PROPFIND failed", err)
	}
	return nil
}
