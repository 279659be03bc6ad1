package storage

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/skyfay/dbackup/internal/apperr"
)

// localConfig is the "config" JSON shape for the local filesystem backend.
type localConfig struct {
	Path string `json:"path"`
}

// localAdapter stores artifacts under a root directory on the host running
// the orchestrator. Suitable for NAS mounts and local disk targets.
type localAdapter struct {
	root string
}

func buildLocal(cfg Config) (Adapter, error) {
	var lc localConfig
	if err := unmarshalConfig(cfg.ConfigJSON, &lc); err != nil {
		return nil, err
	}
	if lc.Path == "" {
		return nil, apperr.New(apperr.KindConfig, "storage.buildLocal", "config.path is required")
	}
	return &localAdapter{root: lc.Path}, nil
}

func (a *localAdapter) resolve(key string) (string, error) {
	cleaned := filepath.Clean("/" + key)
	return filepath.Join(a.root, cleaned), nil
}

func (a *localAdapter) Upload(ctx context.Context, key string, r io.Reader) (int64, error) {
	path, err := a.resolve(key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return 0, apperr.Wrap(apperr.KindIO, "storage.local.Upload", "creating directory", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindIO, "storage.local.Upload", "creating file", err)
	}
	defer f.Close()

	n, err := io.Copy(f, r)
	if err != nil {
		return n, apperr.Wrap(apperr.KindIO, "storage.local.Upload", "writing file", err)
	}
	return n, nil
}

func (a *localAdapter) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := a.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.Wrap(apperr.KindIO, "storage.local.Download", "object not found", err)
		}
		return nil, apperr.Wrap(apperr.KindIO, "storage.local.Download", "opening file", err)
	}
	return f, nil
}

func (a *localAdapter) Delete(ctx context.Context, key string) error {
	path, err := a.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return apperr.Wrap(apperr.KindIO, "storage.local.Delete", "removing file", err)
	}
	return nil
}

func (a *localAdapter) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	dir := path.Dir(prefix)
	absDir, err := a.resolve(dir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(absDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.KindIO, "storage.local.List", "reading directory", err)
	}

	var objs []ObjectInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		key := path.Join(dir, e.Name())
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		objs = append(objs, ObjectInfo{Key: key, SizeBytes: info.Size(), LastModified: info.ModTime()})
	}
	sort.Slice(objs, func(i, j int) bool { return objs[i].Key < objs[j].Key })
	return objs, nil
}

func (a *localAdapter) Test(ctx context.Context) error {
	if err := os.MkdirAll(a.root, 0o750); err != nil {
		return apperr.Wrap(apperr.KindIO, "storage.local.Test", "root directory not writable", err)
	}
	return nil
}
