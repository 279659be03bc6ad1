package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/oauth2"
	oauth2google "golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/skyfay/dbackup/internal/apperr"
)

// gdriveConfig is the "config" JSON shape for the Google Drive backend.
type gdriveConfig struct {
	FolderID   string `json:"folder_id"`
	PathPrefix string `json:"path_prefix"`
}

// gdriveCredentials is the "credentials" JSON shape for the Google Drive
// backend: a previously obtained OAuth2 token (refresh_token, access_token,
// etc.) plus the client ID/secret used to refresh it.
type gdriveCredentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`
}

type gdriveAdapter struct {
	svc      *drive.Service
	folderID string
	prefix   string
}

func buildGDrive(cfg Config) (Adapter, error) {
	var gc gdriveConfig
	if err := unmarshalConfig(cfg.ConfigJSON, &gc); err != nil {
		return nil, err
	}
	if gc.FolderID == "" {
		return nil, apperr.New(apperr.KindConfig, "storage.buildGDrive", "config.folder_id is required")
	}

	var creds gdriveCredentials
	if cfg.Credentials != "" {
		if err := unmarshalConfig(cfg.Credentials, &creds); err != nil {
			return nil, err
		}
	}
	if creds.RefreshToken == "" {
		return nil, apperr.New(apperr.KindConfig, "storage.buildGDrive", "credentials.refresh_token is required")
	}

	oauthCfg := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint:     oauth2google.Endpoint,
	}
	ts := oauthCfg.TokenSource(context.Background(), &oauth2.Token{RefreshToken: creds.RefreshToken})

	svc, err := drive.NewService(context.Background(), option.WithTokenSource(ts))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConfig, "storage.buildGDrive", "constructing drive client", err)
	}

	return &gdriveAdapter{svc: svc, folderID: gc.FolderID, prefix: gc.PathPrefix}, nil
}

func (a *gdriveAdapter) key(k string) string {
	if a.prefix == "" {
		return k
	}
	return a.prefix + "/" + k
}

// findFile resolves a key to a Drive file ID within the configured folder.
// Drive has no native path hierarchy inside a folder — the full key is
// stored verbatim as the file name, so lookups list-and-match by name.
func (a *gdriveAdapter) findFile(key string) (*drive.File, error) {
	q := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false", escapeQuery(key), a.folderID)
	list, err := a.svc.Files.List().Q(q).Fields("files(id, name, size, modifiedTime)").Do()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConnection, "storage.gdrive.findFile", "Files.List failed", err)
	}
	if len(list.Files) == 0 {
		return nil, apperr.New(apperr.KindIO, "storage.gdrive.findFile", "object not found")
	}
	return list.Files[0], nil
}

func escapeQuery(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}

func (a *gdriveAdapter) Upload(ctx context.Context, key string, r io.Reader) (int64, error) {
	full := a.key(key)
	f := &drive.File{Name: full, Parents: []string{a.folderID}}
	created, err := a.svc.Files.Create(f).Media(r).Fields("id, size").Context(ctx).Do()
	if err != nil {
		return 0, apperr.Wrap(apperr.KindConnection, "storage.gdrive.Upload", "Files.Create failed", err)
	}
	return created.Size, nil
}

func (a *gdriveAdapter) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := a.findFile(a.key(key))
	if err != nil {
		return nil, err
	}
	resp, err := a.svc.Files.Get(f.Id).Context(ctx).Download()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConnection, "storage.gdrive.Download", "Files.Get download failed", err)
	}
	return resp.Body, nil
}

func (a *gdriveAdapter) Delete(ctx context.Context, key string) error {
	f, err := a.findFile(a.key(key))
	if err != nil {
		if apperr.KindOf(err) == apperr.KindIO {
			return nil // already absent
		}
		return err
	}
	if err := a.svc.Files.Delete(f.Id).Context(ctx).Do(); err != nil {
		return apperr.Wrap(apperr.KindConnection, "storage.gdrive.Delete", "Files.Delete failed", err)
	}
	return nil
}

func (a *gdriveAdapter) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	full := a.key(prefix)
	q := fmt.Sprintf("'%s' in parents and trashed = false", a.folderID)
	list, err := a.svc.Files.List().Q(q).Fields("files(id, name, size, modifiedTime)").Context(ctx).Do()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConnection, "storage.gdrive.List", "Files.List failed", err)
	}

	var objs []ObjectInfo
	for _, f := range list.Files {
		if !strings.HasPrefix(f.Name, full) {
			continue
		}
		modTime, _ := time.Parse(time.RFC3339, f.ModifiedTime)
		objs = append(objs, ObjectInfo{Key: f.Name, SizeBytes: f.Size, LastModified: modTime})
	}
	return objs, nil
}

func (a *gdriveAdapter) Test(ctx context.Context) error {
	_, err := a.svc.Files.Get(a.folderID).Fields("id").Context(ctx).Do()
	if err != nil {
		return apperr.Wrap(apperr.KindConnection, "storage.gdrive.Test", "folder not reachable", err)
	}
	return nil
}
