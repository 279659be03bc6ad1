package storage

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"
)

func TestLocalAdapterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	adapter, err := New(Config{
		Type:       "local",
		ConfigJSON: `{"path":"` + filepath.ToSlash(dir) + `"}`,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	payload := []byte("dump-2026-07-29.sql.gz")

	n, err := adapter.Upload(ctx, "jobs/example/2026-07-29.sql.gz", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if n != int64(len(payload)) {
		t.Fatalf("Upload returned %d bytes, want %d", n, len(payload))
	}

	r, err := adapter.Download(ctx, "jobs/example/2026-07-29.sql.gz")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	got, err := io.ReadAll(r)
	r.Close()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("downloaded content mismatch: got %q, want %q", got, payload)
	}

	objs, err := adapter.List(ctx, "jobs/example/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(objs) != 1 || objs[0].SizeBytes != int64(len(payload)) {
		t.Fatalf("List returned %+v", objs)
	}

	if err := adapter.Delete(ctx, "jobs/example/2026-07-29.sql.gz"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := adapter.Delete(ctx, "jobs/example/2026-07-29.sql.gz"); err != nil {
		t.Fatalf("Delete of missing key should be idempotent, got: %v", err)
	}
}

func TestLocalAdapterRejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	adapter, err := New(Config{Type: "local", ConfigJSON: `{"path":"` + filepath.ToSlash(dir) + `"}`})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	la := adapter.(*localAdapter)
	resolved, err := la.resolve("../../etc/passwd")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !isWithin(dir, resolved) {
		t.Fatalf("resolved path %q escapes root %q", resolved, dir)
	}
}

func isWithin(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !bytes.HasPrefix([]byte(rel), []byte(".."+string(filepath.Separator)))
}

func TestNewRejectsUnknownType(t *testing.T) {
	if _, err := New(Config{Type: "carrier-pigeon"}); err == nil {
		t.Fatal("expected error for unknown destination type")
	}
}

func TestBuildLocalRequiresPath(t *testing.T) {
	if _, err := New(Config{Type: "local", ConfigJSON: `{}`}); err == nil {
		t.Fatal("expected error when config.path is empty")
	}
}
