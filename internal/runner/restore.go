package runner

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/skyfay/dbackup/internal/apperr"
	"github.com/skyfay/dbackup/internal/codec"
	"github.com/skyfay/dbackup/internal/database"
	"github.com/skyfay/dbackup/internal/db"
)

// RestoreRequest names one artifact and where it should be applied. Mapping
// is passed through to the target adapter's Restore (the MySQL adapter
// rewrites the dump with it; the others use it to pick target names) —
// nil means "restore everything into TargetSourceID's configured database".
type RestoreRequest struct {
	TargetSourceID      uuid.UUID
	DestinationID       uuid.UUID
	ArtifactKey         string
	EncryptionProfileID *uuid.UUID
	Compression         string
	Mapping             map[string]database.RestoreTarget
	Privileged          *database.PrivilegedAuth
}

// Restore executes the mirror-image pipeline (spec §4.5): resolve →
// download → [decrypt → decompress] → prepareRestore → restore subprocess
// → finalize. Like Run, stage errors are captured on the execution row
// rather than returned once one has been created.
func (r *Runner) Restore(ctx context.Context, req RestoreRequest, progress ProgressFunc) (*db.Execution, error) {
	rc := &runContext{progress: progress, startedAt: time.Now().UTC()}

	target, destAdapter, execution, err := r.resolveRestore(ctx, rc, req)
	if err != nil {
		return nil, err
	}
	rc.execution = execution

	targetAdapter, err := buildDatabaseAdapter(target)
	if err != nil {
		r.fail(ctx, rc, err)
		return rc.execution, nil
	}

	r.runRestorePipeline(ctx, rc, req, destAdapter, targetAdapter)
	return rc.execution, nil
}

func (r *Runner) resolveRestore(ctx context.Context, rc *runContext, req RestoreRequest) (*db.Source, storageAdapterLike, *db.Execution, error) {
	target, err := r.sources.GetByID(ctx, req.TargetSourceID)
	if err != nil {
		return nil, nil, nil, apperr.Wrap(apperr.KindConfig, "runner.resolveRestore", "loading target source", err)
	}
	dest, err := r.destinations.GetByID(ctx, req.DestinationID)
	if err != nil {
		return nil, nil, nil, apperr.Wrap(apperr.KindConfig, "runner.resolveRestore", "loading destination", err)
	}
	adapter, err := buildStorageAdapter(dest)
	if err != nil {
		return nil, nil, nil, err
	}

	now := time.Now().UTC()
	execution := &db.Execution{
		JobID:     uuid.Nil,
		SourceID:  target.ID,
		Kind:      "restore",
		Status:    "running",
		Trigger:   "manual",
		StartedAt: &now,
	}
	if err := r.executions.Create(ctx, execution); err != nil {
		return nil, nil, nil, apperr.Wrap(apperr.KindInternal, "runner.resolveRestore", "creating execution row", err)
	}
	rc.log(LevelInfo, "restore started for source "+target.Name+" from "+req.ArtifactKey)
	rc.reportProgress(StageResolve, 1)
	return target, adapter, execution, nil
}

// storageAdapterLike avoids importing internal/storage twice under a
// different alias; it is the same interface as storage.Adapter.
type storageAdapterLike interface {
	Download(ctx context.Context, key string) (io.ReadCloser, error)
}

func (r *Runner) runRestorePipeline(ctx context.Context, rc *runContext, req RestoreRequest, destAdapter storageAdapterLike, targetAdapter database.Adapter) {
	localPath, err := r.downloadArtifact(ctx, rc, destAdapter, req.ArtifactKey)
	if err != nil {
		r.fail(ctx, rc, err)
		return
	}
	defer os.Remove(localPath)

	plainPath, err := r.reverseTransform(ctx, rc, req, localPath)
	if err != nil {
		r.fail(ctx, rc, err)
		return
	}
	if plainPath != localPath {
		defer os.Remove(plainPath)
	}

	if err := r.prepareRestore(ctx, rc, targetAdapter, req); err != nil {
		r.fail(ctx, rc, err)
		return
	}

	f, err := os.Open(plainPath)
	if err != nil {
		r.fail(ctx, rc, apperr.Wrap(apperr.KindIO, "runner.runRestorePipeline", "opening decoded dump", err))
		return
	}
	defer f.Close()

	progressFn := func(pct float64) { rc.reportProgress(StageDump, pct/100) }
	logFn := func(line string) { rc.log(LevelInfo, line) }
	if err := targetAdapter.Restore(ctx, f, req.Mapping, req.Privileged, progressFn, logFn); err != nil {
		r.fail(ctx, rc, err)
		return
	}

	r.finalize(ctx, rc, "succeeded", "")
}

// downloadArtifact is stage 2: pull the artifact to a local temp file.
func (r *Runner) downloadArtifact(ctx context.Context, rc *runContext, adapter storageAdapterLike, key string) (string, error) {
	src, err := adapter.Download(ctx, key)
	if err != nil {
		return "", apperr.Wrap(apperr.KindConnection, "runner.downloadArtifact", "downloading artifact", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "restore_*.tmp")
	if err != nil {
		return "", apperr.Wrap(apperr.KindIO, "runner.downloadArtifact", "creating temp file", err)
	}
	defer tmp.Close()

	n, err := io.Copy(tmp, src)
	if err != nil {
		os.Remove(tmp.Name())
		return "", apperr.Wrap(apperr.KindIO, "runner.downloadArtifact", "writing temp file", err)
	}
	rc.log(LevelInfo, fmt.Sprintf("downloaded artifact %s (%d bytes)", key, n))
	rc.reportProgress(StageDump, 0.2)
	return tmp.Name(), nil
}

// reverseTransform is stage 3: decrypt (if the artifact was encrypted) then
// decompress, the inverse of Runner.transform. The sidecar's IV and auth tag
// are fetched alongside the artifact since decryption cannot proceed without
// them — the ciphertext stream never carries that material itself.
func (r *Runner) reverseTransform(ctx context.Context, rc *runContext, req RestoreRequest, path string) (string, error) {
	current := path

	if req.EncryptionProfileID != nil {
		profile, err := r.profiles.GetByID(ctx, *req.EncryptionProfileID)
		if err != nil {
			return "", apperr.Wrap(apperr.KindConfig, "runner.reverseTransform", "loading encryption profile", err)
		}
		key, err := hex.DecodeString(string(profile.WrappedKey))
		if err != nil || len(key) != 32 {
			return "", apperr.New(apperr.KindConfig, "runner.reverseTransform", "encryption profile data key is invalid")
		}

		meta, metaErr := r.loadSidecar(ctx, req)
		if metaErr != nil || meta.Encryption == nil {
			return "", apperr.New(apperr.KindConfig, "runner.reverseTransform", "sidecar missing iv/authTag for encrypted artifact")
		}
		iv, err := hex.DecodeString(meta.Encryption.IV)
		if err != nil {
			return "", apperr.New(apperr.KindConfig, "runner.reverseTransform", "sidecar iv is not valid hex")
		}
		authTag, err := hex.DecodeString(meta.Encryption.AuthTag)
		if err != nil {
			return "", apperr.New(apperr.KindConfig, "runner.reverseTransform", "sidecar authTag is not valid hex")
		}

		decrypted, err := r.applyStage(current, func(dst io.Writer, src io.Reader) error {
			dr, derr := codec.NewDecryptReader(src, key, iv, authTag)
			if derr != nil {
				return derr
			}
			_, err := io.Copy(dst, dr)
			return err
		})
		if err != nil {
			return "", err
		}
		if current != path {
			os.Remove(current)
		}
		current = decrypted
	}

	if req.Compression != "" && req.Compression != "none" {
		decompressed, err := r.applyStage(current, func(dst io.Writer, src io.Reader) error {
			dr, derr := codec.NewDecompressReader(src, codec.Compression(req.Compression))
			if derr != nil {
				return derr
			}
			_, err := io.Copy(dst, dr)
			return err
		})
		if err != nil {
			return "", err
		}
		if current != path {
			os.Remove(current)
		}
		current = decompressed
	}

	rc.reportProgress(StageTransform, 1)
	return current, nil
}

// loadSidecar fetches and parses the ".meta.json" document next to the
// artifact. Restore cannot recover the encryption IV and auth tag any other
// way: the IV is generated fresh per artifact and neither is stored in the
// ciphertext (spec §4.1).
func (r *Runner) loadSidecar(ctx context.Context, req RestoreRequest) (*sidecarMetadata, error) {
	dest, err := r.destinations.GetByID(ctx, req.DestinationID)
	if err != nil {
		return nil, err
	}
	adapter, err := buildStorageAdapter(dest)
	if err != nil {
		return nil, err
	}
	rc, err := adapter.Download(ctx, req.ArtifactKey+".meta.json")
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	var meta sidecarMetadata
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// prepareRestore is stage 4. It checks only that the target database is
// reachable (adapter.Test) and maps a failure to apperr.KindAuth. It does
// not probe write permission, does not use req.Privileged, and does not
// create missing databases.
func (r *Runner) prepareRestore(ctx context.Context, rc *runContext, adapter database.Adapter, req RestoreRequest) error {
	if _, err := adapter.Test(ctx); err != nil {
		return apperr.Wrap(apperr.KindAuth, "runner.prepareRestore", "target database unreachable", err)
	}
	rc.log(LevelInfo, "target database reachable, proceeding with restore")
	return nil
}
