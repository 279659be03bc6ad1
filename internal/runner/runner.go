package runner

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skyfay/dbackup/internal/apperr"
	"github.com/skyfay/dbackup/internal/codec"
	"github.com/skyfay/dbackup/internal/database"
	"github.com/skyfay/dbackup/internal/db"
	"github.com/skyfay/dbackup/internal/metrics"
	"github.com/skyfay/dbackup/internal/repositories"
	"github.com/skyfay/dbackup/internal/retention"
	"github.com/skyfay/dbackup/internal/secret"
	"github.com/skyfay/dbackup/internal/storage"
)

// Event is emitted at Finalize for the notification dispatcher (spec §4.8)
// to pick up. Runner does not import the notification package directly —
// that would invert the one-directional dependency kept throughout this
// module (executor reports status, the caller decides what to do with it)
// — callers supply a NotifyFunc hook instead.
type Event struct {
	JobID       uuid.UUID
	ExecutionID uuid.UUID
	JobName     string
	Status      string
	Error       string
	// ErrorKind is the apperr.Kind of Error, e.g. "integrity" or "internal",
	// empty on success. Callers use it to decide whether a failure also
	// warrants a system-level escalation (spec §7 propagation rule).
	ErrorKind string
	// NotificationChannelIDs and NotificationCondition mirror the job's
	// fields so the notify hook can honor per-job dispatch configuration
	// without a second lookup.
	NotificationChannelIDs string
	NotificationCondition  string
}

// NotifyFunc is called once per completed run, success or failure.
type NotifyFunc func(ctx context.Context, event Event)

// Runner executes the backup and restore pipelines for a single job at a
// time. Safe for concurrent use across different jobs — the scheduler's
// per-job mutex (spec §4.6) is what prevents two concurrent runs of the
// *same* job, not this type.
type Runner struct {
	sources      repositories.SourceRepository
	destinations repositories.DestinationRepository
	jobs         repositories.JobRepository
	executions   repositories.ExecutionRepository
	profiles     repositories.EncryptionProfileRepository
	secrets      *secret.Store
	logger       *zap.Logger
	notify       NotifyFunc
}

// New builds a Runner. notify may be nil if the caller does not need
// completion events.
func New(
	sources repositories.SourceRepository,
	destinations repositories.DestinationRepository,
	jobs repositories.JobRepository,
	executions repositories.ExecutionRepository,
	profiles repositories.EncryptionProfileRepository,
	secrets *secret.Store,
	logger *zap.Logger,
	notify NotifyFunc,
) *Runner {
	return &Runner{
		sources:      sources,
		destinations: destinations,
		jobs:         jobs,
		executions:   executions,
		profiles:     profiles,
		secrets:      secrets,
		logger:       logger.Named("runner"),
		notify:       notify,
	}
}

// Run executes one backup of jobID end to end and returns the resulting
// execution row. The returned error is non-nil only for failures before an
// execution row could be created (e.g. the job does not exist) — once a run
// is underway, failures are captured in the execution's Status/Error fields
// instead of propagated, matching spec §4.5's "any stage error transitions
// the context to Failed... jumps directly to Finalize".
func (r *Runner) Run(ctx context.Context, jobID uuid.UUID, trigger string, progress ProgressFunc) (*db.Execution, error) {
	rc := &runContext{jobID: jobID, progress: progress, startedAt: time.Now().UTC()}

	job, jobDests, source, err := r.resolve(ctx, rc, jobID, trigger)
	if err != nil {
		return nil, err
	}
	rc.job = job
	rc.jobDests = jobDests

	sourceAdapter, err := buildDatabaseAdapter(source)
	if err != nil {
		r.fail(ctx, rc, err)
		return rc.execution, nil
	}

	r.runPipeline(ctx, rc, source, sourceAdapter)
	return rc.execution, nil
}

// resolve is stage 1: load the job with relations, decrypt configs, and
// create the running execution row.
func (r *Runner) resolve(ctx context.Context, rc *runContext, jobID uuid.UUID, trigger string) (*db.Job, []db.JobDestination, *db.Source, error) {
	job, jobDests, err := r.jobs.GetByIDWithDestinations(ctx, jobID)
	if err != nil {
		return nil, nil, nil, apperr.Wrap(apperr.KindConfig, "runner.resolve", "loading job", err)
	}
	source, err := r.sources.GetByID(ctx, job.SourceID)
	if err != nil {
		return nil, nil, nil, apperr.Wrap(apperr.KindConfig, "runner.resolve", "loading source", err)
	}
	if len(jobDests) == 0 {
		return nil, nil, nil, apperr.New(apperr.KindConfig, "runner.resolve", "job has no destinations")
	}

	now := time.Now().UTC()
	execution := &db.Execution{
		JobID:     job.ID,
		SourceID:  source.ID,
		Kind:      "backup",
		Status:    "running",
		Trigger:   trigger,
		StartedAt: &now,
	}
	if err := r.executions.Create(ctx, execution); err != nil {
		return nil, nil, nil, apperr.Wrap(apperr.KindInternal, "runner.resolve", "creating execution row", err)
	}
	rc.execution = execution
	rc.log(LevelInfo, fmt.Sprintf("job %q started (trigger=%s)", job.Name, trigger))
	rc.reportProgress(StageResolve, 1)
	return job, jobDests, source, nil
}

// runPipeline walks dump → transform → upload → sidecar → retention →
// finalize. Errors from dump/transform are fatal to the whole run; upload
// failures are per-destination and only escalate to an overall failure if
// every destination fails.
func (r *Runner) runPipeline(ctx context.Context, rc *runContext, source *db.Source, sourceAdapter database.Adapter) {
	tempPath, dumpResult, err := r.dump(ctx, rc, source, sourceAdapter)
	if err != nil {
		r.fail(ctx, rc, err)
		return
	}
	defer os.Remove(tempPath)

	finalPath, checksum, encIV, encTag, err := r.transform(ctx, rc, tempPath)
	if err != nil {
		r.fail(ctx, rc, err)
		return
	}
	if finalPath != tempPath {
		defer os.Remove(finalPath)
	}

	rc.metadata = sidecarMetadata{
		JobName:     rc.job.Name,
		SourceName:  source.Name,
		SourceType:  source.Engine,
		Databases:   databasesMetaFromLabel(dumpResult.DatabaseLabel),
		Compression: rc.job.Compression,
		CreatedAt:   time.Now().UTC(),
	}
	if rc.job.EncryptionProfile != nil {
		rc.metadata.Encryption = &encryptionMeta{
			ProfileID:    rc.job.EncryptionProfile.String(),
			IV:           hexEncode(encIV),
			AuthTag:      hexEncode(encTag),
			OriginalName: dumpResult.DatabaseLabel,
		}
	}

	results := r.upload(ctx, rc, finalPath, checksum)
	r.sidecar(ctx, rc)
	r.applyRetention(ctx, rc)

	succeeded, failed := 0, 0
	for _, res := range results {
		if res.Status == "succeeded" {
			succeeded++
		} else {
			failed++
		}
	}

	var overall string
	switch {
	case failed == 0:
		overall = "succeeded"
	case succeeded == 0:
		overall = "failed"
	default:
		overall = "partial"
	}
	r.finalize(ctx, rc, overall, "")
}

// dump is stage 2.
func (r *Runner) dump(ctx context.Context, rc *runContext, source *db.Source, adapter database.Adapter) (string, database.DumpResult, error) {
	tmp, err := os.CreateTemp("", sanitizeName(rc.job.Name)+"_"+isoTimestamp(rc.startedAt)+"_*.tmp")
	if err != nil {
		return "", database.DumpResult{}, apperr.Wrap(apperr.KindIO, "runner.dump", "creating temp file", err)
	}
	defer tmp.Close()

	progressFn := func(pct float64) { rc.reportProgress(StageDump, pct/100) }
	logFn := func(line string) { rc.log(LevelInfo, line) }

	result, err := adapter.Dump(ctx, tmp, progressFn, logFn)
	if err != nil {
		os.Remove(tmp.Name())
		return "", database.DumpResult{}, err
	}

	finalName := tmp.Name()
	if result.Extension != "" {
		renamed := tmp.Name() + result.Extension
		if err := os.Rename(tmp.Name(), renamed); err == nil {
			finalName = renamed
		}
	}

	rc.log(LevelInfo, fmt.Sprintf("dump complete: %s (%d bytes)", result.DatabaseLabel, result.BytesWritten))
	rc.reportProgress(StageDump, 1)
	return finalName, result, nil
}

// transform is stage 3: optional compression, then optional encryption.
// Returns the checksum of the plaintext dump (computed before either
// transform is applied) for the per-destination records.
func (r *Runner) transform(ctx context.Context, rc *runContext, tempPath string) (finalPath, checksum string, encIV, encTag []byte, err error) {
	checksum, err = sha256File(tempPath)
	if err != nil {
		return "", "", nil, nil, apperr.Wrap(apperr.KindIO, "runner.transform", "hashing dump", err)
	}

	current := tempPath
	if rc.job.Compression != "" && rc.job.Compression != "none" {
		compressed, err := r.applyStage(current, func(dst io.Writer, src io.Reader) error {
			w, err := codec.NewCompressWriter(dst, codec.Compression(rc.job.Compression))
			if err != nil {
				return err
			}
			if _, err := io.Copy(w, src); err != nil {
				return err
			}
			return w.Close()
		})
		if err != nil {
			return "", "", nil, nil, err
		}
		current = compressed
	}

	if rc.job.EncryptionProfile != nil {
		profile, err := r.profiles.GetByID(ctx, *rc.job.EncryptionProfile)
		if err != nil {
			return "", "", nil, nil, apperr.Wrap(apperr.KindConfig, "runner.transform", "loading encryption profile", err)
		}
		// EncryptedString.Scan already unwrapped this via the master key when
		// the profile was loaded by GORM, so WrappedKey is already the plain
		// hex data key here — no second unwrap step.
		key, err := hex.DecodeString(string(profile.WrappedKey))
		if err != nil || len(key) != 32 {
			return "", "", nil, nil, apperr.New(apperr.KindConfig, "runner.transform", "encryption profile data key is invalid")
		}

		var ew *codec.EncryptWriter
		encrypted, err := r.applyStage(current, func(dst io.Writer, src io.Reader) error {
			var werr error
			ew, werr = codec.NewEncryptWriter(dst, key)
			if werr != nil {
				return werr
			}
			if _, err := io.Copy(ew, src); err != nil {
				return err
			}
			return ew.Close()
		})
		if err != nil {
			return "", "", nil, nil, err
		}
		if current != tempPath {
			os.Remove(current)
		}
		current = encrypted
		if ew != nil {
			encIV, encTag = ew.IV, ew.Tag
		}
	}

	rc.reportProgress(StageTransform, 1)
	return current, checksum, encIV, encTag, nil
}

// applyStage streams srcPath through fn into a fresh temp file and returns
// its path.
func (r *Runner) applyStage(srcPath string, fn func(dst io.Writer, src io.Reader) error) (string, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return "", apperr.Wrap(apperr.KindIO, "runner.applyStage", "opening stage input", err)
	}
	defer src.Close()

	dst, err := os.CreateTemp("", "stage_*.tmp")
	if err != nil {
		return "", apperr.Wrap(apperr.KindIO, "runner.applyStage", "creating stage output", err)
	}
	defer dst.Close()

	if err := fn(dst, src); err != nil {
		os.Remove(dst.Name())
		return "", apperr.Wrap(apperr.KindIO, "runner.applyStage", "running stage", err)
	}
	return dst.Name(), nil
}

// upload is stage 4: fan out to every job destination in priority order,
// recording one ExecutionDestination row per attempt.
func (r *Runner) upload(ctx context.Context, rc *runContext, finalPath, checksum string) []db.ExecutionDestination {
	remoteName := sanitizeName(rc.job.Name) + "_" + isoTimestamp(rc.startedAt) + ".artifact"
	rc.remoteBase = "backups/" + sanitizeName(rc.job.Name)
	remotePath := rc.remoteBase + "/" + remoteName

	var results []db.ExecutionDestination
	for _, jd := range rc.jobDests {
		started := time.Now().UTC()
		ed := db.ExecutionDestination{
			ExecutionID:   rc.execution.ID,
			DestinationID: jd.DestinationID,
			Status:        "running",
			StartedAt:     &started,
		}

		dest, err := r.destinations.GetByID(ctx, jd.DestinationID)
		if err != nil {
			r.markDestinationFailed(rc, &ed, err)
			results = append(results, ed)
			continue
		}

		adapter, err := buildStorageAdapter(dest)
		if err != nil {
			r.markDestinationFailed(rc, &ed, err)
			results = append(results, ed)
			continue
		}

		f, err := os.Open(finalPath)
		if err != nil {
			r.markDestinationFailed(rc, &ed, err)
			results = append(results, ed)
			continue
		}
		n, err := adapter.Upload(ctx, remotePath, f)
		f.Close()
		if err != nil {
			r.markDestinationFailed(rc, &ed, err)
			results = append(results, ed)
			continue
		}

		ended := time.Now().UTC()
		ed.Status = "succeeded"
		ed.ArtifactKey = remotePath
		ed.SizeBytes = n
		ed.Checksum = checksum
		ed.EndedAt = &ended
		rc.log(LevelInfo, fmt.Sprintf("uploaded to destination %s: %s (%d bytes)", dest.Name, remotePath, n))
		metrics.ArtifactBytes.WithLabelValues(dest.Type).Observe(float64(n))

		if err := r.executions.CreateDestination(ctx, &ed); err != nil {
			rc.log(LevelError, "recording execution destination: "+err.Error())
		}
		results = append(results, ed)
	}

	rc.reportProgress(StageUpload, 1)
	return results
}

func (r *Runner) markDestinationFailed(rc *runContext, ed *db.ExecutionDestination, err error) {
	ended := time.Now().UTC()
	ed.Status = "failed"
	ed.Error = err.Error()
	ed.EndedAt = &ended
	rc.log(LevelError, "destination upload failed: "+err.Error())
	if cerr := r.executions.CreateDestination(context.Background(), ed); cerr != nil {
		rc.log(LevelError, "recording failed execution destination: "+cerr.Error())
	}
}

// sidecar is stage 5: write the metadata document alongside each uploaded
// artifact.
func (r *Runner) sidecar(ctx context.Context, rc *runContext) {
	body, err := json.Marshal(rc.metadata)
	if err != nil {
		rc.log(LevelError, "marshaling sidecar metadata: "+err.Error())
		return
	}

	dests, err := r.executions.ListDestinationsByExecution(ctx, rc.execution.ID)
	if err != nil {
		rc.log(LevelError, "listing execution destinations for sidecar: "+err.Error())
		return
	}
	for _, ed := range dests {
		if ed.Status != "succeeded" || ed.ArtifactKey == "" {
			continue
		}
		dest, err := r.destinations.GetByID(ctx, ed.DestinationID)
		if err != nil {
			continue
		}
		adapter, err := buildStorageAdapter(dest)
		if err != nil {
			continue
		}
		if _, err := adapter.Upload(ctx, ed.ArtifactKey+".meta.json", bytes.NewReader(body)); err != nil {
			rc.log(LevelWarn, fmt.Sprintf("writing sidecar for destination %s: %v", dest.Name, err))
		}
	}
	rc.reportProgress(StageSidecar, 1)
}

// applyRetention is stage 6. Errors are logged, never fatal to the run
// (spec §4.5 "Retention errors are logged but never fail the run").
func (r *Runner) applyRetention(ctx context.Context, rc *runContext) {
	if rc.job.RetentionMode == "" || rc.job.RetentionMode == "NONE" {
		rc.reportProgress(StageRetention, 1)
		return
	}

	dests, err := r.executions.ListDestinationsByExecution(ctx, rc.execution.ID)
	if err != nil {
		rc.log(LevelWarn, "retention: listing execution destinations: "+err.Error())
		rc.reportProgress(StageRetention, 1)
		return
	}

	policy := retention.Policy{
		SimpleKeepCount: rc.job.RetentionSimpleN,
		Daily:           rc.job.RetentionDaily,
		Weekly:          rc.job.RetentionWeekly,
		Monthly:         rc.job.RetentionMonthly,
		Yearly:          rc.job.RetentionYearly,
	}
	if rc.job.RetentionMode == "SMART" {
		policy.Mode = retention.ModeSmart
	} else {
		policy.Mode = retention.ModeSimple
	}

	now := time.Now().UTC()
	for _, ed := range dests {
		if ed.Status != "succeeded" {
			continue
		}
		dest, err := r.destinations.GetByID(ctx, ed.DestinationID)
		if err != nil {
			continue
		}
		adapter, err := buildStorageAdapter(dest)
		if err != nil {
			continue
		}

		objs, err := adapter.List(ctx, rc.remoteBase+"/")
		if err != nil {
			rc.log(LevelWarn, fmt.Sprintf("retention: listing destination %s: %v", dest.Name, err))
			continue
		}

		artifacts, metaByKey := artifactsFromListing(objs)
		resolveLocked(ctx, adapter, artifacts, metaByKey)
		_, drop := retention.Plan(artifacts, policy, now)

		for _, a := range drop {
			if err := adapter.Delete(ctx, a.Key); err != nil {
				rc.log(LevelWarn, fmt.Sprintf("retention: deleting %s: %v", a.Key, err))
			}
			if metaKey, ok := metaByKey[a.Key]; ok {
				_ = adapter.Delete(ctx, metaKey)
			}
		}
	}
	rc.reportProgress(StageRetention, 1)
}

// artifactsFromListing turns a raw object listing into retention.Artifact
// values, excluding the ".meta.json" sidecars themselves and pairing each
// artifact with its sidecar key (if any) so retention can delete both
// together and resolveLocked can read each sidecar's locked flag.
func artifactsFromListing(objs []storage.ObjectInfo) ([]retention.Artifact, map[string]string) {
	sidecars := make(map[string]bool)
	metaByKey := make(map[string]string)
	for _, o := range objs {
		if len(o.Key) > len(".meta.json") && o.Key[len(o.Key)-len(".meta.json"):] == ".meta.json" {
			sidecars[o.Key] = true
		}
	}

	var artifacts []retention.Artifact
	for _, o := range objs {
		if sidecars[o.Key] {
			continue
		}
		metaKey := o.Key + ".meta.json"
		if sidecars[metaKey] {
			metaByKey[o.Key] = metaKey
		}
		artifacts = append(artifacts, retention.Artifact{Key: o.Key, LastModified: o.LastModified})
	}
	return artifacts, metaByKey
}

// resolveLocked downloads and parses each artifact's sidecar to populate
// Locked in place (spec §4.5 step 6 "read each .meta.json, tolerating
// missing or invalid as unlocked"). A missing sidecar, a download error, or
// malformed JSON all leave Locked at its zero value.
func resolveLocked(ctx context.Context, adapter storage.Adapter, artifacts []retention.Artifact, metaByKey map[string]string) {
	for i := range artifacts {
		metaKey, ok := metaByKey[artifacts[i].Key]
		if !ok {
			continue
		}
		rd, err := adapter.Download(ctx, metaKey)
		if err != nil {
			continue
		}
		body, err := io.ReadAll(rd)
		rd.Close()
		if err != nil {
			continue
		}
		var meta sidecarMetadata
		if err := json.Unmarshal(body, &meta); err != nil {
			continue
		}
		artifacts[i].Locked = meta.Locked
	}
}

// finalize is stage 7, always run (success or failure path).
func (r *Runner) finalize(ctx context.Context, rc *runContext, status, errMsg string) {
	r.finalizeWithKind(ctx, rc, status, errMsg, "")
}

func (r *Runner) finalizeWithKind(ctx context.Context, rc *runContext, status, errMsg string, errKind apperr.Kind) {
	rc.status = status
	ended := time.Now().UTC()
	rc.execution.Status = status
	rc.execution.EndedAt = &ended
	rc.execution.Error = errMsg

	logBody, err := json.Marshal(rc.logs)
	if err == nil {
		rc.execution.LogLines = string(logBody)
	}

	if err := r.executions.Update(ctx, rc.execution); err != nil {
		r.logger.Error("updating execution at finalize", zap.Error(err))
	}

	if rc.job != nil {
		if jobErr := r.jobs.UpdateSchedule(ctx, rc.job.ID, rc.startedAt, time.Time{}); jobErr != nil {
			r.logger.Warn("updating job last-run timestamp", zap.Error(jobErr))
		}
	}

	metrics.ExecutionsTotal.WithLabelValues(rc.execution.Kind, status).Inc()
	metrics.ExecutionDuration.WithLabelValues(rc.execution.Kind).Observe(ended.Sub(rc.startedAt).Seconds())

	if r.notify != nil {
		event := Event{
			ExecutionID: rc.execution.ID,
			Status:      status,
			Error:       errMsg,
			ErrorKind:   string(errKind),
		}
		if rc.job != nil {
			event.JobID = rc.job.ID
			event.JobName = rc.job.Name
			event.NotificationChannelIDs = rc.job.NotificationChannelIDs
			event.NotificationCondition = rc.job.NotificationCondition
		}
		r.notify(ctx, event)
	}
	rc.reportProgress(StageFinalize, 1)
}

func (r *Runner) fail(ctx context.Context, rc *runContext, err error) {
	rc.log(LevelError, err.Error())
	if rc.execution == nil {
		return
	}
	r.finalizeWithKind(ctx, rc, "failed", err.Error(), apperr.KindOf(err))
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hexEncode(b []byte) string {
	if b == nil {
		return ""
	}
	return hex.EncodeToString(b)
}

// databasesMetaFromLabel turns an adapter's human DatabaseLabel ("Single
// DB", "3 DBs", "All DBs", "Unknown") into the sidecar's {count, label}
// pair. Count is the literal "All" for server-wide and unrecognized dumps.
func databasesMetaFromLabel(label string) databasesMeta {
	switch label {
	case "Single DB":
		return databasesMeta{Count: 1, Label: label}
	case "All DBs", "Unknown", "":
		return databasesMeta{Count: "All", Label: label}
	}
	var n int
	if _, err := fmt.Sscanf(label, "%d DBs", &n); err == nil && n > 0 {
		return databasesMeta{Count: n, Label: label}
	}
	return databasesMeta{Count: "All", Label: label}
}

