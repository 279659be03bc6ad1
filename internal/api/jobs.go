package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skyfay/dbackup/internal/repositories"
	"github.com/skyfay/dbackup/internal/scheduler"
)

// JobHandler implements the Job Trigger API's two operations (spec §6):
// starting a run and polling its execution.
type JobHandler struct {
	executions repositories.ExecutionRepository
	scheduler  *scheduler.Scheduler
	logger     *zap.Logger
}

// NewJobHandler builds a JobHandler.
func NewJobHandler(
	executions repositories.ExecutionRepository,
	sched *scheduler.Scheduler,
	logger *zap.Logger,
) *JobHandler {
	return &JobHandler{
		executions: executions,
		scheduler:  sched,
		logger:     logger.Named("job_handler"),
	}
}

type triggerResponse struct {
	ExecutionID string `json:"executionId"`
}

// TriggerRun handles POST /api/jobs/{jobId}/run (spec §6). It returns 202
// once scheduler.TriggerNow returns: with the execution's ID when the run
// finished within TriggerNow's two-second wait, otherwise with the job ID as
// a provisional handle. A trigger rejected by the per-job mutex gets 409.
// The caller polls GetExecution for the outcome.
func (h *JobHandler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "jobId"))
	if err != nil {
		ErrBadRequest(w, "jobId must be a valid UUID")
		return
	}

	exec, err := h.scheduler.TriggerNow(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Warn("trigger rejected", zap.String("job_id", jobID.String()), zap.Error(err))
		ErrConflict(w, err.Error())
		return
	}
	if exec == nil {
		// The run is still going and its execution ID was not reported;
		// the job ID doubles as a provisional handle, which GetExecution
		// resolves to the job's newest execution via ListByJob.
		Accepted(w, triggerResponse{ExecutionID: jobID.String()})
		return
	}

	Accepted(w, triggerResponse{ExecutionID: exec.ID.String()})
}

// executionResponse is the JSON shape returned by GetExecution (spec §6:
// "{data:{status, progress, stage, error?, logs?}}").
type executionResponse struct {
	Status   string            `json:"status"`
	Progress float64           `json:"progress"`
	Stage    string            `json:"stage,omitempty"`
	Error    string            `json:"error,omitempty"`
	Logs     []json.RawMessage `json:"logs,omitempty"`
}

// statusEnum maps the orchestrator's internal execution status values onto
// the API's closed enum (spec §6 "Pending|Running|Success|Failed"). There
// is no "partial" value in that enum — a run with some destinations failed
// is reported as Failed, with detail in the error field.
func statusEnum(internal string) string {
	switch internal {
	case "pending":
		return "Pending"
	case "running":
		return "Running"
	case "succeeded":
		return "Success"
	default: // "failed", "partial"
		return "Failed"
	}
}

// GetExecution handles GET /api/executions/{executionId}[?includeLogs=true]
// (spec §6). While the execution is still running, progress and stage come
// from the scheduler's in-memory tracker; once finalized, they are derived
// from the persisted terminal status since the row carries no running
// progress column. An ID that matches no execution is tried as a job ID and
// resolves to that job's newest execution.
func (h *JobHandler) GetExecution(w http.ResponseWriter, r *http.Request) {
	execID, err := uuid.Parse(chi.URLParam(r, "executionId"))
	if err != nil {
		ErrBadRequest(w, "executionId must be a valid UUID")
		return
	}

	exec, err := h.executions.GetByID(r.Context(), execID)
	if errors.Is(err, repositories.ErrNotFound) {
		// A provisional handle from TriggerRun is a job ID: resolve it to
		// that job's newest execution.
		byJob, _, lerr := h.executions.ListByJob(r.Context(), execID, repositories.ListOptions{Limit: 1})
		if lerr == nil && len(byJob) > 0 {
			exec, err = &byJob[0], nil
		}
	}
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to load execution", zap.String("execution_id", execID.String()), zap.Error(err))
		ErrInternal(w)
		return
	}

	resp := executionResponse{
		Status: statusEnum(exec.Status),
		Error:  exec.Error,
	}

	if exec.Status == "running" || exec.Status == "pending" {
		if pct, stage, ok := h.scheduler.Progress(exec.JobID); ok {
			resp.Progress = pct
			resp.Stage = stage
		}
	} else {
		resp.Progress = 100
	}

	if r.URL.Query().Get("includeLogs") == "true" {
		var logs []json.RawMessage
		if err := json.Unmarshal([]byte(exec.LogLines), &logs); err == nil {
			resp.Logs = logs
		}
	}

	Ok(w, resp)
}
