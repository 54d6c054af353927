// internal/api/handler/api/runs.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/newthinker/portsim/internal/api/response"
	"github.com/newthinker/portsim/internal/config"
	"github.com/newthinker/portsim/internal/core"
	"github.com/newthinker/portsim/internal/portfolio"
	"github.com/newthinker/portsim/internal/report"
	"github.com/newthinker/portsim/internal/runner"
)

// maxRequestBytes caps the body of a run request.
const maxRequestBytes = 1 << 20

// ResultLoader reads archived results of runs no longer held in memory.
type ResultLoader interface {
	LoadResult(ctx context.Context, id string) (*portfolio.Result, error)
}

// RunSummary is one entry of the run listing.
type RunSummary struct {
	JobID     string        `json:"job_id"`
	Name      string        `json:"name,omitempty"`
	Status    runner.Status `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// RunsHandler handles simulation run API requests.
type RunsHandler struct {
	runner   *runner.Runner
	archive  ResultLoader
	defaults config.SimulationConfig
}

// NewRunsHandler creates a new runs handler. archive may be nil.
func NewRunsHandler(r *runner.Runner, archive ResultLoader, defaults config.SimulationConfig) *RunsHandler {
	return &RunsHandler{runner: r, archive: archive, defaults: defaults}
}

// Create validates a request and starts it as a background job.
func (h *RunsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var file config.RequestFile
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&file); err != nil {
		response.Error(w, http.StatusBadRequest,
			core.WrapError(core.ErrConfigInvalid, err))
		return
	}

	req, err := file.Request(h.defaults)
	if err != nil {
		response.Fail(w, err)
		return
	}
	// reject bad requests before a job exists for them
	if _, err := portfolio.NewPlan(req); err != nil {
		response.Fail(w, err)
		return
	}

	j := h.runner.Submit(file.Name, req)
	response.JSON(w, http.StatusAccepted, map[string]any{
		"job_id": j.ID,
		"status": j.Status,
	})
}

// List returns every tracked job, oldest first.
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs := h.runner.Store().List()
	out := make([]RunSummary, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, RunSummary{
			JobID:     j.ID,
			Name:      j.Name,
			Status:    j.Status,
			CreatedAt: j.CreatedAt,
			UpdatedAt: j.UpdatedAt,
		})
	}
	response.JSON(w, http.StatusOK, out)
}

// Get returns the status of a run and its result once complete. Runs
// evicted from memory are served from the archive.
func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	j, err := h.runner.Store().Get(id)
	if err != nil {
		res, aerr := h.archived(r.Context(), id, err)
		if aerr != nil {
			response.Fail(w, aerr)
			return
		}
		response.JSON(w, http.StatusOK, map[string]any{
			"job_id": id,
			"status": runner.StatusComplete,
			"result": res,
		})
		return
	}

	resp := map[string]any{
		"job_id": j.ID,
		"status": j.Status,
	}
	if j.Name != "" {
		resp["name"] = j.Name
	}
	// cancelled runs carry their partial result
	if j.Result != nil {
		resp["result"] = j.Result
	}
	if j.Error != nil {
		resp["error"] = map[string]string{
			"code":    j.Error.Code,
			"message": j.Error.Message,
		}
	}
	response.JSON(w, http.StatusOK, resp)
}

// Summary writes the plain-text report of a finished run.
func (h *RunsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	res, err := h.result(r.Context(), r.PathValue("id"))
	if err != nil {
		response.Fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	report.WriteSummary(w, res)
}

// Chart renders the value curve of a finished run as PNG.
func (h *RunsHandler) Chart(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	res, err := h.result(r.Context(), id)
	if err != nil {
		response.Fail(w, err)
		return
	}
	png, err := report.RenderChart(res, id)
	if err != nil {
		response.Fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

// result returns the result of a run, from memory or the archive.
func (h *RunsHandler) result(ctx context.Context, id string) (*portfolio.Result, error) {
	j, err := h.runner.Store().Get(id)
	if err != nil {
		return h.archived(ctx, id, err)
	}
	if j.Result == nil {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("run %s is %s", id, j.Status))
	}
	return j.Result, nil
}

func (h *RunsHandler) archived(ctx context.Context, id string, notFound error) (*portfolio.Result, error) {
	if h.archive == nil {
		return nil, notFound
	}
	res, err := h.archive.LoadResult(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrNoData) || errors.Is(err, core.ErrConfigInvalid) {
			return nil, notFound
		}
		return nil, err
	}
	return res, nil
}
