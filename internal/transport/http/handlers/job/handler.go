// Package job implements the single-URL analysis HTTP endpoints: submit a
// URL for analysis, fetch its status, fetch its completed artifact.
package job

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"webscope/internal/core/domain/analysis"
	appErrors "webscope/pkg/errors"
	"webscope/pkg/response"
	"webscope/pkg/ulid"
)

// Submitter enqueues a freshly created job id for pipeline processing.
type Submitter interface {
	Submit(id ulid.ULID) error
}

// Handler serves the /v1/jobs HTTP surface.
type Handler struct {
	logger    *slog.Logger
	jobs      analysis.JobRepository
	artifacts analysis.ArtifactRepository
	submitter Submitter
}

// New creates a job Handler.
func New(logger *slog.Logger, jobs analysis.JobRepository, artifacts analysis.ArtifactRepository, submitter Submitter) *Handler {
	return &Handler{logger: logger, jobs: jobs, artifacts: artifacts, submitter: submitter}
}

// @Summary Submit a URL for analysis
// @Description Creates a job that crawls, scores, and persists a single URL.
// @Tags Jobs
// @Accept json
// @Produce json
// @Param request body CreateRequest true "URL to analyze"
// @Success 202 {object} CreateResponse
// @Failure 400 {object} response.APIError
// @Router /v1/jobs [post]
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "Invalid request body", err.Error())
		return
	}

	if err := validateURL(req.URL); err != nil {
		response.Error(c, err)
		return
	}

	j, err := h.jobs.Create(c.Request.Context(), req.URL, nil)
	if err != nil {
		response.Error(c, err)
		return
	}

	if err := h.submitter.Submit(j.ID); err != nil {
		h.logger.Error("failed to enqueue job", "job_id", j.ID.String(), "error", err)
		response.Error(c, appErrors.NewServiceUnavailableError("job accepted but queue is saturated; it will not run until resubmitted"))
		return
	}

	h.logger.Info("job submitted", "job_id", j.ID.String(), "url", j.URL)
	response.Accepted(c, &CreateResponse{ID: j.ID.String(), Status: string(j.Status)})
}

// @Summary Fetch job status
// @Description Returns a job's current lifecycle state and progress.
// @Tags Jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} StatusResponse
// @Failure 404 {object} response.APIError
// @Router /v1/jobs/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	id, err := ulid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, appErrors.NewValidationError("id", "must be a valid ULID"))
		return
	}

	j, err := h.jobs.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, toStatusResponse(j))
}

// @Summary Fetch job artifact
// @Description Returns the scored, durable artifact of a completed job.
// @Tags Jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} ArtifactResponse
// @Failure 404 {object} response.APIError
// @Router /v1/jobs/{id}/artifact [get]
func (h *Handler) GetArtifact(c *gin.Context) {
	id, err := ulid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, appErrors.NewValidationError("id", "must be a valid ULID"))
		return
	}

	a, err := h.artifacts.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, toArtifactResponse(a))
}

// validateURL enforces the scheme and length checks that belong to the
// HTTP boundary, not the orchestrator: only http/https is accepted, and
// the host must not be empty or a literal loopback/link-local address,
// since the Fetcher would otherwise happily crawl the orchestrator's own
// network.
func validateURL(raw string) error {
	if len(raw) == 0 || len(raw) > analysis.MaxURLBytes {
		return appErrors.NewValidationError("url", fmt.Sprintf("must be 1-%d bytes", analysis.MaxURLBytes))
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return appErrors.NewValidationError("url", "must be a valid URL")
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return appErrors.NewValidationError("url", "must use http or https")
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return appErrors.NewValidationError("url", "must include a host")
	}
	if host == "localhost" || strings.HasPrefix(host, "127.") || strings.HasPrefix(host, "169.254.") || host == "::1" {
		return appErrors.NewValidationError("url", "must not target a loopback or link-local address")
	}

	return nil
}
