// Package batch implements the batch-of-URLs HTTP endpoints: submit a
// group of 2-5 URLs for comparison, fetch batch status, fetch the
// resulting comparison, and fetch the bundled comparison+artifacts view.
package batch

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"webscope/internal/core/domain/analysis"
	batchDomain "webscope/internal/core/domain/batch"
	appErrors "webscope/pkg/errors"
	"webscope/pkg/response"
	"webscope/pkg/ulid"
)

// Submitter enqueues a freshly created batch id for pipeline processing.
type Submitter interface {
	Submit(id ulid.ULID) error
}

// Handler serves the /v1/batches HTTP surface.
type Handler struct {
	logger      *slog.Logger
	batches     batchDomain.BatchRepository
	comparisons batchDomain.ComparisonRepository
	submitter   Submitter
}

// New creates a batch Handler.
func New(logger *slog.Logger, batches batchDomain.BatchRepository, comparisons batchDomain.ComparisonRepository, submitter Submitter) *Handler {
	return &Handler{logger: logger, batches: batches, comparisons: comparisons, submitter: submitter}
}

// @Summary Submit a batch of URLs for comparison
// @Description Creates a batch of 2-5 jobs analyzed together for comparison.
// @Tags Batches
// @Accept json
// @Produce json
// @Param request body CreateRequest true "URLs to compare"
// @Success 202 {object} CreateResponse
// @Failure 400 {object} response.APIError
// @Router /v1/batches [post]
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "Invalid request body", err.Error())
		return
	}

	members, err := toMemberInputs(req)
	if err != nil {
		response.Error(c, err)
		return
	}

	b, jobs, err := h.batches.Create(c.Request.Context(), req.Name, members)
	if err != nil {
		response.Error(c, err)
		return
	}

	if err := h.submitter.Submit(b.ID); err != nil {
		h.logger.Error("failed to enqueue batch", "batch_id", b.ID.String(), "error", err)
		response.Error(c, appErrors.NewServiceUnavailableError("batch accepted but queue is saturated; it will not run until resubmitted"))
		return
	}

	jobIDs := make([]string, len(jobs))
	for i, j := range jobs {
		jobIDs[i] = j.ID.String()
	}

	h.logger.Info("batch submitted", "batch_id", b.ID.String(), "members", len(jobs))
	response.Accepted(c, &CreateResponse{ID: b.ID.String(), Status: string(b.Status), JobIDs: jobIDs})
}

// @Summary Fetch batch status
// @Description Returns a batch's current lifecycle state and member summaries.
// @Tags Batches
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} StatusResponse
// @Failure 404 {object} response.APIError
// @Router /v1/batches/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	id, err := ulid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, appErrors.NewValidationError("id", "must be a valid ULID"))
		return
	}

	b, jobs, _, err := h.batches.Snapshot(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, toStatusResponse(b, jobs))
}

// @Summary Fetch batch comparison
// @Description Returns the rule/semantic rankings and narrative comparison for a completed batch.
// @Tags Batches
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} ComparisonResponse
// @Failure 404 {object} response.APIError
// @Router /v1/batches/{id}/comparison [get]
func (h *Handler) GetComparison(c *gin.Context) {
	id, err := ulid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, appErrors.NewValidationError("id", "must be a valid ULID"))
		return
	}

	comparison, err := h.comparisons.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, toComparisonResponse(comparison))
}

// @Summary Fetch batch results
// @Description Returns the comparison alongside every completed member's artifact summary.
// @Tags Batches
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} ResultsResponse
// @Failure 404 {object} response.APIError
// @Router /v1/batches/{id}/results [get]
func (h *Handler) GetResults(c *gin.Context) {
	id, err := ulid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, appErrors.NewValidationError("id", "must be a valid ULID"))
		return
	}

	comparison, err := h.comparisons.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	b, jobs, artifacts, err := h.batches.Snapshot(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, &ResultsResponse{
		Comparison: toComparisonResponse(comparison),
		Artifacts:  toMemberArtifacts(b.Members, jobs, artifacts),
	})
}

func toMemberInputs(req CreateRequest) ([]batchDomain.MemberInput, error) {
	if len(req.URLs) < batchDomain.MinMembers || len(req.URLs) > batchDomain.MaxMembers {
		return nil, appErrors.NewValidationError("urls", "batch must contain between 2 and 5 URLs")
	}
	if len(req.Name) > batchDomain.MaxNameBytes {
		return nil, appErrors.NewValidationError("name", "must be at most 255 bytes")
	}

	members := make([]batchDomain.MemberInput, len(req.URLs))
	for i, u := range req.URLs {
		if err := validateURL(u); err != nil {
			return nil, err
		}
		label := u
		if i < len(req.Labels) && req.Labels[i] != "" {
			label = req.Labels[i]
		}
		members[i] = batchDomain.MemberInput{
			URL:        u,
			Label:      label,
			IsPrimary:  i == 0,
			OrderIndex: i,
		}
	}
	return members, nil
}

// validateURL mirrors the job handler's scheme/host boundary checks; it is
// duplicated rather than shared across handler packages to keep each
// handler package importable without pulling in the other's domain.
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
