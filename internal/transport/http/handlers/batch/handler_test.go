package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"webscope/internal/core/domain/analysis"
	batchDomain "webscope/internal/core/domain/batch"
	apperrors "webscope/pkg/errors"
	"webscope/pkg/response"
	"webscope/pkg/ulid"
)

type mockBatchRepo struct {
	mock.Mock
}

func (m *mockBatchRepo) Create(ctx context.Context, name string, members []batchDomain.MemberInput) (*batchDomain.Batch, []*analysis.Job, error) {
	args := m.Called(ctx, name, members)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*batchDomain.Batch), args.Get(1).([]*analysis.Job), args.Error(2)
}

func (m *mockBatchRepo) Get(ctx context.Context, id ulid.ULID) (*batchDomain.Batch, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*batchDomain.Batch), args.Error(1)
}

func (m *mockBatchRepo) Advance(ctx context.Context, id ulid.ULID, mutation batchDomain.Mutation) (*batchDomain.Batch, error) {
	args := m.Called(ctx, id, mutation)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*batchDomain.Batch), args.Error(1)
}

func (m *mockBatchRepo) Snapshot(ctx context.Context, id ulid.ULID) (*batchDomain.Batch, []*analysis.Job, []*analysis.Artifact, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, nil, nil, args.Error(3)
	}
	return args.Get(0).(*batchDomain.Batch), args.Get(1).([]*analysis.Job), args.Get(2).([]*analysis.Artifact), args.Error(3)
}

type mockComparisonRepo struct {
	mock.Mock
}

func (m *mockComparisonRepo) Save(ctx context.Context, comparison *batchDomain.Comparison) error {
	args := m.Called(ctx, comparison)
	return args.Error(0)
}

func (m *mockComparisonRepo) Get(ctx context.Context, batchID ulid.ULID) (*batchDomain.Comparison, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*batchDomain.Comparison), args.Error(1)
}

type mockSubmitter struct {
	mock.Mock
}

func (m *mockSubmitter) Submit(id ulid.ULID) error {
	args := m.Called(id)
	return args.Error(0)
}

func createTestHandler() (*Handler, *mockBatchRepo, *mockComparisonRepo, *mockSubmitter) {
	batches := &mockBatchRepo{}
	comparisons := &mockComparisonRepo{}
	submitter := &mockSubmitter{}
	handler := New(slog.Default(), batches, comparisons, submitter)
	return handler, batches, comparisons, submitter
}

func createTestGinContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	return ctx, recorder
}

// TestHandler_Get exercises GET /v1/batches/:id. It asserts that member
// status/progress are populated from the snapshot's Jobs, not left at
// their zero value: toStatusResponse has no other source for them, since
// batch.Member itself carries no status or progress.
func TestHandler_Get(t *testing.T) {
	batchID := ulid.New()
	primaryJobID := ulid.New()
	secondJobID := ulid.New()

	b := &batchDomain.Batch{
		ID:     batchID,
		Name:   "comparison",
		Status: batchDomain.Processing,
		Total:  2,
		Members: []batchDomain.Member{
			{ChildJobID: primaryJobID, Label: "a", IsPrimary: true, OrderIndex: 0},
			{ChildJobID: secondJobID, Label: "b", IsPrimary: false, OrderIndex: 1},
		},
	}
	jobs := []*analysis.Job{
		{ID: primaryJobID, Status: analysis.JobCompleted, Progress: 100},
		{ID: secondJobID, Status: analysis.JobProcessing, Progress: 60},
	}

	t.Run("populates member status and progress from the snapshot", func(t *testing.T) {
		handler, batches, _, _ := createTestHandler()
		ctx, recorder := createTestGinContext()

		batches.On("Snapshot", mock.Anything, batchID).Return(b, jobs, []*analysis.Artifact{}, nil)

		ctx.Params = []gin.Param{{Key: "id", Value: batchID.String()}}
		ctx.Request = httptest.NewRequest(http.MethodGet, "/v1/batches/"+batchID.String(), nil)

		handler.Get(ctx)

		assert.Equal(t, http.StatusOK, recorder.Code)

		var resp response.SuccessResponse
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
		assert.True(t, resp.Success)

		data, err := json.Marshal(resp.Data)
		require.NoError(t, err)
		var status StatusResponse
		require.NoError(t, json.Unmarshal(data, &status))

		require.Len(t, status.Members, 2)
		assert.Equal(t, "COMPLETED", status.Members[0].Status)
		assert.Equal(t, 100, status.Members[0].Progress)
		assert.Equal(t, "PROCESSING", status.Members[1].Status)
		assert.Equal(t, 60, status.Members[1].Progress)

		batches.AssertExpectations(t)
	})

	t.Run("invalid id returns 400", func(t *testing.T) {
		handler, _, _, _ := createTestHandler()
		ctx, recorder := createTestGinContext()

		ctx.Params = []gin.Param{{Key: "id", Value: "not-a-ulid"}}
		ctx.Request = httptest.NewRequest(http.MethodGet, "/v1/batches/not-a-ulid", nil)

		handler.Get(ctx)

		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})

	t.Run("snapshot error is surfaced", func(t *testing.T) {
		handler, batches, _, _ := createTestHandler()
		ctx, recorder := createTestGinContext()

		batches.On("Snapshot", mock.Anything, batchID).Return(nil, nil, nil, apperrors.NewNotFoundError("batch"))

		ctx.Params = []gin.Param{{Key: "id", Value: batchID.String()}}
		ctx.Request = httptest.NewRequest(http.MethodGet, "/v1/batches/"+batchID.String(), nil)

		handler.Get(ctx)

		assert.Equal(t, http.StatusNotFound, recorder.Code)
		batches.AssertExpectations(t)
	})
}

func TestHandler_Create(t *testing.T) {
	t.Run("successful submission enqueues the batch", func(t *testing.T) {
		handler, batches, _, submitter := createTestHandler()
		ctx, recorder := createTestGinContext()

		batchID := ulid.New()
		jobA, jobB := ulid.New(), ulid.New()
		b := &batchDomain.Batch{ID: batchID, Status: batchDomain.Pending, Total: 2}
		jobs := []*analysis.Job{{ID: jobA}, {ID: jobB}}

		batches.On("Create", mock.Anything, "", mock.Anything).Return(b, jobs, nil)
		submitter.On("Submit", batchID).Return(nil)

		body, _ := json.Marshal(CreateRequest{URLs: []string{"https://a.example", "https://b.example"}})
		ctx.Request = httptest.NewRequest(http.MethodPost, "/v1/batches", bytes.NewReader(body))
		ctx.Request.Header.Set("Content-Type", "application/json")

		handler.Create(ctx)

		assert.Equal(t, http.StatusAccepted, recorder.Code)
		batches.AssertExpectations(t)
		submitter.AssertExpectations(t)
	})

	t.Run("too few urls is rejected before touching the repository", func(t *testing.T) {
		handler, _, _, _ := createTestHandler()
		ctx, recorder := createTestGinContext()

		body, _ := json.Marshal(CreateRequest{URLs: []string{"https://a.example"}})
		ctx.Request = httptest.NewRequest(http.MethodPost, "/v1/batches", bytes.NewReader(body))
		ctx.Request.Header.Set("Content-Type", "application/json")

		handler.Create(ctx)

		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})
}
