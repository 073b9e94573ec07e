package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	apperrors "bookswap/pkg/errors"
	httputil "bookswap/pkg/http"
	"bookswap/pkg/logger"
	"bookswap/pkg/model"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockTargetingService struct {
	targetFunc    func(ctx context.Context, req *model.TargetRequest) (*model.TargetingEdge, error)
	retargetFunc  func(ctx context.Context, req *model.TargetRequest) (*model.TargetingEdge, error)
	acceptFunc    func(ctx context.Context, edgeID, requesterID string) (*model.CommitResult, error)
	rejectFunc    func(ctx context.Context, edgeID, requesterID string) (*model.TargetingEdge, error)
	canTargetFunc func(ctx context.Context, sourceID, targetID string) (*model.Eligibility, error)
	listEdgesFunc func(ctx context.Context, listingID string, dir model.Direction, limit int, offset int64) ([]*model.TargetingEdge, int64, error)
}

func (m *mockTargetingService) Target(ctx context.Context, req *model.TargetRequest) (*model.TargetingEdge, error) {
	if m.targetFunc != nil {
		return m.targetFunc(ctx, req)
	}
	return &model.TargetingEdge{}, nil
}

func (m *mockTargetingService) Retarget(ctx context.Context, req *model.TargetRequest) (*model.TargetingEdge, error) {
	if m.retargetFunc != nil {
		return m.retargetFunc(ctx, req)
	}
	return &model.TargetingEdge{}, nil
}

func (m *mockTargetingService) RemoveTarget(ctx context.Context, sourceID, requesterID string) ([]*model.TargetingEdge, error) {
	return []*model.TargetingEdge{}, nil
}

func (m *mockTargetingService) Accept(ctx context.Context, edgeID, requesterID string) (*model.CommitResult, error) {
	if m.acceptFunc != nil {
		return m.acceptFunc(ctx, edgeID, requesterID)
	}
	return &model.CommitResult{}, nil
}

func (m *mockTargetingService) Reject(ctx context.Context, edgeID, requesterID string) (*model.TargetingEdge, error) {
	if m.rejectFunc != nil {
		return m.rejectFunc(ctx, edgeID, requesterID)
	}
	return &model.TargetingEdge{}, nil
}

func (m *mockTargetingService) Withdraw(ctx context.Context, edgeID, requesterID string) (*model.TargetingEdge, error) {
	return &model.TargetingEdge{}, nil
}

func (m *mockTargetingService) Complete(ctx context.Context, edgeID, requesterID string) (*model.CommitResult, error) {
	return &model.CommitResult{}, nil
}

func (m *mockTargetingService) CanTarget(ctx context.Context, sourceID, targetID string) (*model.Eligibility, error) {
	if m.canTargetFunc != nil {
		return m.canTargetFunc(ctx, sourceID, targetID)
	}
	return &model.Eligibility{Eligible: true}, nil
}

func (m *mockTargetingService) CancelListing(ctx context.Context, listingID, requesterID string) (*model.SwapListing, error) {
	return &model.SwapListing{ID: listingID, Status: model.ListingCancelled}, nil
}

func (m *mockTargetingService) CancelListingsForBooking(ctx context.Context, bookingID string) (int, error) {
	return 0, nil
}

func (m *mockTargetingService) Expire(ctx context.Context, edgeID string, now time.Time) (bool, error) {
	return false, nil
}

func (m *mockTargetingService) GetEdge(ctx context.Context, id string) (*model.TargetingEdge, error) {
	return nil, apperrors.NotFoundWithID("Proposal", id)
}

func (m *mockTargetingService) ListEdges(ctx context.Context, listingID string, dir model.Direction, limit int, offset int64) ([]*model.TargetingEdge, int64, error) {
	if m.listEdgesFunc != nil {
		return m.listEdgesFunc(ctx, listingID, dir, limit, offset)
	}
	return []*model.TargetingEdge{}, 0, nil
}

func newRouter(svc *mockTargetingService) *httprouter.Router {
	router := httprouter.New()
	NewTargetingHandler(svc, nil, logger.Discard()).RegisterRoutes(router)
	return router
}

func do(router http.Handler, method, path, user, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != "" {
		req.Header.Set(httputil.HeaderUserID, user)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httputil.ErrorResponse {
	t.Helper()
	var resp httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestTarget_PassesPathAndRequester(t *testing.T) {
	var got *model.TargetRequest
	svc := &mockTargetingService{
		targetFunc: func(ctx context.Context, req *model.TargetRequest) (*model.TargetingEdge, error) {
			got = req
			return &model.TargetingEdge{ID: "e1", Status: model.EdgeActive}, nil
		},
	}

	rec := do(newRouter(svc), http.MethodPost, "/api/v1/listings/id/A/target", "alice",
		`{"target_listing_id":"B","message":"hi","source_listing_id":"spoofed"}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, "A", got.SourceListingID)
	assert.Equal(t, "B", got.TargetListingID)
	assert.Equal(t, "alice", got.RequesterID)
	assert.Equal(t, "hi", got.Message)
}

func TestTarget_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"cycle", apperrors.CircularTargeting([]string{"A", "B"}), http.StatusConflict, apperrors.CodeCircularTargeting},
		{"self", apperrors.SelfTargeting(), http.StatusUnprocessableEntity, apperrors.CodeSelfTargeting},
		{"not owner", apperrors.NotOwner("nope"), http.StatusForbidden, apperrors.CodeNotOwner},
		{"retry later", apperrors.RetryLater(assert.AnError), http.StatusServiceUnavailable, apperrors.CodeRetryLater},
		{"unexpected", assert.AnError, http.StatusInternalServerError, apperrors.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockTargetingService{
				targetFunc: func(ctx context.Context, req *model.TargetRequest) (*model.TargetingEdge, error) {
					return nil, tt.err
				},
			}
			rec := do(newRouter(svc), http.MethodPost, "/api/v1/listings/id/A/target", "alice", `{"target_listing_id":"B"}`)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
		})
	}
}

func TestTarget_CycleDetailsInBody(t *testing.T) {
	svc := &mockTargetingService{
		targetFunc: func(ctx context.Context, req *model.TargetRequest) (*model.TargetingEdge, error) {
			return nil, apperrors.CircularTargeting([]string{"A", "B", "C"})
		},
	}
	rec := do(newRouter(svc), http.MethodPost, "/api/v1/listings/id/C/target", "carol", `{"target_listing_id":"A"}`)

	resp := decodeError(t, rec)
	assert.Equal(t, []any{"A", "B", "C"}, resp.Details["cycle"])
}

func TestRequesterHeaderRequired(t *testing.T) {
	router := newRouter(&mockTargetingService{})

	for _, path := range []string{
		"/api/v1/listings/id/A/target",
		"/api/v1/proposals/id/e1/accept",
		"/api/v1/proposals/id/e1/reject",
	} {
		rec := do(router, http.MethodPost, path, "", `{}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestMalformedBody(t *testing.T) {
	rec := do(newRouter(&mockTargetingService{}), http.MethodPut, "/api/v1/listings/id/A/target", "alice", `{"target_listing_id":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperrors.CodeInvalidInput, decodeError(t, rec).Code)
}

func TestAccept(t *testing.T) {
	var gotEdge, gotUser string
	svc := &mockTargetingService{
		acceptFunc: func(ctx context.Context, edgeID, requesterID string) (*model.CommitResult, error) {
			gotEdge, gotUser = edgeID, requesterID
			return &model.CommitResult{Accepted: &model.TargetingEdge{ID: edgeID, Status: model.EdgeAccepted}}, nil
		},
	}

	rec := do(newRouter(svc), http.MethodPost, "/api/v1/proposals/id/e1/accept", "bob", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "e1", gotEdge)
	assert.Equal(t, "bob", gotUser)

	var resp struct {
		Data model.CommitResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, model.EdgeAccepted, resp.Data.Accepted.Status)
}

func TestReject_AlreadyResolved(t *testing.T) {
	svc := &mockTargetingService{
		rejectFunc: func(ctx context.Context, edgeID, requesterID string) (*model.TargetingEdge, error) {
			return nil, apperrors.AlreadyResolved(edgeID)
		},
	}
	rec := do(newRouter(svc), http.MethodPost, "/api/v1/proposals/id/e1/reject", "bob", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apperrors.CodeAlreadyResolved, decodeError(t, rec).Code)
}

func TestCanTarget(t *testing.T) {
	var gotSource, gotTarget string
	svc := &mockTargetingService{
		canTargetFunc: func(ctx context.Context, sourceID, targetID string) (*model.Eligibility, error) {
			gotSource, gotTarget = sourceID, targetID
			return &model.Eligibility{Reasons: []model.EligibilityReason{{Code: apperrors.CodeSelfTargeting}}}, nil
		},
	}

	rec := do(newRouter(svc), http.MethodGet, "/api/v1/listings/id/A/eligibility/B", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "A", gotSource)
	assert.Equal(t, "B", gotTarget)
	assert.Contains(t, rec.Body.String(), apperrors.CodeSelfTargeting)
}

func TestListProposals_Pagination(t *testing.T) {
	var (
		gotDir    model.Direction
		gotLimit  int
		gotOffset int64
	)
	svc := &mockTargetingService{
		listEdgesFunc: func(ctx context.Context, listingID string, dir model.Direction, limit int, offset int64) ([]*model.TargetingEdge, int64, error) {
			gotDir, gotLimit, gotOffset = dir, limit, offset
			return []*model.TargetingEdge{{ID: "e1"}}, 7, nil
		},
	}
	router := newRouter(svc)

	rec := do(router, http.MethodGet, "/api/v1/listings/id/A/proposals?direction=incoming&limit=5&offset=2", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.DirectionIncoming, gotDir)
	assert.Equal(t, 5, gotLimit)
	assert.Equal(t, int64(2), gotOffset)

	var resp httputil.PaginatedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(7), resp.TotalCount)

	rec = do(router, http.MethodGet, "/api/v1/listings/id/A/proposals?limit=abc", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetProposal_NotFound(t *testing.T) {
	rec := do(newRouter(&mockTargetingService{}), http.MethodGet, "/api/v1/proposals/id/missing", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
