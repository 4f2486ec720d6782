package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/adpilot/engine/internal/auth"
	"github.com/adpilot/engine/internal/domain"
	"github.com/adpilot/engine/internal/executor"
	"github.com/adpilot/engine/internal/platform"
	"github.com/adpilot/engine/internal/store"
	"github.com/adpilot/engine/internal/telemetry"
	"github.com/adpilot/engine/internal/workflow"
)

type okPlatform struct {
	calls int
}

func (p *okPlatform) PauseCampaign(ctx context.Context, creds platform.Credentials, id string) (*platform.Response, error) {
	p.calls++
	return &platform.Response{OK: true}, nil
}

func (p *okPlatform) UpdateAdSetDailyBudget(ctx context.Context, creds platform.Credentials, id string, cents int64) (*platform.Response, error) {
	p.calls++
	return &platform.Response{OK: true}, nil
}

type testAPI struct {
	router   http.Handler
	store    *store.Store
	platform *okPlatform
	owner    string
	other    string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	db, err := store.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	st := store.New(db)
	ctx := context.Background()

	require.NoError(t, st.Businesses.Upsert(ctx, st.DB, domain.Business{
		ID: "biz-1", Name: "Bakery", OwnerUserID: "user-1", MaxDailyBudgetCents: 20000, PlatformAccessToken: "tok",
	}))
	for _, c := range []domain.Campaign{
		{ID: "c1", BusinessID: "biz-1", Name: "Spring", Status: "active", PlatformCampaignID: "p1", PlatformAdSetID: "a1", DailyBudgetCents: 5000},
		{ID: "c2", BusinessID: "biz-1", Name: "Evergreen", Status: "active", PlatformCampaignID: "p2", PlatformAdSetID: "a2", DailyBudgetCents: 5000},
	} {
		require.NoError(t, st.Campaigns.Upsert(ctx, st.DB, c))
	}

	authn := auth.New(st)
	authn.Cost = bcrypt.MinCost
	owner, _, err := authn.Issue(ctx, "user-1")
	require.NoError(t, err)
	other, _, err := authn.Issue(ctx, "user-2")
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	metrics := telemetry.New(reg)
	p := &okPlatform{}
	eng := workflow.NewEngine(st.DB)
	exec := executor.New(st, p, nil, nil, metrics)

	h := &Handler{
		Pipeline:   workflow.NewPipeline(eng, st, st, nil, metrics),
		Approvals:  workflow.NewApprovals(eng, authn, st, exec, st, nil, metrics),
		Engine:     eng,
		Auth:       authn,
		Businesses: st,
		Log:        zapNop(),
		Ping:       st.DB.PingContext,
	}
	router := NewRouter(h, RouterOptions{Gatherer: reg, Metrics: metrics})
	return &testAPI{router: router, store: st, platform: p, owner: owner, other: other}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func spikeBody() CreateRunBody {
	return CreateRunBody{
		BusinessID: "biz-1",
		Current: []domain.MetricsSnapshot{
			{CampaignID: "c1", CampaignName: "Spring", DailyBudget: 50, Spend: 60, Conversions: 2, CPA: 25},
			{CampaignID: "c2", CampaignName: "Evergreen", DailyBudget: 50, Spend: 40, Conversions: 5, CPA: 8},
		},
		Previous: []domain.MetricsSnapshot{
			{CampaignID: "c1", CampaignName: "Spring", DailyBudget: 50, Spend: 40, Conversions: 4, CPA: 10},
			{CampaignID: "c2", CampaignName: "Evergreen", DailyBudget: 50, Spend: 40, Conversions: 5, CPA: 8},
		},
	}
}

func decodeRun(t *testing.T, w *httptest.ResponseRecorder) domain.AutomationRun {
	t.Helper()
	var run domain.AutomationRun
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	return run
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)
	w := api.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok"`)
}

func TestCreateRun_ThenApprove(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/api/v1/runs", api.owner, spikeBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	run := decodeRun(t, w)
	assert.Equal(t, domain.RunNeedsApproval, run.Status)
	assert.Equal(t, "user-1", run.TriggeredBy)
	assert.Equal(t, domain.TriggerManual, run.TriggerType)
	assert.NotEmpty(t, run.FirstPersonSummary)

	w = api.do(t, http.MethodPost, "/api/v1/runs/approve", api.owner, ApproveBody{RunID: run.ID, Action: domain.DecisionApprove})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res workflow.DecideResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, domain.RunCompleted, res.Status)
	assert.Len(t, res.ExecutionResults, 2)
	assert.Equal(t, 2, api.platform.calls)

	// Approval is single-use.
	w = api.do(t, http.MethodPost, "/api/v1/runs/approve", api.owner, ApproveBody{RunID: run.ID, Action: domain.DecisionApprove})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 2, api.platform.calls)

	w = api.do(t, http.MethodGet, "/api/v1/runs/"+run.ID, api.owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeRun(t, w)
	assert.Equal(t, domain.RunCompleted, got.Status)
	require.NotNil(t, got.Output.Execution)
	assert.Equal(t, 2, got.Output.Execution.Succeeded)

	w = api.do(t, http.MethodGet, "/api/v1/runs/"+run.ID+"/events", api.owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var events []domain.RunEventRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &events))
	assert.Len(t, events, 4)
}

func TestCreateRun_Errors(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name  string
		token string
		body  any
		want  int
	}{
		{"no token", "", spikeBody(), http.StatusUnauthorized},
		{"bad token", "adp_nope.nope", spikeBody(), http.StatusUnauthorized},
		{"not owner", api.other, spikeBody(), http.StatusForbidden},
		{"unknown business", api.owner, CreateRunBody{BusinessID: "biz-404"}, http.StatusNotFound},
		{"missing business", api.owner, CreateRunBody{}, http.StatusBadRequest},
		{"bad trigger", api.owner, CreateRunBody{BusinessID: "biz-1", Trigger: "cron"}, http.StatusBadRequest},
		{"no snapshots", api.owner, CreateRunBody{BusinessID: "biz-1"}, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := api.do(t, http.MethodPost, "/api/v1/runs", tc.token, tc.body)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
			var apiErr APIError
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
			assert.NotEmpty(t, apiErr.Message)
		})
	}
}

func TestCreateRun_MalformedBody(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+api.owner)
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApprove_Rejections(t *testing.T) {
	api := newTestAPI(t)
	w := api.do(t, http.MethodPost, "/api/v1/runs", api.owner, spikeBody())
	require.Equal(t, http.StatusCreated, w.Code)
	run := decodeRun(t, w)

	tests := []struct {
		name  string
		token string
		body  ApproveBody
		want  int
	}{
		{"missing action", api.owner, ApproveBody{RunID: run.ID}, http.StatusBadRequest},
		{"invalid action", api.owner, ApproveBody{RunID: run.ID, Action: "maybe"}, http.StatusBadRequest},
		{"unknown run", api.owner, ApproveBody{RunID: "nope", Action: domain.DecisionApprove}, http.StatusNotFound},
		{"no token", "", ApproveBody{RunID: run.ID, Action: domain.DecisionApprove}, http.StatusUnauthorized},
		{"not owner", api.other, ApproveBody{RunID: run.ID, Action: domain.DecisionApprove}, http.StatusForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := api.do(t, http.MethodPost, "/api/v1/runs/approve", tc.token, tc.body)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
		})
	}
	assert.Zero(t, api.platform.calls)

	w = api.do(t, http.MethodPost, "/api/v1/runs/approve", api.owner, ApproveBody{RunID: run.ID, Action: domain.DecisionDismiss})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"dismissed"`)
	assert.Zero(t, api.platform.calls)
}

func TestGetRun_Access(t *testing.T) {
	api := newTestAPI(t)
	w := api.do(t, http.MethodPost, "/api/v1/runs", api.owner, spikeBody())
	require.Equal(t, http.StatusCreated, w.Code)
	run := decodeRun(t, w)

	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/api/v1/runs/nope", api.owner, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, api.do(t, http.MethodGet, "/api/v1/runs/"+run.ID, "", nil).Code)
	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodGet, "/api/v1/runs/"+run.ID, api.other, nil).Code)
	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodGet, "/api/v1/runs/"+run.ID+"/events", api.other, nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	api := newTestAPI(t)
	api.do(t, http.MethodGet, "/healthz", "", nil)

	w := api.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `adpilot_http_request_duration_seconds_count{code="200",method="GET",route="/healthz"} 1`)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  *domain.EngineError
		want int
	}{
		{domain.ErrMissingField, http.StatusBadRequest},
		{domain.ErrNotAwaiting, http.StatusBadRequest},
		{domain.ErrApprovalNotReqd, http.StatusBadRequest},
		{domain.ErrUnauthenticated, http.StatusUnauthorized},
		{domain.ErrPermissionDenied, http.StatusForbidden},
		{domain.ErrRunNotFound, http.StatusNotFound},
		{domain.ErrBusinessNotFound, http.StatusNotFound},
		{domain.ErrOptimisticLock, http.StatusInternalServerError},
		{domain.ErrPipelineFailed, http.StatusInternalServerError},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, statusFor(tc.err.Code), tc.err.Message)
	}
}
