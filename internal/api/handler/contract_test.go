package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/nsstatus/internal/api"
	"github.com/kiranshivaraju/nsstatus/internal/api/handler"
	mw "github.com/kiranshivaraju/nsstatus/internal/api/middleware"
	"github.com/kiranshivaraju/nsstatus/internal/cache"
	"github.com/kiranshivaraju/nsstatus/internal/metrics"
	"github.com/kiranshivaraju/nsstatus/internal/neuroscout"
	"github.com/kiranshivaraju/nsstatus/internal/status"
	"github.com/kiranshivaraju/nsstatus/internal/store"
	"github.com/kiranshivaraju/nsstatus/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// ─── test fixtures ───────────────────────────────────────────────────────────

const (
	testRoot      = "https://neuroscout.org"
	testOwnerKey  = "nsk_own_contract_key_1234567890"
	testReaderKey = "nsk_rdr_contract_key_1234567890"
)

var testOwnerKeyID = uuid.MustParse("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")

func strPtr(s string) *string { return &s }

func hashKey(raw string) string {
	h, _ := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.MinCost)
	return string(h)
}

// ─── fake neuroscout ─────────────────────────────────────────────────────────

type compileCall struct {
	id    string
	build bool
}

type fakeNeuroscout struct {
	mu         sync.Mutex
	analyses   map[string]*models.Analysis
	tracebacks map[string]string
	uploads    map[string][]models.UploadRecord
	version    string
	err        error

	compiles []compileCall
	patches  map[string]models.AnalysisPatch
}

func newFakeNeuroscout() *fakeNeuroscout {
	return &fakeNeuroscout{
		analyses: map[string]*models.Analysis{
			"draft1": {ID: "draft1", Name: "faces"},
			"noname": {ID: "noname", Status: strPtr("DRAFT")},
			"failed": {ID: "failed", Name: "faces", Status: strPtr("FAILED"), Private: true},
			"passed": {ID: "passed", Name: "faces", Status: strPtr("PASSED"), ModifiedAt: "2024-02-01T10:00:00"},
			"pendng": {ID: "pendng", Name: "faces", Status: strPtr("PENDING")},
		},
		tracebacks: map[string]string{"failed": "KeyError: 'trial_type'"},
		uploads: map[string][]models.UploadRecord{
			"passed": {{ID: 1234, UploadedAt: strPtr("2024-02-03T08:00:00"), Total: 10, OK: 7, Pending: 2, Failed: 1,
				Tracebacks: []string{"HTTP 500 from NeuroVault"}}},
		},
		version: "0.8.1",
		patches: map[string]models.AnalysisPatch{},
	}
}

func (f *fakeNeuroscout) Analysis(_ context.Context, id string) (*models.Analysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	a, ok := f.analyses[id]
	if !ok {
		return nil, neuroscout.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeNeuroscout) CompileTraceback(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tracebacks[id], nil
}

func (f *fakeNeuroscout) Uploads(_ context.Context, id string) ([]models.UploadRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads[id], nil
}

func (f *fakeNeuroscout) ImageVersion(_ context.Context) (string, error) {
	return f.version, nil
}

func (f *fakeNeuroscout) Compile(_ context.Context, id string, build bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.compiles = append(f.compiles, compileCall{id: id, build: build})
	return nil
}

func (f *fakeNeuroscout) UpdateAnalysis(_ context.Context, id string, patch models.AnalysisPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.analyses[id]; !ok {
		return neuroscout.ErrNotFound
	}
	f.patches[id] = patch
	return nil
}

func (f *fakeNeuroscout) Ready(_ context.Context) error { return nil }

func (f *fakeNeuroscout) compileCalls() []compileCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]compileCall(nil), f.compiles...)
}

var _ neuroscout.Client = (*fakeNeuroscout)(nil)

// ─── mock store ──────────────────────────────────────────────────────────────

type mockStore struct {
	mu     sync.Mutex
	keys   []*models.APIKey
	events []*models.SubmissionEvent
}

func newMockStore() *mockStore {
	return &mockStore{keys: []*models.APIKey{
		{
			ID:        testOwnerKeyID,
			Name:      "owner",
			KeyHash:   hashKey(testOwnerKey),
			KeyPrefix: testOwnerKey[:8],
			Scopes:    []string{"read", "submit", "admin"},
		},
		{
			ID:        uuid.New(),
			Name:      "reader",
			KeyHash:   hashKey(testReaderKey),
			KeyPrefix: testReaderKey[:8],
			Scopes:    []string{"read"},
		},
	}}
}

func (s *mockStore) Ping(_ context.Context) error { return nil }

func (s *mockStore) GetAPIKeyByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.APIKey
	for _, k := range s.keys {
		if k.KeyPrefix == prefix && k.DeletedAt == nil {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *mockStore) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error { return nil }

func (s *mockStore) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.keys {
		if existing.Name == key.Name && existing.DeletedAt == nil {
			return store.ErrDuplicateKey
		}
	}
	s.keys = append(s.keys, key)
	return nil
}

func (s *mockStore) ListAPIKeys(_ context.Context) ([]*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.APIKey
	for _, k := range s.keys {
		if k.DeletedAt == nil {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *mockStore) RevokeAPIKey(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.keys {
		if k.ID == id && k.DeletedAt == nil {
			now := time.Now()
			k.DeletedAt = &now
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *mockStore) CreateSubmissionEvent(_ context.Context, e *models.SubmissionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *mockStore) ListSubmissionEvents(_ context.Context, analysisID string, limit int) ([]*models.SubmissionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.SubmissionEvent
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		if s.events[i].AnalysisID == analysisID {
			out = append(out, s.events[i])
		}
	}
	return out, nil
}

var _ store.Store = (*mockStore)(nil)

// ─── mock cache ──────────────────────────────────────────────────────────────

type mockCache struct {
	mu       sync.Mutex
	counters map[string]int64
}

func newMockCache() *mockCache {
	return &mockCache{counters: make(map[string]int64)}
}

func (c *mockCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *mockCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *mockCache) Delete(_ context.Context, _ string) error                         { return nil }
func (c *mockCache) Ping(_ context.Context) error                                     { return nil }
func (c *mockCache) IncrWithExpiry(_ context.Context, key string, expiry time.Duration) (int64, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[key]++
	return c.counters[key], expiry, nil
}

var _ cache.Cache = (*mockCache)(nil)

// ─── test harness ────────────────────────────────────────────────────────────

type testServer struct {
	server     *httptest.Server
	store      *mockStore
	neuroscout *fakeNeuroscout
}

func newTestServer(t *testing.T, rateLimit int) *testServer {
	t.Helper()

	ms := newMockStore()
	mc := newMockCache()
	ns := newFakeNeuroscout()

	registry := status.NewRegistry(ns, time.Second, 0)
	analyses := handler.NewAnalyses(ns, registry, status.Renderer{ServerRoot: testRoot}, ms, 2*time.Second)
	keys := handler.NewKeys(ms)

	router := api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(ms),
		RateLimit: mw.NewRateLimit(mc, rateLimit),
		Metrics:   metrics.NewMiddleware("nsstatus-test", prometheus.NewRegistry()),

		HealthHandler: func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) },

		ViewHandler:        analyses.View,
		PageHandler:        analyses.Page,
		UploadsHandler:     analyses.Uploads,
		SubmitHandler:      analyses.Submit,
		VisibilityHandler:  analyses.Visibility,
		SubmissionsHandler: analyses.Submissions,

		CreateKeyHandler: keys.Create,
		ListKeysHandler:  keys.List,
		RevokeKeyHandler: keys.Revoke,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{server: srv, store: ms, neuroscout: ns}
}

func (ts *testServer) do(t *testing.T, key, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.server.URL+path, &buf)
	require.NoError(t, err)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func parseBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	body := parseBody(t, resp)
	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok, "expected error envelope, got %v", body)
	return errObj["code"].(string)
}

// ─── view ────────────────────────────────────────────────────────────────────

func TestView_Passed(t *testing.T) {
	ts := newTestServer(t, 100)

	resp := ts.do(t, testOwnerKey, "GET", "/api/v1/analyses/passed/view", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data := parseBody(t, resp)["data"].(map[string]any)
	assert.Equal(t, "PASSED", data["status"])
	assert.Equal(t, testRoot+"/analyses/passed_bundle.tar.gz", data["download_url"])

	primary := data["primary"].(map[string]any)
	assert.Equal(t, "run_instructions", primary["kind"])
	run := primary["run"].(map[string]any)
	assert.Equal(t,
		"docker run --rm -it -v /local/outputdirectory:/out neuroscout/neuroscout-cli:0.8.1 run /out passed",
		run["command"])

	secondary := data["secondary"].(map[string]any)
	assert.Equal(t, "system_requirements", secondary["kind"])

	header := data["header"].(map[string]any)
	assert.Equal(t, "Public", header["visibility"], "submit scope counts as owner")

	uploads := data["uploads"].([]any)
	require.Len(t, uploads, 1)
	banners := uploads[0].(map[string]any)["banners"].([]any)
	require.Len(t, banners, 3)
	assert.Equal(t, "2/10 image uploads pending", banners[0].(map[string]any)["message"])
	assert.Equal(t, "7/10 image uploads succeeded", banners[1].(map[string]any)["message"])
	assert.Equal(t, "1/10 image uploads failed", banners[2].(map[string]any)["message"])
}

func TestView_ReaderIsNotOwner(t *testing.T) {
	ts := newTestServer(t, 100)

	resp := ts.do(t, testReaderKey, "GET", "/api/v1/analyses/passed/view", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	header := parseBody(t, resp)["data"].(map[string]any)["header"].(map[string]any)
	_, hasVisibility := header["visibility"]
	assert.False(t, hasVisibility)
}

func TestView_Failed(t *testing.T) {
	ts := newTestServer(t, 100)

	resp := ts.do(t, testOwnerKey, "GET", "/api/v1/analyses/failed/view", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data := parseBody(t, resp)["data"].(map[string]any)
	_, hasDownload := data["download_url"]
	assert.False(t, hasDownload)

	form := data["primary"].(map[string]any)["form"].(map[string]any)
	assert.Equal(t, true, form["can_generate"])
	terms := form["terms"].([]any)
	assert.Contains(t, terms[3], "currently private")

	tb := data["secondary"].(map[string]any)["traceback"].(map[string]any)
	assert.Equal(t, "Analysis failed to compile", tb["message"])
	assert.Equal(t, "KeyError: 'trial_type'", tb["traceback"])
}

func TestView_Draft(t *testing.T) {
	ts := newTestServer(t, 100)

	resp := ts.do(t, testOwnerKey, "GET", "/api/v1/analyses/draft1/view", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data := parseBody(t, resp)["data"].(map[string]any)
	assert.Equal(t, "DRAFT", data["status"])
	form := data["primary"].(map[string]any)["form"].(map[string]any)
	assert.Equal(t, false, form["terms_accepted"])
	assert.Equal(t, false, form["can_generate"])
}

func TestView_NotFound(t *testing.T) {
	ts := newTestServer(t, 100)

	resp := ts.do(t, testOwnerKey, "GET", "/api/v1/analyses/missing/view", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "ANALYSIS_NOT_FOUND", errorCode(t, resp))
}

func TestView_UpstreamUnavailable(t *testing.T) {
	ts := newTestServer(t, 100)
	ts.neuroscout.err = neuroscout.ErrUpstreamUnreachable

	resp := ts.do(t, testOwnerKey, "GET", "/api/v1/analyses/passed/view", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "UPSTREAM_UNAVAILABLE", errorCode(t, resp))
}

func TestView_UpstreamTimeout(t *testing.T) {
	ts := newTestServer(t, 100)
	ts.neuroscout.err = neuroscout.ErrUpstreamTimeout

	resp := ts.do(t, testOwnerKey, "GET", "/api/v1/analyses/passed/view", nil)
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
}

// ─── page ────────────────────────────────────────────────────────────────────

func TestPage_Failed(t *testing.T) {
	ts := newTestServer(t, 100)

	resp := ts.do(t, testOwnerKey, "GET", "/analyses/failed", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	html := string(b)
	assert.Contains(t, html, "Analysis failed to compile")
	assert.Contains(t, html, "KeyError: &#39;trial_type&#39;")
	assert.Contains(t, html, "Terms for analysis generation:")
	assert.NotContains(t, html, "_bundle.tar.gz")
}

func TestPage_Passed(t *testing.T) {
	ts := newTestServer(t, 100)

	resp := ts.do(t, testOwnerKey, "GET", "/analyses/passed", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	html := string(b)
	assert.Contains(t, html, testRoot+"/analyses/passed_bundle.tar.gz")
	assert.Contains(t, html, "neuroscout/neuroscout-cli:0.8.1 run /out passed")
	assert.Contains(t, html, "NeuroVault Uploads")
	assert.Contains(t, html, "https://neurovault.org/collections/1234")
	assert.Contains(t, html, "Uploaded: 2024-02-03")
}

func TestPage_Pending(t *testing.T) {
	ts := newTestServer(t, 100)

	resp := ts.do(t, testOwnerKey, "GET", "/analyses/pendng", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(b), "Analysis Pending Generation")
	assert.NotContains(t, string(b), "NeuroVault Uploads")
}

// ─── uploads ─────────────────────────────────────────────────────────────────

func TestUploads(t *testing.T) {
	ts := newTestServer(t, 100)

	resp := ts.do(t, testOwnerKey, "GET", "/api/v1/analyses/passed/uploads", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data := parseBody(t, resp)["data"].([]any)
	require.Len(t, data, 1)
	up := data[0].(map[string]any)
	assert.Equal(t, float64(1234), up["collection_id"])
	assert.Equal(t, "2024-02-03", up["uploaded_at"])
	assert.Equal(t, "n/a", up["estimator"])

	failed := up["banners"].([]any)[2].(map[string]any)
	assert.Equal(t, "error", failed["kind"])
	assert.Equal(t, []any{"HTTP 500 from NeuroVault"}, failed["details"])
}

func TestUploads_EmptyList(t *testing.T) {
	ts := newTestServer(t, 100)

	resp := ts.do(t, testOwnerKey, "GET", "/api/v1/analyses/draft1/uploads", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{}, parseBody(t, resp)["data"])
}

// ─── submit ──────────────────────────────────────────────────────────────────

func TestSubmit_DraftForwardsCompile(t *testing.T) {
	ts := newTestServer(t, 100)

	resp := ts.do(t, testOwnerKey, "POST", "/api/v1/analyses/draft1/submit", map[string]any{
		"terms_accepted": true,
		"validate":       true,
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	data := parseBody(t, resp)["data"].(map[string]any)
	assert.Equal(t, "draft1", data["analysis_id"])
	assert.Equal(t, true, data["validate"])

	assert.Equal(t, []compileCall{{id: "draft1", build: true}}, ts.neuroscout.compileCalls())

	events, _ := ts.store.ListSubmissionEvents(context.Background(), "draft1", 10)
	require.Len(t, events, 1)
	require.NotNil(t, events[0].APIKeyID)
	assert.Equal(t, testOwnerKeyID, *events[0].APIKeyID)
	assert.True(t, events[0].Validate)
}

func TestSubmit_TermsNotAccepted(t *testing.T) {
	ts := newTestServer(t, 100)

	resp := ts.do(t, testOwnerKey, "POST", "/api/v1/analyses/draft1/submit", map[string]any{
		"terms_accepted": false,
		"validate":       true,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	body := parseBody(t, resp)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "GENERATE_NOT_ALLOWED", errObj["code"])
	assert.Equal(t, []any{"Terms of service must be accepted"}, errObj["details"])
	assert.Empty(t, ts.neuroscout.compileCalls())
}

func TestSubmit_MissingName(t *testing.T) {
	ts := newTestServer(t, 100)

	resp := ts.do(t, testOwnerKey, "POST", "/api/v1/analyses/noname/submit", map[string]any{
		"terms_accepted": true,
		"validate":       true,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "GENERATE_NOT_ALLOWED", errorCode(t, resp))
}

func TestSubmit_NotEditableStatus(t *testing.T) {
	ts := newTestServer(t, 100)

	for _, id := range []string{"passed", "pendng"} {
		resp := ts.do(t, testOwnerKey, "POST", "/api/v1/analyses/"+id+"/submit", map[string]any{
			"terms_accepted": true,
			"validate":       true,
		})
		assert.Equal(t, http.StatusConflict, resp.StatusCode, id)
	}
	assert.Empty(t, ts.neuroscout.compileCalls())
}

func TestSubmit_DisableValidationNeedsConfirmation(t *testing.T) {
	ts := newTestServer(t, 100)

	resp := ts.do(t, testOwnerKey, "POST", "/api/v1/analyses/failed/submit", map[string]any{
		"terms_accepted": true,
		"validate":       false,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "CONFIRMATION_REQUIRED", errorCode(t, resp))
	assert.Empty(t, ts.neuroscout.compileCalls())
}

func TestSubmit_ClosedGateBeforeConfirmation(t *testing.T) {
	ts := newTestServer(t, 100)

	for _, id := range []string{"passed", "pendng"} {
		resp := ts.do(t, testOwnerKey, "POST", "/api/v1/analyses/"+id+"/submit", map[string]any{
			"terms_accepted": true,
			"validate":       false,
		})
		assert.Equal(t, http.StatusConflict, resp.StatusCode, id)
		assert.Equal(t, "GENERATE_NOT_ALLOWED", errorCode(t, resp), id)
	}

	resp := ts.do(t, testOwnerKey, "POST", "/api/v1/analyses/draft1/submit", map[string]any{
		"terms_accepted": false,
		"validate":       false,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Empty(t, ts.neuroscout.compileCalls())
}

func TestSubmit_DisableValidationConfirmed(t *testing.T) {
	ts := newTestServer(t, 100)

	resp := ts.do(t, testOwnerKey, "POST", "/api/v1/analyses/failed/submit", map[string]any{
		"terms_accepted":             true,
		"validate":                   false,
		"confirm_disable_validation": true,
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, []compileCall{{id: "failed", build: false}}, ts.neuroscout.compileCalls())
}

func TestSubmit_InvalidBody(t *testing.T) {
	ts := newTestServer(t, 100)

	resp := ts.do(t, testOwnerKey, "POST", "/api/v1/analyses/draft1/submit", map[string]any{
		"terms_accepted": true,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	errObj := parseBody(t, resp)["error"].(map[string]any)
	assert.Equal(t, "INVALID_REQUEST", errObj["code"])
	assert.Equal(t, map[string]any{"validate": "required"}, errObj["details"])
}

func TestSubmit_ReaderForbidden(t *testing.T) {
	ts := newTestServer(t, 100)

	resp := ts.do(t, testReaderKey, "POST", "/api/v1/analyses/draft1/submit", map[string]any{
		"terms_accepted": true,
		"validate":       true,
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", errorCode(t, resp))
}

func TestSubmissions_List(t *testing.T) {
	ts := newTestServer(t, 100)

	for i := 0; i < 2; i++ {
		resp := ts.do(t, testOwnerKey, "POST", "/api/v1/analyses/draft1/submit", map[string]any{
			"terms_accepted": true,
			"validate":       true,
		})
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
	}

	resp := ts.do(t, testReaderKey, "GET", "/api/v1/analyses/draft1/submissions?limit=1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := parseBody(t, resp)
	assert.Len(t, body["data"], 1)
	assert.Equal(t, map[string]any{"count": float64(1), "limit": float64(1)}, body["meta"])

	resp = ts.do(t, testReaderKey, "GET", "/api/v1/analyses/draft1/submissions?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, testReaderKey, "GET", "/api/v1/analyses/passed/submissions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{}, parseBody(t, resp)["data"])
}

// ─── visibility ──────────────────────────────────────────────────────────────

func TestVisibility(t *testing.T) {
	ts := newTestServer(t, 100)

	resp := ts.do(t, testOwnerKey, "PUT", "/api/v1/analyses/passed/visibility", map[string]any{"private": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data := parseBody(t, resp)["data"].(map[string]any)
	assert.Equal(t, true, data["private"])

	ts.neuroscout.mu.Lock()
	patch := ts.neuroscout.patches["passed"]
	ts.neuroscout.mu.Unlock()
	require.NotNil(t, patch.Private)
	assert.True(t, *patch.Private)
}

func TestVisibility_MissingField(t *testing.T) {
	ts := newTestServer(t, 100)

	resp := ts.do(t, testOwnerKey, "PUT", "/api/v1/analyses/passed/visibility", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestVisibility_NotFound(t *testing.T) {
	ts := newTestServer(t, 100)

	resp := ts.do(t, testOwnerKey, "PUT", "/api/v1/analyses/missing/visibility", map[string]any{"private": false})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// ─── admin keys ──────────────────────────────────────────────────────────────

func TestKeys_CreateListRevoke(t *testing.T) {
	ts := newTestServer(t, 100)

	resp := ts.do(t, testOwnerKey, "POST", "/api/v1/admin/keys", map[string]any{
		"name":   "ci",
		"scopes": []string{"read"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := parseBody(t, resp)["data"].(map[string]any)
	rawKey := created["key"].(string)
	assert.True(t, strings.HasPrefix(rawKey, "nsk_"))

	// the new key authenticates
	resp = ts.do(t, rawKey, "GET", "/api/v1/analyses/passed/view", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, testOwnerKey, "GET", "/api/v1/admin/keys", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, parseBody(t, resp)["data"], 3)

	resp = ts.do(t, testOwnerKey, "DELETE", "/api/v1/admin/keys/"+created["id"].(string), nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.do(t, rawKey, "GET", "/api/v1/analyses/passed/view", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestKeys_CreateDuplicateName(t *testing.T) {
	ts := newTestServer(t, 100)

	resp := ts.do(t, testOwnerKey, "POST", "/api/v1/admin/keys", map[string]any{
		"name":   "owner",
		"scopes": []string{"read"},
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "DUPLICATE_KEY_NAME", errorCode(t, resp))
}

func TestKeys_CreateInvalidScope(t *testing.T) {
	ts := newTestServer(t, 100)

	resp := ts.do(t, testOwnerKey, "POST", "/api/v1/admin/keys", map[string]any{
		"name":   "bad",
		"scopes": []string{"root"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestKeys_Revoke(t *testing.T) {
	ts := newTestServer(t, 100)

	resp := ts.do(t, testOwnerKey, "DELETE", "/api/v1/admin/keys/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_KEY_ID", errorCode(t, resp))

	resp = ts.do(t, testOwnerKey, "DELETE", "/api/v1/admin/keys/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestKeys_ReaderForbidden(t *testing.T) {
	ts := newTestServer(t, 100)

	resp := ts.do(t, testReaderKey, "GET", "/api/v1/admin/keys", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

// ─── rate limiting ───────────────────────────────────────────────────────────

func TestRateLimit_PerKey(t *testing.T) {
	ts := newTestServer(t, 2)

	for i := 0; i < 2; i++ {
		resp := ts.do(t, testOwnerKey, "GET", "/api/v1/analyses/passed/view", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp := ts.do(t, testOwnerKey, "GET", "/api/v1/analyses/passed/view", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errorCode(t, resp))

	// another key has its own window
	resp = ts.do(t, testReaderKey, "GET", "/api/v1/analyses/passed/view", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
