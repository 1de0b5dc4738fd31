package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/people-hub/peoplehub/internal/application/command"
	"github.com/people-hub/peoplehub/internal/application/query"
	"github.com/people-hub/peoplehub/internal/domain/person/mocks"
	"github.com/people-hub/peoplehub/internal/infrastructure/persistence/memory"
	"github.com/people-hub/peoplehub/internal/interface/http/handlers"
	"github.com/people-hub/peoplehub/internal/metrics"
	"github.com/people-hub/peoplehub/pkg/logger"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *ResponseMeta   `json:"meta"`
}

type testServer struct {
	handler   http.Handler
	store     *memory.Store
	scheduler *mocks.MockEnrichmentScheduler
	health    *handlers.CompositeHealthChecker
	registry  *prometheus.Registry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctrl := gomock.NewController(t)
	store := memory.NewStore()
	scheduler := mocks.NewMockEnrichmentScheduler(ctrl)
	scheduler.EXPECT().ScheduleEnrichment(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	health := handlers.NewCompositeHealthChecker("test")
	health.AddCheck("store", handlers.NewPingCheck(store))

	reg := prometheus.NewRegistry()
	log := logger.Nop()
	srv := NewServer(DefaultConfig(), Dependencies{
		Create:        command.NewCreatePersonHandler(store, scheduler, log),
		Update:        command.NewUpdatePersonHandler(store),
		Friends:       command.NewFriendGraphHandler(store, log),
		People:        query.NewPeopleHandler(store),
		HealthChecker: health,
		Logger:        log,
		Metrics:       metrics.New(reg),
		Gatherer:      reg,
	})

	return &testServer{handler: srv.Handler(), store: store, scheduler: scheduler, health: health, registry: reg}
}

func (ts *testServer) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func (ts *testServer) create(t *testing.T, body string) query.PersonDetailDTO {
	t.Helper()
	rec, env := ts.do(t, http.MethodPost, "/api/v1/people", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeData[query.PersonDetailDTO](t, env)
}

// ═══════════════════════════════════════════════════════════════════════════════
// PEOPLE
// ═══════════════════════════════════════════════════════════════════════════════

func TestCreatePerson(t *testing.T) {
	ts := newTestServer(t)

	rec, env := ts.do(t, http.MethodPost, "/api/v1/people",
		`{"last_name":"Ivanov","first_name":"Ivan","middle_name":"Ivanovich","person_emails":["ivan@example.com"]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, env.Success)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	got := decodeData[query.PersonDetailDTO](t, env)
	assert.Equal(t, int64(1), got.ID)
	assert.Equal(t, "Ivanovich", got.MiddleName)
	assert.Equal(t, []string{"ivan@example.com"}, got.Emails)
	assert.Nil(t, got.Gender)
	assert.Empty(t, got.Friends)
}

func TestCreatePerson_Errors(t *testing.T) {
	ts := newTestServer(t)
	ts.create(t, `{"last_name":"Smith","first_name":"John","person_emails":["a@example.com"]}`)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"malformed json", `{"last_name":`, http.StatusBadRequest, "invalid_json"},
		{"empty body", ``, http.StatusBadRequest, "invalid_json"},
		{"missing first name", `{"last_name":"X"}`, http.StatusBadRequest, "validation_error"},
		{"bad email", `{"last_name":"X","first_name":"Y","person_emails":["nope"]}`, http.StatusBadRequest, "validation_error"},
		{"duplicate name", `{"last_name":"Smith","first_name":"John"}`, http.StatusConflict, "conflict"},
		{"taken email", `{"last_name":"Doe","first_name":"Jane","person_emails":["a@example.com"]}`, http.StatusConflict, "email_conflict"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := ts.do(t, http.MethodPost, "/api/v1/people", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			require.NotNil(t, env.Error)
			assert.False(t, env.Success)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
}

func TestCreatePerson_EmailConflictListsAddresses(t *testing.T) {
	ts := newTestServer(t)
	ts.create(t, `{"last_name":"A","first_name":"A","person_emails":["x@example.com","y@example.com"]}`)

	_, env := ts.do(t, http.MethodPost, "/api/v1/people",
		`{"last_name":"B","first_name":"B","person_emails":["y@example.com","free@example.com","x@example.com"]}`)
	require.NotNil(t, env.Error)
	assert.ElementsMatch(t, []string{"x@example.com", "y@example.com"}, env.Error.Details)
}

func TestGetPerson(t *testing.T) {
	ts := newTestServer(t)
	p := ts.create(t, `{"last_name":"Smith","first_name":"John"}`)

	rec, env := ts.do(t, http.MethodGet, "/api/v1/people/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, p.ID, decodeData[query.PersonDetailDTO](t, env).ID)

	for _, path := range []string{"/api/v1/people/99", "/api/v1/people/abc", "/api/v1/people/0"} {
		rec, env = ts.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Equal(t, "not_found", env.Error.Code)
	}
}

func TestListPeople(t *testing.T) {
	ts := newTestServer(t)
	for _, name := range []string{"A", "B", "C"} {
		ts.create(t, `{"last_name":"`+name+`","first_name":"X"}`)
	}

	rec, env := ts.do(t, http.MethodGet, "/api/v1/people?limit=2&offset=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	people := decodeData[[]query.PersonSummaryDTO](t, env)
	require.Len(t, people, 2)
	assert.Equal(t, "B", people[0].LastName)
	assert.Equal(t, 2, env.Meta.Limit)
	assert.Equal(t, 1, env.Meta.Offset)
	require.NotNil(t, env.Meta.Count)
	assert.Equal(t, 2, *env.Meta.Count)

	rec, env = ts.do(t, http.MethodGet, "/api/v1/people?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", env.Error.Code)
}

func TestSearchPeople(t *testing.T) {
	ts := newTestServer(t)
	ts.create(t, `{"last_name":"Smith","first_name":"John"}`)
	ts.create(t, `{"last_name":"Brown","first_name":"Jane"}`)

	rec, env := ts.do(t, http.MethodGet, "/api/v1/people/search?last_name=SMITH", "")
	require.Equal(t, http.StatusOK, rec.Code)
	found := decodeData[[]query.PersonSummaryDTO](t, env)
	require.Len(t, found, 1)
	assert.Equal(t, "Smith", found[0].LastName)

	rec, _ = ts.do(t, http.MethodGet, "/api/v1/people/search", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = ts.do(t, http.MethodGet, "/api/v1/people/search?last_name=Nobody", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdatePerson_PutAndPatch(t *testing.T) {
	ts := newTestServer(t)
	ts.create(t, `{"last_name":"Smith","first_name":"John","middle_name":"M","person_emails":["old@example.com"]}`)

	rec, env := ts.do(t, http.MethodPatch, "/api/v1/people/1", `{"first_name":"Johnny"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeData[query.PersonDetailDTO](t, env)
	assert.Equal(t, "Johnny", got.FirstName)
	assert.Equal(t, "M", got.MiddleName)
	assert.Equal(t, []string{"old@example.com"}, got.Emails)

	rec, env = ts.do(t, http.MethodPut, "/api/v1/people/1",
		`{"last_name":"Smith","first_name":"John","person_emails":["new@example.com"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got = decodeData[query.PersonDetailDTO](t, env)
	assert.Equal(t, "", got.MiddleName)
	assert.Equal(t, []string{"new@example.com"}, got.Emails)

	rec, env = ts.do(t, http.MethodPut, "/api/v1/people/1", `{"first_name":"OnlyFirst"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", env.Error.Code)

	rec, _ = ts.do(t, http.MethodPatch, "/api/v1/people/42", `{"first_name":"Ghost"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFriendship(t *testing.T) {
	ts := newTestServer(t)
	ts.create(t, `{"last_name":"A","first_name":"A"}`)
	ts.create(t, `{"last_name":"B","first_name":"B"}`)

	rec, env := ts.do(t, http.MethodPost, "/api/v1/people/1/add-friend", `{"friend_id":2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeData[query.PersonDetailDTO](t, env)
	require.Len(t, got.Friends, 1)
	assert.Equal(t, int64(2), got.Friends[0].ID)

	rec, env = ts.do(t, http.MethodGet, "/api/v1/people/2/friends", "")
	require.Equal(t, http.StatusOK, rec.Code)
	friends := decodeData[[]query.PersonSummaryDTO](t, env)
	require.Len(t, friends, 1)
	assert.Equal(t, int64(1), friends[0].ID)

	rec, env = ts.do(t, http.MethodPost, "/api/v1/people/2/add-friend", `{"friend_id":1}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", env.Error.Code)

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/people/2/remove-friend", `{"friend_id":1}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = ts.do(t, http.MethodPost, "/api/v1/people/1/remove-friend", `{"friend_id":2}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", env.Error.Code)

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/people/1/add-friend", `{"friend_id":77}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/people/1/add-friend", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ═══════════════════════════════════════════════════════════════════════════════
// INFRASTRUCTURE ENDPOINTS
// ═══════════════════════════════════════════════════════════════════════════════

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec, _ := ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = ts.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	ts.health.AddCheck("redis", func(context.Context) error { return errors.New("down") })

	rec, _ = ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	rec, env := ts.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not_ready", env.Error.Code)

	rec, _ = ts.do(t, http.MethodGet, "/live", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint_RecordsRoutePattern(t *testing.T) {
	ts := newTestServer(t)
	ts.create(t, `{"last_name":"A","first_name":"A"}`)
	ts.do(t, http.MethodGet, "/api/v1/people/1", "")

	rec, _ := ts.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `route="/api/v1/people/{id}`)
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t)
	rec, env := ts.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", env.Error.Code)
}

func TestRequestIDPropagates(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
	assert.Contains(t, rec.Body.String(), `"request_id":"req-123"`)
}
