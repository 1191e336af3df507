package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"example.com/petcare/internal/domain"
	"example.com/petcare/internal/persistence/memory"
)

var testNow = time.Date(2026, time.May, 4, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	clock := func() time.Time { return testNow }
	service := domain.NewService(memory.NewActivityStore(), domain.NewCalendar(time.UTC), domain.WithClock(clock))
	responder := domain.NewResponder(memory.NewChatHistory(), service, domain.DefaultHistoryWindow, clock)

	mux := http.NewServeMux()
	NewHandler(service, responder, log.New(io.Discard)).RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, srv *httptest.Server, method, path, body string, out interface{}) int {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestCreateActivity(t *testing.T) {
	srv := newTestServer(t)

	var created ActivityView
	status := doJSON(t, srv, http.MethodPost, "/api/activities",
		`{"petName":" Rex ","type":"walk","amount":30,"isoDate":"2026-05-04T09:00:00Z"}`, &created)
	require.Equal(t, http.StatusCreated, status)
	require.NotEmpty(t, created.ID)
	require.Equal(t, "Rex", created.PetName)
	require.Equal(t, "walk", created.Type)
	require.Equal(t, 30.0, created.Amount)
	require.Equal(t, "2026-05-04T09:00:00.000Z", created.IsoDate)

	status = doJSON(t, srv, http.MethodPost, "/api/activities",
		`{"petName":"Rex","type":"meal","amount":"2","isoDate":"2026-05-04T08:00:00Z"}`, &created)
	require.Equal(t, http.StatusCreated, status, "numeric strings are accepted")
	require.Equal(t, 2.0, created.Amount)
}

func TestCreateActivityRejects(t *testing.T) {
	srv := newTestServer(t)

	cases := []struct {
		name  string
		body  string
		typ   string
		error string
	}{
		{name: "bad amount", body: `{"petName":"Rex","type":"walk","amount":-1,"isoDate":"2026-05-04T09:00:00Z"}`, typ: "validation_failed", error: "amount must be a number > 0"},
		{name: "word amount", body: `{"petName":"Rex","type":"walk","amount":"ten","isoDate":"2026-05-04T09:00:00Z"}`, typ: "validation_failed", error: "amount must be a number > 0"},
		{name: "unknown type", body: `{"petName":"Rex","type":"nap","amount":1,"isoDate":"2026-05-04T09:00:00Z"}`, typ: "validation_failed", error: "type must be one of walk, meal, medication"},
		{name: "future", body: `{"petName":"Rex","type":"walk","amount":5,"isoDate":"2026-05-04T12:05:00Z"}`, typ: "future_timestamp", error: "date/time cannot be in the future"},
		{name: "malformed body", body: `{"petName":`, typ: "invalid_request", error: "unable to parse body"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var payload map[string]string
			status := doJSON(t, srv, http.MethodPost, "/api/activities", tc.body, &payload)
			require.Equal(t, http.StatusBadRequest, status)
			require.Equal(t, tc.typ, payload["type"])
			require.Equal(t, tc.error, payload["error"])
		})
	}

	var items []ActivityView
	require.Equal(t, http.StatusOK, doJSON(t, srv, http.MethodGet, "/api/activities", "", &items))
	require.Empty(t, items)
}

func TestListActivitiesWithDateFilter(t *testing.T) {
	srv := newTestServer(t)
	for _, body := range []string{
		`{"petName":"Rex","type":"walk","amount":10,"isoDate":"2026-05-03T09:00:00Z"}`,
		`{"petName":"Rex","type":"walk","amount":20,"isoDate":"2026-05-04T09:00:00Z"}`,
	} {
		require.Equal(t, http.StatusCreated, doJSON(t, srv, http.MethodPost, "/api/activities", body, nil))
	}

	var all []ActivityView
	require.Equal(t, http.StatusOK, doJSON(t, srv, http.MethodGet, "/api/activities", "", &all))
	require.Len(t, all, 2)
	require.Equal(t, 10.0, all[0].Amount)

	var filtered []ActivityView
	require.Equal(t, http.StatusOK, doJSON(t, srv, http.MethodGet, "/api/activities?date=2026-05-04", "", &filtered))
	require.Len(t, filtered, 1)
	require.Equal(t, 20.0, filtered[0].Amount)

	var empty []ActivityView
	require.Equal(t, http.StatusOK, doJSON(t, srv, http.MethodGet, "/api/activities?date=2020-01-01", "", &empty))
	require.NotNil(t, empty)
	require.Empty(t, empty)

	var bad map[string]string
	require.Equal(t, http.StatusBadRequest, doJSON(t, srv, http.MethodGet, "/api/activities?date=04/05/2026", "", &bad))
	require.Equal(t, "date must be formatted YYYY-MM-DD", bad["error"])
}

func TestTodaySummary(t *testing.T) {
	srv := newTestServer(t)

	var summary SummaryResponse
	require.Equal(t, http.StatusOK, doJSON(t, srv, http.MethodGet, "/api/summary/today", "", &summary))
	require.Equal(t, "2026-05-04", summary.Date)
	require.Equal(t, TotalsView{}, summary.Totals)
	require.NotNil(t, summary.Activities)

	require.Equal(t, http.StatusCreated, doJSON(t, srv, http.MethodPost, "/api/activities",
		`{"petName":"Rex","type":"walk","amount":30,"isoDate":"2026-05-04T09:00:00Z"}`, nil))
	require.Equal(t, http.StatusCreated, doJSON(t, srv, http.MethodPost, "/api/activities",
		`{"petName":"Rex","type":"meal","amount":1,"isoDate":"2026-05-04T10:00:00Z"}`, nil))

	require.Equal(t, http.StatusOK, doJSON(t, srv, http.MethodGet, "/api/summary/today", "", &summary))
	require.Equal(t, TotalsView{WalkMinutes: 30, Meals: 1}, summary.Totals)
	require.Len(t, summary.Activities, 2)
	require.Equal(t, TotalsView{WalkMinutes: 50, Meals: 25}, summary.Progress)
	require.False(t, summary.WalkReminder)
}

func TestChat(t *testing.T) {
	srv := newTestServer(t)

	var resp ChatResponse
	require.Equal(t, http.StatusOK, doJSON(t, srv, http.MethodPost, "/api/chat", `{"message":"walk?"}`, &resp))
	require.Equal(t, domain.ReplyPrefix+"No walks logged yet today. A 20–30 minute walk would be great.", resp.Reply)
	require.Equal(t, "user: walk?", resp.Memory.LastMessages)

	require.Equal(t, http.StatusCreated, doJSON(t, srv, http.MethodPost, "/api/activities",
		`{"petName":"Rex","type":"walk","amount":30,"isoDate":"2026-05-04T09:00:00Z"}`, nil))

	require.Equal(t, http.StatusOK, doJSON(t, srv, http.MethodPost, "/api/chat", `{"message":"Did Rex walk today?"}`, &resp))
	require.Equal(t, domain.ReplyPrefix+"Today's total walk time is 30 min.", resp.Reply)
	require.Equal(t, TotalsView{WalkMinutes: 30}, resp.Memory.Today)
	require.True(t, strings.HasSuffix(resp.Memory.LastMessages, "user: Did Rex walk today?"))

	var errPayload map[string]string
	require.Equal(t, http.StatusBadRequest, doJSON(t, srv, http.MethodPost, "/api/chat", `{"message":"  "}`, &errPayload))
	require.Equal(t, "empty_message", errPayload["type"])
	require.Equal(t, "message is required", errPayload["error"])
}

func TestHealthAndMethods(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/api/health", "/healthz"} {
		var health map[string]bool
		require.Equal(t, http.StatusOK, doJSON(t, srv, http.MethodGet, path, "", &health))
		require.True(t, health["ok"])
	}

	require.Equal(t, http.StatusMethodNotAllowed, doJSON(t, srv, http.MethodDelete, "/api/activities", "", nil))
	require.Equal(t, http.StatusMethodNotAllowed, doJSON(t, srv, http.MethodPost, "/api/summary/today", "", nil))
	require.Equal(t, http.StatusMethodNotAllowed, doJSON(t, srv, http.MethodGet, "/api/chat", "", nil))
}
