package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/atmcast/core/alert"
	coredash "github.com/kilianp07/atmcast/core/dashboard"
	"github.com/kilianp07/atmcast/core/history"
	"github.com/kilianp07/atmcast/core/model"
	"github.com/kilianp07/atmcast/core/modelstore"
	"github.com/kilianp07/atmcast/core/prediction"
	"github.com/kilianp07/atmcast/infra/audit"
)

const artifact = `{
  "atm_id": "ATM_001",
  "version": 1,
  "last_observation": "2023-12-31",
  "trend": {"origin": "2023-01-01", "intercept": 12000, "slope": 2},
  "weekly": [0, 0, 0, 0, 1500, 1000, -2000],
  "regressors": [{"name": "Holiday_Flag", "coef": 800, "mu": 0, "std": 1}],
  "sigma": 700,
  "interval_width": 0.8,
  "history": [
    {"date": "2023-12-30", "y": 12100, "regressors": {"Holiday_Flag": 0}},
    {"date": "2023-12-31", "y": 11000, "regressors": {"Holiday_Flag": 1}}
  ]
}`

func newServer(t *testing.T, withModel bool, opts Options) (*httptest.Server, string) {
	t.Helper()
	dir := t.TempDir()
	if withModel {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "atm_ATM_001.json"), []byte(artifact), 0o644))
	}
	schema, err := prediction.NewFeatureSchema(prediction.RegressorSpec{Name: "Holiday_Flag"})
	require.NoError(t, err)
	hist := history.NewMemoryStore()
	require.NoError(t, hist.Add(context.Background(), model.HistoricalRecord{
		ATMID: "ATM_001", Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Demand: 100,
	}))
	p, err := coredash.NewPipeline(
		coredash.Config{ATMID: "ATM_001", AllowedATMs: []string{"ATM_002"}, MaxHorizon: 30},
		modelstore.New(modelstore.FileLoader{Dir: dir}),
		prediction.NewService(schema, nil),
		alert.NewThresholdPolicy(20000),
		coredash.WithHistory(hist),
	)
	require.NoError(t, err)
	srv := httptest.NewServer(NewRouter(p, opts))
	t.Cleanup(srv.Close)
	return srv, dir
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	srv, _ := newServer(t, false, Options{})
	var out map[string]string
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/health", &out))
	assert.Equal(t, "ok", out["status"])
}

func TestForecast_OK(t *testing.T) {
	srv, _ := newServer(t, true, Options{})
	var snap coredash.Snapshot
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/forecast", &snap))
	assert.Equal(t, coredash.StatusOK, snap.Status)
	require.Len(t, snap.Window.Points, 7)
	assert.Equal(t, "2024-01-01", snap.Window.Points[0].Date.Format(model.DateLayout))
	assert.Equal(t, "2024-01-07", snap.Window.Points[6].Date.Format(model.DateLayout))
	require.NotNil(t, snap.Verdict)

	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/atms/ATM_001/forecast?horizon=3&history=true", &snap))
	assert.Len(t, snap.Window.Points, 5)
	assert.Len(t, snap.Window.Future(), 3)
}

func TestForecast_CSV(t *testing.T) {
	srv, _ := newServer(t, true, Options{})
	resp, err := http.Get(srv.URL + "/api/forecast?horizon=2&format=csv")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	assert.Equal(t, "ok", resp.Header.Get("X-Forecast-Status"))
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 3)
	assert.True(t, strings.HasSuffix(lines[1], ",ok"), lines[1])
}

func TestForecast_CSVUnavailableKeepsStatus(t *testing.T) {
	srv, _ := newServer(t, false, Options{})
	resp, err := http.Get(srv.URL + "/api/forecast?format=csv")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, "unavailable", resp.Header.Get("X-Forecast-Status"))
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "ATM_001,,,,,,unavailable", lines[1])
}

func TestForecast_DegradedIsVisible(t *testing.T) {
	srv, _ := newServer(t, false, Options{})
	var snap coredash.Snapshot
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/forecast", &snap))
	assert.Equal(t, coredash.StatusUnavailable, snap.Status)
	assert.Equal(t, "model_not_found", snap.ErrorKind)
	assert.NotEmpty(t, snap.Diagnostic)
	assert.Empty(t, snap.Window.Points)
	assert.Nil(t, snap.Verdict)
}

func TestForecast_BadRequests(t *testing.T) {
	srv, _ := newServer(t, true, Options{})
	cases := map[string]int{
		"/api/forecast?horizon=abc":   http.StatusBadRequest,
		"/api/forecast?horizon=0":     http.StatusBadRequest,
		"/api/forecast?horizon=31":    http.StatusBadRequest,
		"/api/forecast?history=maybe": http.StatusBadRequest,
		"/api/forecast?format=xml":    http.StatusBadRequest,
		"/api/atms/ATM_999/forecast":  http.StatusNotFound,
		"/api/atms/ATM_002/forecast":  http.StatusOK,
		"/api/forecast?horizon=30":    http.StatusOK,
		"/api/forecast?format=table":  http.StatusBadRequest,
	}
	for path, want := range cases {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err, path)
		_ = resp.Body.Close()
		assert.Equal(t, want, resp.StatusCode, path)
	}
}

func TestHeatmap(t *testing.T) {
	srv, _ := newServer(t, false, Options{})
	var raw map[string]json.RawMessage
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/heatmap", &raw))
	assert.JSONEq(t, `"ok"`, string(raw["status"]))
	assert.JSONEq(t, `{"days":["Monday","Tuesday","Wednesday","Thursday","Friday","Saturday","Sunday"],
		"rows":[{"atm_id":"ATM_001","cells":[100,null,null,null,null,null,null]}]}`, string(raw["heatmap"]))
}

func TestReload(t *testing.T) {
	srv, dir := newServer(t, false, Options{Token: "secret"})
	post := func(path, token string) (int, errorBody) {
		req, _ := http.NewRequest(http.MethodPost, srv.URL+path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		var body errorBody
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return resp.StatusCode, body
	}

	code, _ := post("/api/models/ATM_001/reload", "")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body := post("/api/models/ATM_001/reload", "secret")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "model_not_found", body.Kind)

	code, _ = post("/api/models/ATM_404/reload", "secret")
	assert.Equal(t, http.StatusNotFound, code)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "atm_ATM_001.json"), []byte("{"), 0o644))
	code, body = post("/api/models/ATM_001/reload", "secret")
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "model_corrupt", body.Kind)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "atm_ATM_001.json"), []byte(artifact), 0o644))
	code, _ = post("/api/models/ATM_001/reload", "secret")
	assert.Equal(t, http.StatusOK, code)

	resp, err := http.Get(srv.URL + "/api/models/ATM_001/reload")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

type fakeAudit struct {
	q   audit.Query
	err error
}

func (f *fakeAudit) Query(_ context.Context, q audit.Query) ([]audit.Record, error) {
	f.q = q
	if f.err != nil {
		return nil, f.err
	}
	return []audit.Record{{ATMID: q.ATMID, Status: "ok"}}, nil
}

func TestAudit(t *testing.T) {
	fa := &fakeAudit{}
	h := NewRouter(nil, Options{Audit: fa})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/audit?atm_id=ATM_001&start=2024-01-01T00:00:00Z", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ATM_001", fa.q.ATMID)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), fa.q.Start)
	var out []audit.Record
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Len(t, out, 1)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/audit?end=yesterday", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	fa.err = errors.New("disk gone")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/audit", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestWrap(t *testing.T) {
	var logBuf bytes.Buffer
	panicking := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })
	h := Wrap(panicking, &logBuf, []string{"https://ops.example"})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/forecast", nil)
	req.Header.Set("Origin", "https://ops.example")
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "https://ops.example", rr.Header().Get("Access-Control-Allow-Origin"))
}
