package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/salesrecon/internal/config"
	"github.com/JonMunkholm/salesrecon/internal/core"
	"github.com/JonMunkholm/salesrecon/internal/job"
)

const primaryCSV = "State,Dealer,Inv Date,Sales Amt,Qty\n" +
	"TX,Acme,2024-01-10,100,2\n" +
	"TX,Acme,2024-01-10,100,2\n" +
	"CA,Bolt,2024-02-01,-5,1\n"

const secondaryCSV = "state_code,region\n" +
	"TX,South\n" +
	",West\n"

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: 10 * time.Second},
		Upload: config.UploadConfig{MaxFileSize: 1 << 20, MaxMemory: 1 << 20},
		Pipeline: config.PipelineConfig{
			RegionField:    "State",
			DealerField:    "Dealer",
			DateField:      "Inv Date",
			SalesField:     "Sales Amt",
			QuantityField:  "Qty",
			EnumerationCap: 1000,
			MaxConcurrent:  2,
			MaxWaitTime:    50 * time.Millisecond,
		},
		Logging: config.LoggingConfig{Level: "error", Format: "text"},
	}
}

func newTestServer(t *testing.T, cfg *config.Config, limiter *core.RunLimiter) *Server {
	t.Helper()
	svc := core.NewService(core.Options{
		Fields: cfg.Pipeline.Fields(),
		Now:    func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) },
	})
	srv := NewServer(Options{Service: svc, Config: cfg, Limiter: limiter})
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return srv
}

type form struct {
	files  map[string]string
	values map[string][]string
}

func (f form) request(t *testing.T, path string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, content := range f.files {
		part, err := mw.CreateFormFile(name, name+".csv")
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	for name, vals := range f.values {
		for _, v := range vals {
			require.NoError(t, mw.WriteField(name, v))
		}
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, testConfig(), nil)
	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestDashboard(t *testing.T) {
	srv := newTestServer(t, testConfig(), nil)
	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Sales Reconciliation")
	assert.Contains(t, body, `value="duplicates"`)
	assert.Contains(t, body, "Top Customers")
}

func TestCatalogs(t *testing.T) {
	srv := newTestServer(t, testConfig(), nil)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/rules", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var rules []core.RuleInfo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&rules))
	require.Len(t, rules, 6)
	assert.Equal(t, core.RuleNegatives, rules[0].ID)

	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/api/reports", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sales_summary")
}

type pipelineJSON struct {
	RunID  string `json:"runId"`
	Merged struct {
		Fields []string `json:"fields"`
		Rows   [][]any  `json:"rows"`
	} `json:"merged"`
	MappingErrors []core.ValidationError `json:"mappingErrors"`
	Exceptions    []struct {
		Name  string `json:"name"`
		Table struct {
			Rows [][]any `json:"rows"`
		} `json:"table"`
	} `json:"exceptions"`
	Reports []struct {
		ID    string `json:"id"`
		Table struct {
			Rows [][]any `json:"rows"`
		} `json:"table"`
	} `json:"reports"`
}

func TestPipeline(t *testing.T) {
	srv := newTestServer(t, testConfig(), nil)
	req := form{
		files: map[string]string{"primary": primaryCSV, "secondary": secondaryCSV},
		values: map[string][]string{
			"request": {`{"mapping":{"state_code":"State","missing":"Dealer"},"rules":["duplicates"],"reports":["sales_by_region"]}`},
			"rule":    {"negatives"},
		},
	}.request(t, "/api/pipeline")

	rec := serve(srv, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp pipelineJSON
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))

	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, []string{"State", "Dealer", "Inv Date", "Sales Amt", "Qty"}, resp.Merged.Fields)
	assert.Len(t, resp.Merged.Rows, 3)

	require.Len(t, resp.MappingErrors, 1)
	assert.Equal(t, core.CodeUnknownSecondaryField, resp.MappingErrors[0].Code)

	require.Len(t, resp.Exceptions, 2)
	assert.Equal(t, core.ResultNegatives, resp.Exceptions[0].Name)
	assert.Len(t, resp.Exceptions[0].Table.Rows, 1)
	assert.Equal(t, core.ResultDuplicates, resp.Exceptions[1].Name)

	require.Len(t, resp.Reports, 1)
	assert.Equal(t, "sales_by_region", resp.Reports[0].ID)
	require.Len(t, resp.Reports[0].Table.Rows, 2)
	assert.Equal(t, []any{"TX", 200.0, 4.0}, resp.Reports[0].Table.Rows[0])
}

func TestPipeline_RequestErrors(t *testing.T) {
	tests := []struct {
		name      string
		form      form
		wantCode  string
		wantField string
	}{
		{
			name:     "missing primary",
			form:     form{files: map[string]string{"secondary": secondaryCSV}},
			wantCode: "REQ003",
		},
		{
			name: "malformed request json",
			form: form{
				files:  map[string]string{"primary": primaryCSV},
				values: map[string][]string{"request": {`{"mapping":`}},
			},
			wantCode: "REQ001",
		},
		{
			name: "unknown request field",
			form: form{
				files:  map[string]string{"primary": primaryCSV},
				values: map[string][]string{"request": {`{"forecast":true}`}},
			},
			wantCode: "REQ001",
		},
		{
			name: "unsupported null policy",
			form: form{
				files:  map[string]string{"primary": primaryCSV},
				values: map[string][]string{"request": {`{"policies":[{"field":"Qty","policy":"fill_median"}]}`}},
			},
			wantCode:  "REQ002",
			wantField: "policies[0].policy",
		},
		{
			name: "unknown rule checkbox",
			form: form{
				files:  map[string]string{"primary": primaryCSV},
				values: map[string][]string{"rule": {"bogus"}},
			},
			wantCode:  "REQ002",
			wantField: "rules[0]",
		},
		{
			name: "unknown report",
			form: form{
				files:  map[string]string{"primary": primaryCSV},
				values: map[string][]string{"request": {`{"reports":["forecast"]}`}},
			},
			wantCode:  "REQ002",
			wantField: "reports[0]",
		},
		{
			name:     "empty primary file",
			form:     form{files: map[string]string{"primary": ""}},
			wantCode: "FILE005",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, testConfig(), nil)
			rec := serve(srv, tt.form.request(t, "/api/pipeline"))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, resp.Code)
			if tt.wantField != "" {
				require.NotEmpty(t, resp.Fields)
				assert.Equal(t, tt.wantField, resp.Fields[0].Field)
			}
		})
	}
}

func TestPipeline_Busy(t *testing.T) {
	limiter := core.NewRunLimiter(1, 20*time.Millisecond)
	require.True(t, limiter.TryAcquire())
	defer limiter.Release()

	srv := newTestServer(t, testConfig(), limiter)
	rec := serve(srv, form{files: map[string]string{"primary": primaryCSV}}.request(t, "/api/pipeline"))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "REQ004", decodeError(t, rec).Code)
}

func TestUploads_WaitForRunSlotBeforeParsing(t *testing.T) {
	limiter := core.NewRunLimiter(1, 20*time.Millisecond)
	require.True(t, limiter.TryAcquire())

	srv := newTestServer(t, testConfig(), limiter)
	for _, path := range []string{"/api/nulls", "/api/pipeline", "/api/pipeline/mapped.csv", "/api/reports/run"} {
		req := form{
			files:  map[string]string{"primary": primaryCSV},
			values: map[string][]string{"request": {`{"mapping":`}},
		}.request(t, path)

		rec := serve(srv, req)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
		assert.Equal(t, "REQ004", decodeError(t, rec).Code, path)
	}

	limiter.Release()
	rec := serve(srv, form{files: map[string]string{"primary": primaryCSV}}.request(t, "/api/pipeline"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Zero(t, limiter.Active(), "slot is released once the response is written")
}

func TestNulls(t *testing.T) {
	srv := newTestServer(t, testConfig(), nil)
	req := form{
		files:  map[string]string{"primary": primaryCSV, "secondary": secondaryCSV},
		values: map[string][]string{"request": {`{"mapping":{"state_code":"State"}}`}},
	}.request(t, "/api/nulls")

	rec := serve(srv, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp core.NullPreview
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Nulls, 1)
	assert.Equal(t, "State", resp.Nulls[0].Field)
	assert.Equal(t, 1, resp.Nulls[0].Nulls)
	assert.Equal(t, []core.NullPolicy{core.DropRow, core.FillMode}, resp.Nulls[0].Policies)
	assert.Empty(t, resp.NewFields)
}

func TestNulls_RequiresSecondary(t *testing.T) {
	srv := newTestServer(t, testConfig(), nil)
	rec := serve(srv, form{files: map[string]string{"primary": primaryCSV}}.request(t, "/api/nulls"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "FILE004", decodeError(t, rec).Code)
}

func TestExportFilteredCSV(t *testing.T) {
	srv := newTestServer(t, testConfig(), nil)
	req := form{
		files:  map[string]string{"primary": primaryCSV},
		values: map[string][]string{"request": {`{"categorical":{"values":["CA"]}}`}},
	}.request(t, "/api/pipeline/filtered.csv")

	rec := serve(srv, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "filtered.csv")
	assert.NotEmpty(t, rec.Header().Get("X-Run-ID"))

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "State,Dealer,Inv Date,Sales Amt,Qty", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "CA,Bolt,"))
}

func TestExportMergedCSV(t *testing.T) {
	srv := newTestServer(t, testConfig(), nil)
	rec := serve(srv, form{files: map[string]string{"primary": primaryCSV}}.request(t, "/api/pipeline/merged.csv"))

	require.Equal(t, http.StatusOK, rec.Code)
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	assert.Len(t, lines, 4)
}

func TestExportMappedCSV(t *testing.T) {
	srv := newTestServer(t, testConfig(), nil)
	req := form{
		files: map[string]string{"primary": primaryCSV, "secondary": secondaryCSV},
		values: map[string][]string{
			"request": {`{"mapping":{"state_code":"State","region":"Dealer"},"policies":[{"field":"State","policy":"drop_row"}]}`},
		},
	}.request(t, "/api/pipeline/mapped.csv")

	rec := serve(srv, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "mapped.csv")

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	assert.Equal(t, []string{"State,Dealer", "TX,South"}, lines)
}

func TestExportMappedCSV_NeedsMapping(t *testing.T) {
	srv := newTestServer(t, testConfig(), nil)
	rec := serve(srv, form{files: map[string]string{"primary": primaryCSV, "secondary": secondaryCSV}}.request(t, "/api/pipeline/mapped.csv"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "REQ001", decodeError(t, rec).Code)
}

func TestExportExceptionsWorkbook(t *testing.T) {
	srv := newTestServer(t, testConfig(), nil)
	req := form{
		files:  map[string]string{"primary": primaryCSV},
		values: map[string][]string{"rule": {"negatives", "invalid_dates"}},
	}.request(t, "/api/pipeline/exceptions.xlsx")

	rec := serve(srv, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))

	f, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Negative Sales or Qty", "Future-Invalid Dates"}, f.GetSheetList())
}

func TestReports(t *testing.T) {
	srv := newTestServer(t, testConfig(), nil)
	req := form{
		files:  map[string]string{"primary": primaryCSV},
		values: map[string][]string{"report": {"top_customers", "sales_summary"}},
	}.request(t, "/api/reports/run")

	rec := serve(srv, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp reportsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Empty(t, resp.Reports, "sample data has no Dealer_Name or Year fields")
	assert.Len(t, resp.Warnings, 2)
}

func TestExportReportsWorkbook(t *testing.T) {
	srv := newTestServer(t, testConfig(), nil)
	req := form{
		files:  map[string]string{"primary": primaryCSV},
		values: map[string][]string{"report": {"sales_by_region"}},
	}.request(t, "/api/reports/export.xlsx")

	rec := serve(srv, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	f, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Sales by Region")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"TX", "200", "4"}, rows[1])
}

func TestAPIKeyRequired(t *testing.T) {
	cfg := testConfig()
	cfg.Security = config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"secret"}}
	srv := newTestServer(t, cfg, nil)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/rules", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/rules", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = serve(srv, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Pages outside /api stay public.
	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2}
	srv := newTestServer(t, cfg, nil)

	for i := 0; i < 2; i++ {
		rec := serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE001", decodeError(t, rec).Code)

	other := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	other.RemoteAddr = "198.51.100.7:4000"
	assert.Equal(t, http.StatusOK, serve(srv, other).Code)
}

func TestMetricsRoute(t *testing.T) {
	cfg := testConfig()
	svc := core.NewService(core.Options{Fields: cfg.Pipeline.Fields()})
	srv := NewServer(Options{
		Service: svc,
		Config:  cfg,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("metrics"))
		}),
	})

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, "metrics", rec.Body.String())
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrTooManyRuns, http.StatusServiceUnavailable},
		{core.ErrNoPrimary, http.StatusBadRequest},
		{&job.ValidationError{}, http.StatusBadRequest},
		{job.ErrInvalidRequest, http.StatusBadRequest},
		{context.Canceled, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
