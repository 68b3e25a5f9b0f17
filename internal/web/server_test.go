package web

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/csvclean/internal/config"
	"github.com/JonMunkholm/csvclean/internal/core"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: 10 * time.Second},
		Upload: config.UploadConfig{
			MaxFileSize:   4096,
			MaxConcurrent: 2,
			MaxWaitTime:   time.Second,
			Timeout:       5 * time.Second,
		},
		Normalize: config.NormalizeConfig{
			ConvertToUTF8: true,
			SampleSize:    1024,
			Placeholder:   "?",
		},
		Results:  config.ResultsConfig{TTL: time.Minute, MaxEntries: 10},
		History:  config.HistoryConfig{MemoryLimit: 50},
		Security: config.SecurityConfig{EnableCSP: true},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	svc, err := core.NewService(cfg, nil)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	s := NewServer(svc, cfg)
	t.Cleanup(func() { s.limiter.Stop(); s.uploadLimiter.Stop() })
	return s
}

// multipartBody builds an upload form. An empty convert leaves the field out.
func multipartBody(t *testing.T, fileName, content string, convert ...string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, v := range convert {
		mw.WriteField("convert_to_utf8", v)
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(content))
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func doUpload(t *testing.T, s *Server, path, fileName, content string, convert ...string) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, fileName, content, convert...)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func get(s *Server, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestIndexPage(t *testing.T) {
	s := newTestServer(t, testConfig())
	rec := get(s, "/")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `name="convert_to_utf8" value="true" checked`) {
		t.Error("Convert to UTF-8 checkbox should be checked by default")
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("missing security headers")
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("missing CSP header")
	}
}

func TestAPIClean_AndDownload(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := doUpload(t, s, "/api/clean", "data.csv", "id,note\n1,a\x07b\n")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		RunID             string `json:"run_id"`
		Encoding          string `json:"encoding"`
		FoundNonPrintable bool   `json:"found_non_printable"`
		Notice            string `json:"notice"`
		DownloadURL       string `json:"download_url"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.FoundNonPrintable || resp.Notice != "Non-printable characters were found and replaced" {
		t.Errorf("resp = %+v", resp)
	}

	dl := get(s, resp.DownloadURL)
	if dl.Code != http.StatusOK {
		t.Fatalf("download status = %d", dl.Code)
	}
	if got := dl.Header().Get("Content-Disposition"); got != `attachment; filename="cleaned_file.csv"` {
		t.Errorf("Content-Disposition = %q", got)
	}
	if want := "\"id\",\"note\"\n1,\"a<0x07>b\"\n"; dl.Body.String() != want {
		t.Errorf("download body = %q, want %q", dl.Body.String(), want)
	}

	page := get(s, "/runs/"+resp.RunID)
	if page.Code != http.StatusOK || !strings.Contains(page.Body.String(), "/runs/"+resp.RunID+"/download") {
		t.Errorf("run page status = %d", page.Code)
	}
}

func TestAPIClean_ConvertFlag(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := doUpload(t, s, "/api/clean", "a.csv", "name\ncafé\n", "false")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Target string `json:"target"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Target != "ascii" {
		t.Errorf("target = %q, want ascii", resp.Target)
	}

	// hidden false followed by checked box
	rec = doUpload(t, s, "/api/clean", "a.csv", "name\ncafé\n", "false", "true")
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Target != "utf-8" {
		t.Errorf("target = %q, want utf-8", resp.Target)
	}
}

func TestAPIClean_Errors(t *testing.T) {
	tests := []struct {
		name       string
		fileName   string
		content    string
		wantStatus int
		wantCode   string
	}{
		{"no file", "", "", http.StatusBadRequest, "FILE003"},
		{"empty file", "a.csv", "", http.StatusBadRequest, "FILE005"},
		{"too large", "a.csv", strings.Repeat("x", 5000), http.StatusRequestEntityTooLarge, "FILE001"},
		{"field count", "a.csv", "a,b\n1\n", http.StatusUnprocessableEntity, "CSV001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, testConfig())
			rec := doUpload(t, s, "/api/clean", tt.fileName, tt.content)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			var resp ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", resp.Code, tt.wantCode)
			}
		})
	}
}

func TestClean_HTMLAndHTMX(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := doUpload(t, s, "/clean", "a.csv", "a\nplain\n", "false", "true")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "No non-printable characters found") {
		t.Error("result page missing notice")
	}
	if !strings.Contains(rec.Body.String(), "<!doctype html>") {
		t.Error("full page expected")
	}

	body, ct := multipartBody(t, "a.csv", "a,b\n1\n")
	req := httptest.NewRequest(http.MethodPost, "/clean", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("HX-Request", "true")
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "alert-error") || strings.Contains(rec.Body.String(), "<!doctype html>") {
		t.Errorf("expected error fragment, got %s", rec.Body.String())
	}
}

func TestAPIDetect(t *testing.T) {
	s := newTestServer(t, testConfig())
	rec := doUpload(t, s, "/api/detect", "a.csv", "\xef\xbb\xbfa\n1\n")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Candidates []struct {
			Label string `json:"label"`
		} `json:"candidates"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Candidates) == 0 || resp.Candidates[0].Label != "utf-8" {
		t.Errorf("candidates = %+v", resp.Candidates)
	}
}

func TestRunNotFound(t *testing.T) {
	s := newTestServer(t, testConfig())

	for _, path := range []string{"/api/runs/nope", "/api/runs/nope/download", "/runs/nope"} {
		rec := get(s, path)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s status = %d, want 404", path, rec.Code)
		}
	}
}

func TestReport(t *testing.T) {
	s := newTestServer(t, testConfig())
	rec := doUpload(t, s, "/api/clean", "a.csv", "a\nx\x01\n")
	var resp struct {
		RunID string `json:"run_id"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)

	tests := []struct {
		format      string
		wantStatus  int
		contentType string
		contains    string
	}{
		{"", http.StatusOK, "application/json", `"escaped": 1`},
		{"yaml", http.StatusOK, "application/yaml; charset=utf-8", "escaped: 1"},
		{"markdown", http.StatusOK, "text/markdown; charset=utf-8", "# CSV Cleaning Report"},
		{"pdf", http.StatusBadRequest, "application/json", "REPORT001"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			rec := get(s, "/api/runs/"+resp.RunID+"/report?format="+tt.format)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Content-Type"); got != tt.contentType {
				t.Errorf("Content-Type = %q, want %q", got, tt.contentType)
			}
			if !strings.Contains(rec.Body.String(), tt.contains) {
				t.Errorf("body missing %q:\n%s", tt.contains, rec.Body.String())
			}
		})
	}
}

func TestHistoryEndpoints(t *testing.T) {
	s := newTestServer(t, testConfig())
	doUpload(t, s, "/api/clean", "good.csv", "a\n1\n")
	doUpload(t, s, "/api/clean", "bad.csv", "a,b\n1\n")

	rec := get(s, "/api/history?limit=10")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Entries []struct {
			FileName  string `json:"file_name"`
			Status    string `json:"status"`
			ErrorCode string `json:"error_code"`
		} `json:"entries"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(resp.Entries))
	}
	if resp.Entries[0].FileName != "bad.csv" || resp.Entries[0].ErrorCode != "CSV001" {
		t.Errorf("newest entry = %+v", resp.Entries[0])
	}

	page := get(s, "/history")
	if page.Code != http.StatusOK || !strings.Contains(page.Body.String(), "good.csv") {
		t.Errorf("history page status = %d", page.Code)
	}
}

func TestStatusAndHealth(t *testing.T) {
	s := newTestServer(t, testConfig())

	if rec := get(s, "/healthz"); rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("healthz = %d %q", rec.Code, rec.Body.String())
	}

	rec := get(s, "/api/status")
	var resp struct {
		Limiter core.LimiterStatus `json:"limiter"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Limiter.MaxConcurrent != 2 || resp.Limiter.Available != 2 {
		t.Errorf("limiter = %+v", resp.Limiter)
	}
}

func TestAPIKeyRequired(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RequireAPIKey = true
	cfg.Security.APIKeys = []string{"secret"}
	s := newTestServer(t, cfg)

	if rec := get(s, "/api/status"); rec.Code != http.StatusUnauthorized {
		t.Errorf("status without key = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status with key = %d, want 200", rec.Code)
	}

	if rec := get(s, "/"); rec.Code != http.StatusOK {
		t.Errorf("pages should not need a key, got %d", rec.Code)
	}
}

func TestUploadRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 100, UploadLimit: 1}
	s := newTestServer(t, cfg)

	if rec := doUpload(t, s, "/api/clean", "a.csv", "a\n1\n"); rec.Code != http.StatusCreated {
		t.Fatalf("first upload status = %d", rec.Code)
	}
	rec := doUpload(t, s, "/api/clean", "a.csv", "a\n1\n")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second upload status = %d, want 429", rec.Code)
	}
	var resp ErrorResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Code != "RATE001" {
		t.Errorf("code = %q, want RATE001", resp.Code)
	}

	if rec := get(s, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("non-upload route limited: %d", rec.Code)
	}
}

func TestRateLimiter_Window(t *testing.T) {
	rl := newRateLimiter(2, time.Minute)
	defer rl.Stop()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if !rl.allow("a") || !rl.allow("a") {
		t.Fatal("first two requests should pass")
	}
	if rl.allow("a") {
		t.Error("third request should be limited")
	}
	if !rl.allow("b") {
		t.Error("other IPs have their own budget")
	}

	now = now.Add(2 * time.Minute)
	if !rl.allow("a") {
		t.Error("budget should reset after the window")
	}
}
