package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/csvclean/internal/config"
	"github.com/JonMunkholm/csvclean/internal/history"
	"github.com/JonMunkholm/csvclean/internal/normalize"
)

func testConfig() *config.Config {
	return &config.Config{
		Upload: config.UploadConfig{
			MaxFileSize:   1024,
			MaxConcurrent: 2,
			MaxWaitTime:   50 * time.Millisecond,
			Timeout:       5 * time.Second,
		},
		Normalize: config.NormalizeConfig{
			ConvertToUTF8: true,
			SampleSize:    1024,
			Placeholder:   "?",
		},
		Results: config.ResultsConfig{
			TTL:        15 * time.Minute,
			MaxEntries: 10,
		},
		History: config.HistoryConfig{
			MemoryLimit: 100,
		},
	}
}

// newTestService returns a service with a controllable clock.
func newTestService(t *testing.T, cfg *config.Config) (*Service, *history.MemoryStore, *time.Time) {
	t.Helper()
	store := history.NewMemoryStore(cfg.History.MemoryLimit)
	s, err := NewService(cfg, store)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	return s, store, &now
}

func TestService_Clean(t *testing.T) {
	s, store, _ := newTestService(t, testConfig())
	ctx := ContextWithIPAddress(context.Background(), "10.0.0.1")

	run, err := s.Clean(ctx, "people.csv", strings.NewReader("name,age\nbob\x01,42\n"), true)
	if err != nil {
		t.Fatalf("Clean() error = %v", err)
	}

	if run.Encoding != normalize.LabelASCII {
		t.Errorf("Encoding = %q, want %q", run.Encoding, normalize.LabelASCII)
	}
	if !run.FoundNonPrintable {
		t.Error("FoundNonPrintable = false, want true")
	}
	if run.Notice() != "Non-printable characters were found and replaced" {
		t.Errorf("Notice() = %q", run.Notice())
	}
	if want := "\"name\",\"age\"\n\"bob<0x01>\",42\n"; string(run.Output()) != want {
		t.Errorf("Output() = %q, want %q", run.Output(), want)
	}
	if run.InputBytes != 17 {
		t.Errorf("InputBytes = %d, want 17", run.InputBytes)
	}

	out, err := s.Output(run.ID)
	if err != nil {
		t.Fatalf("Output() error = %v", err)
	}
	if string(out) != string(run.Output()) {
		t.Error("cached output differs from run output")
	}

	entries, _ := store.Recent(context.Background(), 10)
	if len(entries) != 1 {
		t.Fatalf("history entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Status != history.StatusSucceeded || e.RunID != run.ID {
		t.Errorf("entry = %+v, want succeeded run %s", e, run.ID)
	}
	if e.ClientIP != "10.0.0.1" {
		t.Errorf("ClientIP = %q, want 10.0.0.1", e.ClientIP)
	}
	if e.Rows != 1 || e.Columns != 2 || e.Escaped != 1 {
		t.Errorf("rows/columns/escaped = %d/%d/%d, want 1/2/1", e.Rows, e.Columns, e.Escaped)
	}
}

func TestService_Clean_ASCIITarget(t *testing.T) {
	s, _, _ := newTestService(t, testConfig())

	run, err := s.Clean(context.Background(), "a.csv", strings.NewReader("name\ncafé\n"), false)
	if err != nil {
		t.Fatalf("Clean() error = %v", err)
	}
	if run.Target != normalize.LabelASCII {
		t.Errorf("Target = %q, want ascii", run.Target)
	}
	if want := "\"name\"\n\"caf?\"\n"; string(run.Output()) != want {
		t.Errorf("Output() = %q, want %q", run.Output(), want)
	}
}

func TestService_Clean_Failures(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantErr  error
		wantCode string
	}{
		{"empty upload", "", ErrEmptyUpload, "FILE005"},
		{"file too large", strings.Repeat("a", 1025), ErrFileTooLarge, "FILE001"},
		{"malformed csv", "a,b\n1\n", nil, "CSV001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, store, _ := newTestService(t, testConfig())

			run, err := s.Clean(context.Background(), "bad.csv", strings.NewReader(tt.input), true)
			if err == nil {
				t.Fatalf("Clean() = %+v, want error", run)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if got := MapError(err).Code; got != tt.wantCode {
				t.Errorf("MapError().Code = %q, want %q", got, tt.wantCode)
			}

			entries, _ := store.Recent(context.Background(), 10)
			if len(entries) != 1 {
				t.Fatalf("history entries = %d, want 1", len(entries))
			}
			if entries[0].Status != history.StatusFailed || entries[0].ErrorCode != tt.wantCode {
				t.Errorf("entry status/code = %s/%s, want failed/%s", entries[0].Status, entries[0].ErrorCode, tt.wantCode)
			}
			if s.CachedRuns() != 0 {
				t.Errorf("CachedRuns() = %d, want 0", s.CachedRuns())
			}
		})
	}
}

func TestService_Clean_LimiterBusy(t *testing.T) {
	cfg := testConfig()
	cfg.Upload.MaxConcurrent = 1
	s, _, _ := newTestService(t, cfg)

	if !s.limiter.TryAcquire() {
		t.Fatal("TryAcquire() = false")
	}
	defer s.limiter.Release()

	_, err := s.Clean(context.Background(), "a.csv", strings.NewReader("a\n1\n"), true)
	if !errors.Is(err, ErrTooManyRuns) {
		t.Errorf("error = %v, want ErrTooManyRuns", err)
	}
}

func TestService_Clean_Cancelled(t *testing.T) {
	s, _, _ := newTestService(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Clean(ctx, "a.csv", strings.NewReader("a\n1\n"), true)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestService_GetRun_Expiry(t *testing.T) {
	s, _, now := newTestService(t, testConfig())

	run, err := s.Clean(context.Background(), "a.csv", strings.NewReader("a\n1\n"), true)
	if err != nil {
		t.Fatalf("Clean() error = %v", err)
	}

	*now = now.Add(14 * time.Minute)
	if _, err := s.GetRun(run.ID); err != nil {
		t.Fatalf("GetRun() before expiry error = %v", err)
	}

	*now = now.Add(time.Minute)
	if _, err := s.GetRun(run.ID); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun() after expiry error = %v, want ErrRunNotFound", err)
	}
	if _, err := s.Output(run.ID); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Output() after expiry error = %v, want ErrRunNotFound", err)
	}

	if got := s.DropExpired(); got != 1 {
		t.Errorf("DropExpired() = %d, want 1", got)
	}
	if s.CachedRuns() != 0 {
		t.Errorf("CachedRuns() = %d, want 0", s.CachedRuns())
	}
}

func TestService_GetRun_Unknown(t *testing.T) {
	s, _, _ := newTestService(t, testConfig())
	if _, err := s.GetRun("missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun() error = %v, want ErrRunNotFound", err)
	}
}

func TestService_CacheEviction(t *testing.T) {
	cfg := testConfig()
	cfg.Results.MaxEntries = 2
	s, _, _ := newTestService(t, cfg)

	var ids []string
	for i := 0; i < 3; i++ {
		run, err := s.Clean(context.Background(), "a.csv", strings.NewReader("a\n1\n"), true)
		if err != nil {
			t.Fatalf("Clean() error = %v", err)
		}
		ids = append(ids, run.ID)
	}

	if s.CachedRuns() != 2 {
		t.Errorf("CachedRuns() = %d, want 2", s.CachedRuns())
	}
	if _, err := s.GetRun(ids[0]); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("oldest run still cached, error = %v", err)
	}
	for _, id := range ids[1:] {
		if _, err := s.GetRun(id); err != nil {
			t.Errorf("GetRun(%s) error = %v", id, err)
		}
	}
}

func TestService_Inspect(t *testing.T) {
	s, _, _ := newTestService(t, testConfig())

	cands, err := s.Inspect(context.Background(), strings.NewReader("\xef\xbb\xbfa,b\n1,2\n"))
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if len(cands) == 0 {
		t.Fatal("Inspect() returned no candidates")
	}
	if cands[0].Label != normalize.LabelUTF8 {
		t.Errorf("best candidate = %q, want %q", cands[0].Label, normalize.LabelUTF8)
	}

	if _, err := s.Inspect(context.Background(), strings.NewReader("")); !errors.Is(err, ErrEmptyUpload) {
		t.Errorf("Inspect(empty) error = %v, want ErrEmptyUpload", err)
	}
}

func TestService_History(t *testing.T) {
	s, _, _ := newTestService(t, testConfig())

	for _, name := range []string{"one.csv", "two.csv"} {
		if _, err := s.Clean(context.Background(), name, strings.NewReader("a\n1\n"), true); err != nil {
			t.Fatalf("Clean() error = %v", err)
		}
	}

	entries, err := s.History(context.Background(), 1)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(entries) != 1 || entries[0].FileName != "two.csv" {
		t.Errorf("History(1) = %+v, want two.csv", entries)
	}

	s.Close()
	_, err = s.History(context.Background(), 1)
	if got := MapError(err).Code; got != "RUN005" {
		t.Errorf("closed store code = %q, want RUN005", got)
	}
}

func TestNewService_InvalidPlaceholder(t *testing.T) {
	cfg := testConfig()
	cfg.Normalize.Placeholder = "\x01"
	if _, err := NewService(cfg, nil); err == nil {
		t.Error("NewService() error = nil, want placeholder error")
	}
}
