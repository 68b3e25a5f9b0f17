package core

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/csvclean/internal/config"
	"github.com/JonMunkholm/csvclean/internal/history"
	"github.com/JonMunkholm/csvclean/internal/logging"
	"github.com/JonMunkholm/csvclean/internal/normalize"
)

// Service runs cleaning operations and keeps their results available for
// download until they expire.
type Service struct {
	cfg        *config.Config
	normalizer *normalize.Normalizer
	store      history.Store
	limiter    *RunLimiter
	now        func() time.Time

	mu    sync.RWMutex
	runs  map[string]*Run
	order []string // run IDs, oldest first
}

// NewService creates a Service. A nil store records history in memory.
func NewService(cfg *config.Config, store history.Store) (*Service, error) {
	n, err := normalize.New(normalize.Options{
		SampleSize:       cfg.Normalize.SampleSize,
		MinConfidence:    cfg.Normalize.MinConfidence,
		FallbackEncoding: cfg.Normalize.FallbackEncoding,
		Placeholder:      cfg.Normalize.PlaceholderRune(),
		LazyQuotes:       cfg.Normalize.LazyQuotes,
	})
	if err != nil {
		return nil, fmt.Errorf("create normalizer: %w", err)
	}

	if store == nil {
		store = history.NewMemoryStore(cfg.History.MemoryLimit)
	}

	return &Service{
		cfg:        cfg,
		normalizer: n,
		store:      store,
		limiter:    NewRunLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime),
		now:        time.Now,
		runs:       make(map[string]*Run),
	}, nil
}

// DefaultConvertToUTF8 is the target used when a caller does not choose.
func (s *Service) DefaultConvertToUTF8() bool {
	return s.cfg.Normalize.ConvertToUTF8
}

// MaxFileSize returns the upload size limit in bytes.
func (s *Service) MaxFileSize() int64 {
	return s.cfg.Upload.MaxFileSize
}

// Clean reads a file from r, normalizes it and caches the result.
// Successful and failed runs are both recorded in history.
func (s *Service) Clean(ctx context.Context, fileName string, r io.Reader, convertToUTF8 bool) (*Run, error) {
	started := s.now()
	runID := uuid.NewString()
	logger := logging.WithFields(ctx, "run_id", runID, "file", fileName)

	entry := history.Entry{
		RunID:     runID,
		FileName:  fileName,
		Target:    targetLabel(convertToUTF8),
		ClientIP:  GetIPAddressFromContext(ctx),
		UserAgent: GetUserAgentFromContext(ctx),
		CreatedAt: started,
	}

	run, err := s.clean(ctx, runID, fileName, r, convertToUTF8, started, &entry)
	entry.DurationMs = s.now().Sub(started).Milliseconds()
	if err != nil {
		msg := MapError(err)
		entry.Status = history.StatusFailed
		entry.ErrorCode = msg.Code
		entry.ErrorMessage = err.Error()
		logger.Warn("run failed", "error", err, "code", msg.Code)
	} else {
		entry.Status = history.StatusSucceeded
		entry.Encoding = run.Encoding
		entry.Confidence = run.Confidence
		entry.FoundNonPrintable = run.FoundNonPrintable
		entry.Rows = run.Rows
		entry.Columns = run.Columns
		entry.Escaped = run.Escaped
		entry.OutputBytes = run.OutputBytes
		logger.Info("run completed",
			"encoding", run.Encoding,
			"target", run.Target,
			"rows", run.Rows,
			"escaped", run.Escaped,
			"duration_ms", entry.DurationMs,
		)
		for _, w := range run.Warnings {
			logger.Warn("run warning", "warning", w)
		}
	}

	// History is best effort: the user still gets the cleaned file.
	if recErr := s.store.Record(context.WithoutCancel(ctx), entry); recErr != nil {
		logger.Error("failed to record history", "error", recErr)
	}

	if err != nil {
		return nil, fmt.Errorf("clean %s: %w", fileName, err)
	}
	return run, nil
}

func (s *Service) clean(ctx context.Context, runID, fileName string, r io.Reader, convertToUTF8 bool, started time.Time, entry *history.Entry) (*Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	raw, err := s.readUpload(r)
	entry.InputBytes = int64(len(raw))
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Upload.Timeout)
	defer cancel()

	res, err := s.runPipeline(runCtx, raw, convertToUTF8)
	if err != nil {
		return nil, err
	}

	run := newRun(runID, fileName, len(raw), res, started, s.now(), s.cfg.Results.TTL)
	s.cacheRun(run)
	return run, nil
}

type outcome struct {
	res *normalize.Result
	err error
}

// runPipeline normalizes raw and gives up when ctx ends. The pipeline
// itself cannot be interrupted; an abandoned result is discarded.
func (s *Service) runPipeline(ctx context.Context, raw []byte, convertToUTF8 bool) (*normalize.Result, error) {
	done := make(chan outcome, 1)
	go func() {
		res, err := s.normalizer.Normalize(raw, convertToUTF8)
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		return o.res, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// readUpload reads r fully, enforcing the size limit.
func (s *Service) readUpload(r io.Reader) ([]byte, error) {
	limit := s.cfg.Upload.MaxFileSize
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if n > limit {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, limit)
	}
	if n == 0 {
		return nil, ErrEmptyUpload
	}
	return buf.Bytes(), nil
}

// Inspect lists the encoding candidates for the file in r, best first.
func (s *Service) Inspect(ctx context.Context, r io.Reader) ([]normalize.Detection, error) {
	raw, err := s.readUpload(r)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cands, err := s.normalizer.Candidates(raw)
	if err != nil {
		return nil, &normalize.DetectionError{Err: err}
	}
	return cands, nil
}

// GetRun returns a cached run.
func (s *Service) GetRun(id string) (*Run, error) {
	s.mu.RLock()
	run, ok := s.runs[id]
	s.mu.RUnlock()

	if !ok || !s.now().Before(run.ExpiresAt) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, nil
}

// Output returns the cleaned CSV of a cached run.
func (s *Service) Output(id string) ([]byte, error) {
	run, err := s.GetRun(id)
	if err != nil {
		return nil, err
	}
	return run.Output(), nil
}

// History returns up to limit recorded runs, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]history.Entry, error) {
	entries, err := s.store.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("history store: %w", err)
	}
	return entries, nil
}

// LimiterStatus returns the current run limiter state.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// WaitForRuns blocks until all active runs complete or ctx is cancelled.
func (s *Service) WaitForRuns(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// CachedRuns returns the number of runs held in memory.
func (s *Service) CachedRuns() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}

// Close releases the history store.
func (s *Service) Close() error {
	return s.store.Close()
}

// cacheRun caches run, dropping expired runs and then the oldest ones
// beyond the configured maximum.
func (s *Service) cacheRun(run *Run) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = run
	s.order = append(s.order, run.ID)
	s.dropExpiredLocked(s.now())

	for limit := s.cfg.Results.MaxEntries; limit > 0 && len(s.order) > limit; {
		delete(s.runs, s.order[0])
		s.order = s.order[1:]
	}
}

// DropExpired removes runs whose TTL has passed and returns how many
// were removed.
func (s *Service) DropExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropExpiredLocked(s.now())
}

func (s *Service) dropExpiredLocked(now time.Time) int {
	kept := s.order[:0]
	dropped := 0
	for _, id := range s.order {
		if run, ok := s.runs[id]; ok && now.Before(run.ExpiresAt) {
			kept = append(kept, id)
			continue
		}
		delete(s.runs, id)
		dropped++
	}
	s.order = kept
	return dropped
}

func targetLabel(convertToUTF8 bool) string {
	if convertToUTF8 {
		return normalize.LabelUTF8
	}
	return normalize.LabelASCII
}
