package web

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/csvclean/internal/core"
	"github.com/JonMunkholm/csvclean/internal/history"
	"github.com/JonMunkholm/csvclean/internal/logging"
	"github.com/JonMunkholm/csvclean/internal/normalize"
	"github.com/JonMunkholm/csvclean/internal/report"
	"github.com/JonMunkholm/csvclean/internal/web/templates"
)

var (
	errNoFile      = errors.New("no file provided")
	errInvalidForm = errors.New("invalid form")
)

// formOverhead is the allowance for multipart framing on top of the file
// size limit. The service enforces the exact file limit itself.
const formOverhead = 1 << 20

// maxHistoryLimit caps ?limit= on history endpoints.
const maxHistoryLimit = 500

// upload is a parsed cleaning request.
type upload struct {
	file          multipart.File
	fileName      string
	convertToUTF8 bool
}

// parseUpload reads the multipart form. The caller must close u.file.
func (s *Server) parseUpload(w http.ResponseWriter, r *http.Request) (*upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.service.MaxFileSize()+formOverhead)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, fmt.Errorf("%w: limit is %d bytes", core.ErrFileTooLarge, s.service.MaxFileSize())
		}
		return nil, fmt.Errorf("%w: %v", errInvalidForm, err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, errNoFile
	}

	return &upload{
		file:          file,
		fileName:      header.Filename,
		convertToUTF8: parseConvert(r, s.service.DefaultConvertToUTF8()),
	}, nil
}

// parseConvert reads convert_to_utf8. The last value wins so that a
// checkbox can override its hidden "false" companion.
func parseConvert(r *http.Request, def bool) bool {
	values := r.Form["convert_to_utf8"]
	if len(values) == 0 {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(values[len(values)-1])) {
	case "true", "1", "on", "yes":
		return true
	case "false", "0", "off", "no":
		return false
	default:
		return def
	}
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

func historyLimit(r *http.Request) int {
	return min(parseIntParam(r, "limit", history.DefaultLimit), maxHistoryLimit)
}

// runResponse is the API view of a run.
type runResponse struct {
	*core.Run
	Notice      string `json:"notice"`
	DownloadURL string `json:"download_url"`
	ReportURL   string `json:"report_url"`
}

func newRunResponse(run *core.Run) runResponse {
	return runResponse{
		Run:         run,
		Notice:      run.Notice(),
		DownloadURL: "/api/runs/" + run.ID + "/download",
		ReportURL:   "/api/runs/" + run.ID + "/report",
	}
}

func resultParams(run *core.Run) templates.ResultParams {
	return templates.ResultParams{
		RunID:             run.ID,
		FileName:          run.FileName,
		Encoding:          run.Encoding,
		Confidence:        run.Confidence,
		Target:            run.Target,
		Notice:            run.Notice(),
		FoundNonPrintable: run.FoundNonPrintable,
		Rows:              run.Rows,
		Columns:           run.Columns,
		Escaped:           run.Escaped,
		Warnings:          run.Warnings,
		ExpiresAt:         run.ExpiresAt,
		DownloadURL:       "/runs/" + run.ID + "/download",
	}
}

// handleIndex renders the upload form.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	templates.UploadPage(templates.UploadParams{
		MaxFileSize:   s.service.MaxFileSize(),
		ConvertToUTF8: s.service.DefaultConvertToUTF8(),
	}).Render(r.Context(), w)
}

// handleClean cleans a file submitted from the upload form and renders the
// result. HTMX requests get only the result fragment.
func (s *Server) handleClean(w http.ResponseWriter, r *http.Request) {
	up, err := s.parseUpload(w, r)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	defer up.file.Close()

	run, err := s.service.Clean(WithRequestMetadata(r.Context(), r), up.fileName, up.file, up.convertToUTF8)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if isHTMX(r) {
		templates.ResultPartial(resultParams(run)).Render(r.Context(), w)
		return
	}
	templates.ResultPage(resultParams(run)).Render(r.Context(), w)
}

// handleRunPage renders a cached run.
func (s *Server) handleRunPage(w http.ResponseWriter, r *http.Request) {
	run, err := s.service.GetRun(chi.URLParam(r, "runID"))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	templates.ResultPage(resultParams(run)).Render(r.Context(), w)
}

// handleHistoryPage renders recent runs.
func (s *Server) handleHistoryPage(w http.ResponseWriter, r *http.Request) {
	entries, err := s.service.History(r.Context(), historyLimit(r))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	templates.HistoryPage(entries).Render(r.Context(), w)
}

// handleDownload serves the cleaned CSV as an attachment.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	out, err := s.service.Output(chi.URLParam(r, "runID"))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+core.DownloadName+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(out)))
	w.Header().Set("Cache-Control", "no-store")
	w.Write(out)
}

// handleAPIClean cleans a file and returns the run as JSON.
func (s *Server) handleAPIClean(w http.ResponseWriter, r *http.Request) {
	up, err := s.parseUpload(w, r)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	defer up.file.Close()

	run, err := s.service.Clean(WithRequestMetadata(r.Context(), r), up.fileName, up.file, up.convertToUTF8)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusCreated, newRunResponse(run))
}

// handleAPIDetect lists encoding candidates for a file without cleaning it.
func (s *Server) handleAPIDetect(w http.ResponseWriter, r *http.Request) {
	up, err := s.parseUpload(w, r)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	defer up.file.Close()

	cands, err := s.service.Inspect(r.Context(), up.file)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		FileName   string                `json:"file_name"`
		Candidates []normalize.Detection `json:"candidates"`
	}{up.fileName, cands})
}

// handleAPIGetRun returns a cached run as JSON.
func (s *Server) handleAPIGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.service.GetRun(chi.URLParam(r, "runID"))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, newRunResponse(run))
}

// handleReport renders a run summary as JSON, YAML or Markdown.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	format, err := report.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Message: err.Error(), Code: "REPORT001"})
		return
	}

	run, err := s.service.GetRun(chi.URLParam(r, "runID"))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	w.Header().Set("Content-Type", report.ContentType(format))
	if r.URL.Query().Get("download") == "true" {
		w.Header().Set("Content-Disposition", `attachment; filename="cleaning_report.`+report.Extension(format)+`"`)
	}
	rw, _ := report.NewWriter(format, w)
	if _, err := rw.Write(report.FromRun(run)); err != nil {
		logging.FromContext(r.Context()).Error("write report", "run_id", run.ID, "error", err)
	}
}

// handleAPIHistory returns recent runs as JSON.
func (s *Server) handleAPIHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.service.History(r.Context(), historyLimit(r))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// handleStatus reports limiter and cache state.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"limiter":     s.service.LimiterStatus(),
		"cached_runs": s.service.CachedRuns(),
	})
}

// handleHealth is the liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}
