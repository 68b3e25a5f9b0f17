package core

import (
	"errors"
	"time"

	"github.com/JonMunkholm/csvclean/internal/normalize"
)

// DownloadName is the file name offered for every cleaned file.
const DownloadName = "cleaned_file.csv"

var (
	// ErrRunNotFound is returned for unknown or expired run IDs.
	ErrRunNotFound = errors.New("run not found")

	// ErrFileTooLarge is returned when an upload exceeds the size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrEmptyUpload is returned for a zero-byte upload.
	ErrEmptyUpload = errors.New("empty file")
)

// Run is one finished cleaning operation. The cleaned bytes stay in memory
// until ExpiresAt; everything else is also written to history.
type Run struct {
	ID                string         `json:"run_id"`
	FileName          string         `json:"file_name"`
	Encoding          string         `json:"encoding"`
	Confidence        int            `json:"confidence"`
	Target            string         `json:"target"`
	FoundNonPrintable bool           `json:"found_non_printable"`
	Rows              int            `json:"rows"`
	Columns           int            `json:"columns"`
	Escaped           int            `json:"escaped"`
	ColumnEscapes     map[string]int `json:"column_escapes,omitempty"`
	Warnings          []string       `json:"warnings,omitempty"`
	InputBytes        int64          `json:"input_bytes"`
	OutputBytes       int64          `json:"output_bytes"`
	DurationMs        int64          `json:"duration_ms"`
	CreatedAt         time.Time      `json:"created_at"`
	ExpiresAt         time.Time      `json:"expires_at"`

	output []byte
}

// Notice is the sentence shown to the user about non-printable characters.
func (r *Run) Notice() string {
	if r.FoundNonPrintable {
		return "Non-printable characters were found and replaced"
	}
	return "No non-printable characters found"
}

// Output returns the cleaned CSV. The slice must not be modified.
func (r *Run) Output() []byte { return r.output }

// newRun builds a Run from a pipeline result.
func newRun(id, fileName string, inputBytes int, res *normalize.Result, started, now time.Time, ttl time.Duration) *Run {
	return &Run{
		ID:                id,
		FileName:          fileName,
		Encoding:          res.Encoding,
		Confidence:        res.Confidence,
		Target:            res.Target,
		FoundNonPrintable: res.FoundNonPrintable,
		Rows:              res.Rows,
		Columns:           res.Columns,
		Escaped:           res.Escaped,
		ColumnEscapes:     res.ColumnEscapes,
		Warnings:          res.Warnings,
		InputBytes:        int64(inputBytes),
		OutputBytes:       int64(len(res.Output)),
		DurationMs:        now.Sub(started).Milliseconds(),
		CreatedAt:         now,
		ExpiresAt:         now.Add(ttl),
		output:            res.Output,
	}
}
