// Package templates holds the templ components rendered by the web server.
// Edit the .templ files and run "templ generate" to refresh *_templ.go.
package templates

//go:generate templ generate

import (
	"fmt"
	"time"
)

// UploadParams configures the upload form.
type UploadParams struct {
	MaxFileSize   int64
	ConvertToUTF8 bool
}

// ResultParams describes a finished run for the result page.
type ResultParams struct {
	RunID             string
	FileName          string
	Encoding          string
	Confidence        int
	Target            string
	Notice            string
	FoundNonPrintable bool
	Rows              int
	Columns           int
	Escaped           int
	Warnings          []string
	ExpiresAt         time.Time
	DownloadURL       string
}

// formatBytes formats n using binary units.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
