package report

import (
	"fmt"
	"io"
	"strings"
)

// Supported report formats.
const (
	FormatJSON     = "json"
	FormatYAML     = "yaml"
	FormatMarkdown = "markdown"
)

// Writer writes a run summary in one format.
type Writer interface {
	// Write outputs the summary and returns the number of bytes written.
	Write(s *Summary) (int, error)
}

// ParseFormat resolves a user-supplied format name. Empty means JSON.
func ParseFormat(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	case FormatMarkdown, "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unknown report format %q (want json, yaml or markdown)", name)
	}
}

// NewWriter returns a Writer for format that writes to w.
func NewWriter(format string, w io.Writer) (Writer, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	switch f {
	case FormatYAML:
		return NewYAMLWriter(w), nil
	case FormatMarkdown:
		return NewMarkdownWriter(w), nil
	default:
		return NewJSONWriter(w, WithPrettyPrint()), nil
	}
}

// ContentType returns the HTTP content type for format.
func ContentType(format string) string {
	switch format {
	case FormatYAML:
		return "application/yaml; charset=utf-8"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	default:
		return "application/json"
	}
}

// Extension returns the file extension for format, without the dot.
func Extension(format string) string {
	switch format {
	case FormatYAML:
		return "yaml"
	case FormatMarkdown:
		return "md"
	default:
		return "json"
	}
}

// baseWriter holds the output destination shared by all writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}
