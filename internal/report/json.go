package report

import (
	"encoding/json"
	"io"
)

// JSONWriter outputs summaries as JSON.
type JSONWriter struct {
	baseWriter

	indent       bool
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithPrettyPrint enables indented output.
func WithPrettyPrint() JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentString = "  "
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *JSONWriter) Write(s *Summary) (int, error) {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(s, "", w.indentString)
	} else {
		data, err = json.Marshal(s)
	}
	if err != nil {
		return 0, err
	}

	data = append(data, '\n')
	return w.output.Write(data)
}
