package report

import (
	"io"

	"gopkg.in/yaml.v3"
)

// YAMLWriter outputs summaries as YAML.
type YAMLWriter struct {
	baseWriter
}

// NewYAMLWriter creates a YAMLWriter that outputs to the given writer.
func NewYAMLWriter(output io.Writer) *YAMLWriter {
	return &YAMLWriter{baseWriter: newBaseWriter(output)}
}

func (w *YAMLWriter) Write(s *Summary) (int, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return 0, err
	}
	return w.output.Write(data)
}
