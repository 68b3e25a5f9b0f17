package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/csvclean/internal/core"
)

func createTestRun(found bool) *core.Run {
	run := &core.Run{
		ID:         "run-1",
		FileName:   "people.csv",
		Encoding:   "windows-1252",
		Confidence: 63,
		Target:     "utf-8",
		Rows:       3,
		Columns:    2,
		InputBytes: 40,
		CreatedAt:  time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if found {
		run.FoundNonPrintable = true
		run.Escaped = 5
		run.ColumnEscapes = map[string]int{"name": 1, "note": 4}
	}
	return run
}

func TestFromRun(t *testing.T) {
	s := FromRun(createTestRun(true))

	if s.Notice != "Non-printable characters were found and replaced" {
		t.Errorf("Notice = %q", s.Notice)
	}
	if len(s.ColumnEscapes) != 2 {
		t.Fatalf("ColumnEscapes = %v, want 2 entries", s.ColumnEscapes)
	}
	if s.ColumnEscapes[0].Column != "note" || s.ColumnEscapes[0].Escaped != 4 {
		t.Errorf("first column = %+v, want note/4", s.ColumnEscapes[0])
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", FormatJSON, false},
		{"JSON", FormatJSON, false},
		{"yml", FormatYAML, false},
		{"md", FormatMarkdown, false},
		{"markdown", FormatMarkdown, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestJSONWriter(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(FormatJSON, &buf)
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}

	n, err := w.Write(FromRun(createTestRun(true)))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if n != buf.Len() {
		t.Errorf("Write() = %d, buffer has %d bytes", n, buf.Len())
	}

	var got Summary
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if got.RunID != "run-1" || got.Escaped != 5 || !got.FoundNonPrintable {
		t.Errorf("decoded = %+v", got)
	}
	if !strings.Contains(buf.String(), "\n  \"run_id\"") {
		t.Error("expected indented output")
	}
}

func TestYAMLWriter(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter("yaml", &buf)
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}
	if _, err := w.Write(FromRun(createTestRun(false))); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "encoding: windows-1252") {
		t.Errorf("output missing encoding:\n%s", out)
	}
	if strings.Contains(out, "column_escapes") {
		t.Error("empty column_escapes should be omitted")
	}

	var got map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not YAML: %v", err)
	}
	if got["file_name"] != "people.csv" {
		t.Errorf("file_name = %v", got["file_name"])
	}
}

func TestMarkdownWriter(t *testing.T) {
	t.Run("with findings", func(t *testing.T) {
		var buf bytes.Buffer
		w := NewMarkdownWriter(&buf)
		if _, err := w.Write(FromRun(createTestRun(true))); err != nil {
			t.Fatalf("Write() error = %v", err)
		}

		out := buf.String()
		for _, want := range []string{
			"# CSV Cleaning Report",
			"people.csv",
			"windows-1252 (63%)",
			"## Non-printable Characters",
			"CAUTION",
			"note",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
		if strings.Contains(out, "## Warnings") {
			t.Error("unexpected warnings section")
		}
	})

	t.Run("clean file with warnings", func(t *testing.T) {
		run := createTestRun(false)
		run.Warnings = []string{"encoding detection failed; assuming windows-1252"}

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(FromRun(run)); err != nil {
			t.Fatalf("Write() error = %v", err)
		}

		out := buf.String()
		if !strings.Contains(out, "No non-printable characters found") {
			t.Errorf("output missing notice:\n%s", out)
		}
		if strings.Contains(out, "CAUTION") {
			t.Error("unexpected caution alert")
		}
		if !strings.Contains(out, "## Warnings") || !strings.Contains(out, "assuming windows-1252") {
			t.Errorf("output missing warnings:\n%s", out)
		}
	})
}

func TestContentTypeAndExtension(t *testing.T) {
	if ContentType(FormatMarkdown) != "text/markdown; charset=utf-8" {
		t.Errorf("ContentType(markdown) = %q", ContentType(FormatMarkdown))
	}
	if Extension(FormatYAML) != "yaml" || Extension(FormatJSON) != "json" {
		t.Error("unexpected extensions")
	}
}
