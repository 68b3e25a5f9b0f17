package report

import (
	"sort"
	"time"

	"github.com/JonMunkholm/csvclean/internal/core"
)

// ColumnCount is the number of escaped characters in one column.
type ColumnCount struct {
	Column  string `json:"column" yaml:"column"`
	Escaped int    `json:"escaped" yaml:"escaped"`
}

// Summary describes one cleaning run for reporting.
type Summary struct {
	RunID             string        `json:"run_id" yaml:"run_id"`
	FileName          string        `json:"file_name" yaml:"file_name"`
	Encoding          string        `json:"encoding" yaml:"encoding"`
	Confidence        int           `json:"confidence" yaml:"confidence"`
	Target            string        `json:"target" yaml:"target"`
	FoundNonPrintable bool          `json:"found_non_printable" yaml:"found_non_printable"`
	Notice            string        `json:"notice" yaml:"notice"`
	Rows              int           `json:"rows" yaml:"rows"`
	Columns           int           `json:"columns" yaml:"columns"`
	Escaped           int           `json:"escaped" yaml:"escaped"`
	ColumnEscapes     []ColumnCount `json:"column_escapes,omitempty" yaml:"column_escapes,omitempty"`
	Warnings          []string      `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	InputBytes        int64         `json:"input_bytes" yaml:"input_bytes"`
	OutputBytes       int64         `json:"output_bytes" yaml:"output_bytes"`
	DurationMs        int64         `json:"duration_ms" yaml:"duration_ms"`
	CreatedAt         time.Time     `json:"created_at" yaml:"created_at"`
}

// FromRun builds a Summary. Column escapes are sorted by count, highest
// first, then by column name.
func FromRun(run *core.Run) *Summary {
	s := &Summary{
		RunID:             run.ID,
		FileName:          run.FileName,
		Encoding:          run.Encoding,
		Confidence:        run.Confidence,
		Target:            run.Target,
		FoundNonPrintable: run.FoundNonPrintable,
		Notice:            run.Notice(),
		Rows:              run.Rows,
		Columns:           run.Columns,
		Escaped:           run.Escaped,
		Warnings:          run.Warnings,
		InputBytes:        run.InputBytes,
		OutputBytes:       run.OutputBytes,
		DurationMs:        run.DurationMs,
		CreatedAt:         run.CreatedAt,
	}

	for col, n := range run.ColumnEscapes {
		s.ColumnEscapes = append(s.ColumnEscapes, ColumnCount{Column: col, Escaped: n})
	}
	sort.Slice(s.ColumnEscapes, func(i, j int) bool {
		a, b := s.ColumnEscapes[i], s.ColumnEscapes[j]
		if a.Escaped != b.Escaped {
			return a.Escaped > b.Escaped
		}
		return a.Column < b.Column
	})
	return s
}
