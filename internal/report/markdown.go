package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
)

// MarkdownWriter outputs summaries as a Markdown document.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

func (w *MarkdownWriter) Write(s *Summary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, s)
	w.writeFindings(md, s)
	w.writeWarnings(md, s)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, s *Summary) {
	md.H1("CSV Cleaning Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"File", "`" + s.FileName + "`"},
			{"Run ID", "`" + s.RunID + "`"},
			{"Detected Encoding", s.Encoding + " (" + strconv.Itoa(s.Confidence) + "%)"},
			{"Output Encoding", s.Target},
			{"Rows", strconv.Itoa(s.Rows)},
			{"Columns", strconv.Itoa(s.Columns)},
			{"Input Bytes", strconv.FormatInt(s.InputBytes, 10)},
			{"Output Bytes", strconv.FormatInt(s.OutputBytes, 10)},
			{"Duration", strconv.FormatInt(s.DurationMs, 10) + " ms"},
			{"Cleaned At", s.CreatedAt.Format("2006-01-02 15:04:05 MST")},
		},
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeFindings(md *markdown.Markdown, s *Summary) {
	md.H2("Non-printable Characters")
	md.PlainText("")

	if !s.FoundNonPrintable {
		md.Tip(s.Notice)
		md.PlainText("")
		return
	}

	md.Cautionf("%s: %d character(s) escaped.", s.Notice, s.Escaped)
	md.PlainText("")

	rows := make([][]string, 0, len(s.ColumnEscapes))
	for _, c := range s.ColumnEscapes {
		rows = append(rows, []string{c.Column, strconv.Itoa(c.Escaped)})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Column", "Escaped"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeWarnings(md *markdown.Markdown, s *Summary) {
	if len(s.Warnings) == 0 {
		return
	}
	md.H2("Warnings")
	md.PlainText("")
	md.Note("The encoding could not be detected reliably; the output may contain substituted characters.")
	md.PlainText("")
	md.BulletList(s.Warnings...)
	md.PlainText("")
}
