package normalize

import (
	"bufio"
	"encoding/csv"
	"errors"
	"io"
	"regexp"
	"strings"
)

// CellKind tags the variant held by a Cell.
type CellKind int

const (
	CellNull CellKind = iota
	CellText
	CellNumber
)

func (k CellKind) String() string {
	switch k {
	case CellText:
		return "text"
	case CellNumber:
		return "number"
	default:
		return "null"
	}
}

// Cell is a single table value: text, a number, or null.
// Number cells keep the literal from the source so that "007" or "1e3"
// survive unchanged.
type Cell struct {
	Kind  CellKind
	Value string
}

// Text returns a text cell.
func Text(s string) Cell { return Cell{Kind: CellText, Value: s} }

// Number returns a numeric cell holding the literal lit.
func Number(lit string) Cell { return Cell{Kind: CellNumber, Value: lit} }

// Null returns a null cell.
func Null() Cell { return Cell{Kind: CellNull} }

// IsNull reports whether c is null.
func (c Cell) IsNull() bool { return c.Kind == CellNull }

// numericRegex matches integers, decimals and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// classify types a raw CSV field: empty is null, a numeric literal is a
// number, anything else is text.
func classify(field string) Cell {
	switch {
	case field == "":
		return Null()
	case numericRegex.MatchString(field):
		return Number(field)
	default:
		return Text(field)
	}
}

// Table is parsed CSV: a header row plus data rows. Every row has exactly
// len(Header) cells.
type Table struct {
	Header []string
	Rows   [][]Cell
}

// Columns returns the column count.
func (t *Table) Columns() int { return len(t.Header) }

// ParseOptions tune ParseTable.
type ParseOptions struct {
	// LazyQuotes accepts a quote in an unquoted field and a non-doubled
	// quote in a quoted field.
	LazyQuotes bool
}

// ParseTable parses comma-separated text into a Table. The first record is
// the header. Every following record must have the same number of fields;
// a mismatch, an unterminated quote, or input without any record fails with
// a ParseError.
func ParseTable(text string, opts ParseOptions) (*Table, error) {
	text, restore, err := protectQuotedCR(text, opts.LazyQuotes)
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = ','
	r.FieldsPerRecord = 0 // set from the header
	r.LazyQuotes = opts.LazyQuotes

	header, err := r.Read()
	if err == io.EOF {
		return nil, &ParseError{Err: ErrEmptyFile}
	}
	if err != nil {
		return nil, wrapCSVError(err)
	}

	for i := range header {
		header[i] = restore(header[i])
	}

	t := &Table{Header: header}
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, wrapCSVError(err)
		}

		row := make([]Cell, len(record))
		for i, field := range record {
			row[i] = classify(restore(field))
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// Noncharacters in this range stand in for a quoted carriage return while
// encoding/csv reads the text.
const (
	crSentinelFirst rune = 0xFDD0
	crSentinelLast  rune = 0xFDEF
)

var errNoCRSentinel = errors.New("cannot preserve carriage returns in quoted fields")

// protectQuotedCR hides every carriage return inside a quoted field behind a
// sentinel rune absent from text, because encoding/csv folds "\r\n" inside
// quotes into "\n". The returned func puts the carriage returns back into a
// parsed field. Text without a quoted carriage return is returned unchanged.
func protectQuotedCR(text string, lazy bool) (string, func(string) string, error) {
	keep := func(s string) string { return s }
	if !strings.Contains(text, "\r") {
		return text, keep, nil
	}

	sentinel := rune(-1)
	for r := crSentinelFirst; r <= crSentinelLast; r++ {
		if !strings.ContainsRune(text, r) {
			sentinel = r
			break
		}
	}

	var b strings.Builder
	b.Grow(len(text))
	protected := false
	inQuotes, fieldStart := false, true
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case inQuotes && c == '\r':
			if sentinel < 0 {
				return "", nil, errNoCRSentinel
			}
			b.WriteRune(sentinel)
			protected = true
			continue
		case inQuotes && c == '"':
			if i+1 == len(text) {
				inQuotes = false
				break
			}
			// In lazy mode a quote not followed by a separator is literal.
			switch next := text[i+1]; {
			case next == '"':
				b.WriteString(`""`)
				i++
				continue
			case next == ',', next == '\n', next == '\r', !lazy:
				inQuotes = false
			}
		case !inQuotes && c == '"' && fieldStart:
			inQuotes = true
		}
		fieldStart = !inQuotes && (c == ',' || c == '\n')
		b.WriteByte(c)
	}

	if !protected {
		return text, keep, nil
	}
	old := string(sentinel)
	return b.String(), func(s string) string { return strings.ReplaceAll(s, old, "\r") }, nil
}

// wrapCSVError turns an encoding/csv error into a ParseError carrying the
// line number.
func wrapCSVError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &ParseError{Line: pe.Line, Err: pe.Err}
	}
	return &ParseError{Err: err}
}

// WriteTable serializes t as CSV with every non-numeric field quoted:
// header names and text cells are quoted (embedded quotes doubled), numbers
// are written bare, and null cells become "" so that a blank row survives a
// re-read. Lines end with "\n". Cells are typed one by one, so a numeric
// literal in an otherwise textual column is still written bare.
func WriteTable(w io.Writer, t *Table) error {
	bw := bufio.NewWriter(w)

	for i, name := range t.Header {
		if i > 0 {
			bw.WriteByte(',')
		}
		writeQuoted(bw, name)
	}
	bw.WriteByte('\n')

	for _, row := range t.Rows {
		for i, c := range row {
			if i > 0 {
				bw.WriteByte(',')
			}
			switch c.Kind {
			case CellText:
				writeQuoted(bw, c.Value)
			case CellNumber:
				bw.WriteString(c.Value)
			default:
				bw.WriteString(`""`)
			}
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func writeQuoted(bw *bufio.Writer, s string) {
	bw.WriteByte('"')
	bw.WriteString(strings.ReplaceAll(s, `"`, `""`))
	bw.WriteByte('"')
}
