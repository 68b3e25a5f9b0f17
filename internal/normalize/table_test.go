package normalize

import (
	"bytes"
	"encoding/csv"
	"errors"
	"reflect"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		field string
		want  Cell
	}{
		{"", Null()},
		{"42", Number("42")},
		{"-3.5", Number("-3.5")},
		{"+.5", Number("+.5")},
		{"1e10", Number("1e10")},
		{"007", Number("007")},
		{"3.", Number("3.")},
		{"1,000", Text("1,000")},
		{"true", Text("true")},
		{" 42", Text(" 42")},
		{"abc", Text("abc")},
		{"NaN", Text("NaN")},
	}
	for _, tt := range tests {
		if got := classify(tt.field); got != tt.want {
			t.Errorf("classify(%q) = %+v, want %+v", tt.field, got, tt.want)
		}
	}
}

func TestParseTable(t *testing.T) {
	table, err := ParseTable("id,name,score\n1,alice,9.5\n2,,\n", ParseOptions{})
	if err != nil {
		t.Fatalf("ParseTable: %v", err)
	}
	if table.Columns() != 3 {
		t.Errorf("Columns() = %d, want 3", table.Columns())
	}
	if len(table.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(table.Rows))
	}
	want := [][]Cell{
		{Number("1"), Text("alice"), Number("9.5")},
		{Number("2"), Null(), Null()},
	}
	for i, row := range want {
		for j, c := range row {
			if table.Rows[i][j] != c {
				t.Errorf("cell[%d][%d] = %+v, want %+v", i, j, table.Rows[i][j], c)
			}
		}
	}
}

func TestParseTable_HeaderOnly(t *testing.T) {
	table, err := ParseTable("a,b\n", ParseOptions{})
	if err != nil {
		t.Fatalf("ParseTable: %v", err)
	}
	if len(table.Rows) != 0 || table.Columns() != 2 {
		t.Errorf("got %d rows, %d columns", len(table.Rows), table.Columns())
	}
}

func TestParseTable_Errors(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantErr  error
		wantLine int
	}{
		{"empty", "", ErrEmptyFile, 0},
		{"blank lines only", "\n\n", ErrEmptyFile, 0},
		{"field count", "a,b\n1,2\n1,2,3\n", csv.ErrFieldCount, 3},
		{"bare quote", "a,b\nx\"y,1\n", csv.ErrBareQuote, 2},
		{"unterminated quote", "a,b\n\"open,1\n", csv.ErrQuote, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTable(tt.text, ParseOptions{})
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("error = %v, want *ParseError", err)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want wrapping %v", err, tt.wantErr)
			}
			if tt.wantLine > 0 && pe.Line != tt.wantLine {
				t.Errorf("Line = %d, want %d", pe.Line, tt.wantLine)
			}
		})
	}
}

func TestParseTable_LazyQuotes(t *testing.T) {
	table, err := ParseTable("a,b\nx\"y,1\n", ParseOptions{LazyQuotes: true})
	if err != nil {
		t.Fatalf("ParseTable: %v", err)
	}
	if got := table.Rows[0][0]; got != Text(`x"y`) {
		t.Errorf("cell = %+v", got)
	}
}

func TestWriteTable(t *testing.T) {
	table := &Table{
		Header: []string{"id", "note", "empty"},
		Rows: [][]Cell{
			{Number("1"), Text(`say "hi"`), Null()},
			{Number("1e3"), Text("a,b"), Text("")},
		},
	}
	var buf bytes.Buffer
	if err := WriteTable(&buf, table); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}
	want := "\"id\",\"note\",\"empty\"\n" +
		"1,\"say \"\"hi\"\"\",\"\"\n" +
		"1e3,\"a,b\",\"\"\n"
	if buf.String() != want {
		t.Errorf("WriteTable =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestWriteTable_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   string
		rows int
	}{
		{
			name: "mixed cells",
			in: "\"h1\",\"h2\",\"h3\"\n" +
				"1,\"text, with comma\",\"\"\n" +
				"\"\",\"quote \"\" inside\",2.5\n",
			rows: 2,
		},
		{
			name: "single column with null",
			in:   "\"h\"\n\"\"\n\"x\"\n",
			rows: 2,
		},
		{
			name: "quoted crlf",
			in:   "\"a\",\"b\"\n\"x\r\ny\",1\n",
			rows: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := ParseTable(tt.in, ParseOptions{})
			if err != nil {
				t.Fatalf("ParseTable: %v", err)
			}
			if len(table.Rows) != tt.rows {
				t.Fatalf("rows = %d, want %d", len(table.Rows), tt.rows)
			}
			var buf bytes.Buffer
			if err := WriteTable(&buf, table); err != nil {
				t.Fatalf("WriteTable: %v", err)
			}
			if buf.String() != tt.in {
				t.Errorf("round trip changed output:\n got %q\nwant %q", buf.String(), tt.in)
			}
		})
	}
}

func TestWriteTable_NullSingleColumn(t *testing.T) {
	table := &Table{
		Header: []string{"h"},
		Rows:   [][]Cell{{Null()}, {Text("x")}},
	}
	var buf bytes.Buffer
	if err := WriteTable(&buf, table); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}
	if want := "\"h\"\n\"\"\n\"x\"\n"; buf.String() != want {
		t.Errorf("WriteTable = %q, want %q", buf.String(), want)
	}

	again, err := ParseTable(buf.String(), ParseOptions{})
	if err != nil {
		t.Fatalf("ParseTable: %v", err)
	}
	if len(again.Rows) != 2 || !again.Rows[0][0].IsNull() {
		t.Errorf("re-parsed rows = %+v", again.Rows)
	}
}

func TestParseTable_QuotedCarriageReturn(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		lazy   bool
		header []string
		want   []Cell
	}{
		{
			name:   "crlf in quoted field",
			in:     "a,b\r\n\"x\r\ny\",1\r\n",
			header: []string{"a", "b"},
			want:   []Cell{Text("x\r\ny"), Number("1")},
		},
		{
			name:   "lone cr and doubled quote",
			in:     "a\n\"p\"\"\rq\"\n",
			header: []string{"a"},
			want:   []Cell{Text("p\"\rq")},
		},
		{
			name:   "cr in quoted header",
			in:     "\"h\r\n1\",b\nx,y\n",
			header: []string{"h\r\n1", "b"},
			want:   []Cell{Text("x"), Text("y")},
		},
		{
			name:   "lazy literal quote keeps field open",
			in:     "a\n\"x\"y\r\nz\"\n",
			lazy:   true,
			header: []string{"a"},
			want:   []Cell{Text("x\"y\r\nz")},
		},
		{
			name:   "unquoted crlf line ends untouched",
			in:     "a,b\r\n1,2\r\n",
			header: []string{"a", "b"},
			want:   []Cell{Number("1"), Number("2")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := ParseTable(tt.in, ParseOptions{LazyQuotes: tt.lazy})
			if err != nil {
				t.Fatalf("ParseTable: %v", err)
			}
			if !reflect.DeepEqual(table.Header, tt.header) {
				t.Errorf("header = %q, want %q", table.Header, tt.header)
			}
			if len(table.Rows) != 1 || !reflect.DeepEqual(table.Rows[0], tt.want) {
				t.Errorf("rows = %+v, want [%+v]", table.Rows, tt.want)
			}
		})
	}
}
