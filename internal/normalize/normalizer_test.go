package normalize

import (
	"errors"
	"strings"
	"testing"
)

// fakeDetector returns a fixed guess.
type fakeDetector struct {
	det Detection
	err error
}

func (f fakeDetector) Detect([]byte) (Detection, error) { return f.det, f.err }

func mustNew(t *testing.T, opts Options) *Normalizer {
	t.Helper()
	n, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return n
}

func TestNormalize_EscapesControlCharacters(t *testing.T) {
	enc, out, found, err := Normalize([]byte("name,note\nalice,hi\tthere\nbob,\n"), true)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if enc != LabelASCII {
		t.Errorf("encoding = %q, want %q", enc, LabelASCII)
	}
	if !found {
		t.Error("found = false, want true")
	}
	want := "\"name\",\"note\"\n\"alice\",\"hi<0x09>there\"\n\"bob\",\"\"\n"
	if string(out) != want {
		t.Errorf("output =\n%q\nwant\n%q", out, want)
	}
}

func TestNormalize_CleanFile(t *testing.T) {
	_, out, found, err := Normalize([]byte("id,name\n1,alice\n2,bob\n"), true)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if found {
		t.Error("found = true, want false")
	}
	want := "\"id\",\"name\"\n1,\"alice\"\n2,\"bob\"\n"
	if string(out) != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestNormalize_QuotedCRLF(t *testing.T) {
	_, out, found, err := Normalize([]byte("a,b\n\"x\r\ny\",1\n"), true)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !found {
		t.Error("found = false, want true")
	}
	if want := "\"a\",\"b\"\n\"x<0x0D><0x0A>y\",1\n"; string(out) != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestNormalize_MarkerInHeaderOnly(t *testing.T) {
	_, out, found, err := Normalize([]byte("<0x41>,b\n1,2\n"), true)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if found {
		t.Error("found = true for a marker in the header only")
	}
	if want := "\"<0x41>\",\"b\"\n1,2\n"; string(out) != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestNormalize_ResultDetails(t *testing.T) {
	n := mustNew(t, Options{})
	res, err := n.Normalize([]byte("a,b\n\"x\ny\",1\n\x01,\"\x7f\x7f\"\n"), true)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if res.Rows != 2 || res.Columns != 2 {
		t.Errorf("rows/columns = %d/%d, want 2/2", res.Rows, res.Columns)
	}
	if res.Escaped != 4 {
		t.Errorf("Escaped = %d, want 4", res.Escaped)
	}
	if res.ColumnEscapes["a"] != 2 || res.ColumnEscapes["b"] != 2 {
		t.Errorf("ColumnEscapes = %v", res.ColumnEscapes)
	}
	if res.Target != LabelUTF8 || res.Confidence != 100 {
		t.Errorf("target/confidence = %q/%d", res.Target, res.Confidence)
	}
	want := "\"a\",\"b\"\n\"x<0x0A>y\",1\n\"<0x01>\",\"<0x7F><0x7F>\"\n"
	if string(res.Output) != want {
		t.Errorf("output = %q, want %q", res.Output, want)
	}
}

func TestNormalize_HeaderIsNotEscaped(t *testing.T) {
	_, out, found, err := Normalize([]byte("\"col\tone\"\nvalue\n"), true)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if found {
		t.Error("a header-only control character set found")
	}
	if want := "\"col\tone\"\n\"value\"\n"; string(out) != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestNormalize_NumbersKeepTheirLiteral(t *testing.T) {
	_, out, _, err := Normalize([]byte("code\n007\n1e3\n-2.5\n"), true)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if want := "\"code\"\n007\n1e3\n-2.5\n"; string(out) != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestNormalize_UTF8BOM(t *testing.T) {
	enc, out, _, err := Normalize([]byte("\xEF\xBB\xBFa,b\n1,2\n"), true)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if enc != LabelUTF8 {
		t.Errorf("encoding = %q, want %q", enc, LabelUTF8)
	}
	if want := "\"a\",\"b\"\n1,2\n"; string(out) != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestNormalize_Latin1(t *testing.T) {
	n := mustNew(t, Options{Detector: fakeDetector{det: Detection{Label: "ISO-8859-1", Confidence: 80}}})
	raw := []byte("name\ncaf\xe9\n")

	res, err := n.Normalize(raw, true)
	if err != nil {
		t.Fatalf("Normalize utf-8: %v", err)
	}
	if res.Encoding != "iso-8859-1" {
		t.Errorf("encoding = %q", res.Encoding)
	}
	if want := "\"name\"\n\"café\"\n"; string(res.Output) != want {
		t.Errorf("utf-8 output = %q, want %q", res.Output, want)
	}

	res, err = n.Normalize(raw, false)
	if err != nil {
		t.Fatalf("Normalize ascii: %v", err)
	}
	if want := "\"name\"\n\"caf?\"\n"; string(res.Output) != want {
		t.Errorf("ascii output = %q, want %q", res.Output, want)
	}
	if res.Target != LabelASCII {
		t.Errorf("target = %q", res.Target)
	}
}

func TestNormalize_ASCIIPlaceholder(t *testing.T) {
	n := mustNew(t, Options{
		Detector:    fakeDetector{det: Detection{Label: LabelUTF8, Confidence: 100}},
		Placeholder: '_',
	})
	res, err := n.Normalize([]byte("w\nnaïve 日本\n"), false)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if want := "\"w\"\n\"na_ve __\"\n"; string(res.Output) != want {
		t.Errorf("output = %q, want %q", res.Output, want)
	}
	for _, b := range res.Output {
		if b >= 0x80 {
			t.Fatalf("output contains non-ascii byte %#x", b)
		}
	}
}

func TestNormalize_StrictUTF8Failure(t *testing.T) {
	n := mustNew(t, Options{Detector: fakeDetector{det: Detection{Label: LabelUTF8, Confidence: 90}}})
	_, err := n.Normalize([]byte("a\nx\xffy\n"), true)
	var ee *EncodingError
	if !errors.As(err, &ee) {
		t.Fatalf("error = %v, want *EncodingError", err)
	}
	if ee.Offset != 3 {
		t.Errorf("Offset = %d, want 3", ee.Offset)
	}

	res, err := n.Normalize([]byte("a\nx\xffy\n"), false)
	if err != nil {
		t.Fatalf("lossy Normalize: %v", err)
	}
	if want := "\"a\"\n\"x?y\"\n"; string(res.Output) != want {
		t.Errorf("lossy output = %q, want %q", res.Output, want)
	}
}

func TestNormalize_NonASCIIAfterSample(t *testing.T) {
	raw := []byte("h\n" + strings.Repeat("x\n", DefaultSampleSize) + "é\n")

	_, _, _, err := Normalize(raw, true)
	var ee *EncodingError
	if !errors.As(err, &ee) {
		t.Fatalf("error = %v, want *EncodingError", err)
	}
	if ee.Label != LabelASCII {
		t.Errorf("Label = %q, want %q", ee.Label, LabelASCII)
	}

	_, out, _, err := Normalize(raw, false)
	if err != nil {
		t.Fatalf("lossy Normalize: %v", err)
	}
	if !strings.HasSuffix(string(out), "\"??\"\n") {
		t.Errorf("output tail = %q", out[len(out)-8:])
	}
}

func TestNormalize_ParseError(t *testing.T) {
	_, out, _, err := Normalize([]byte("a,b\n1,2,3\n"), true)
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want *ParseError", err)
	}
	if out != nil {
		t.Error("output returned alongside an error")
	}
}

func TestNormalize_DetectionFailure(t *testing.T) {
	failing := fakeDetector{err: ErrNotDetected}

	n := mustNew(t, Options{Detector: failing})
	_, err := n.Normalize([]byte("a\n1\n"), true)
	var de *DetectionError
	if !errors.As(err, &de) {
		t.Fatalf("error = %v, want *DetectionError", err)
	}
	if !errors.Is(err, ErrNotDetected) {
		t.Errorf("error does not wrap ErrNotDetected: %v", err)
	}

	n = mustNew(t, Options{Detector: failing, FallbackEncoding: "Windows-1252"})
	res, err := n.Normalize([]byte("a\n\x80\n"), true)
	if err != nil {
		t.Fatalf("Normalize with fallback: %v", err)
	}
	if res.Encoding != "windows-1252" {
		t.Errorf("encoding = %q, want windows-1252", res.Encoding)
	}
	if len(res.Warnings) != 1 {
		t.Errorf("warnings = %v, want one", res.Warnings)
	}
	if want := "\"a\"\n\"€\"\n"; string(res.Output) != want {
		t.Errorf("output = %q, want %q", res.Output, want)
	}
}

func TestNormalize_MinConfidence(t *testing.T) {
	n := mustNew(t, Options{
		Detector:      fakeDetector{det: Detection{Label: "shift_jis", Confidence: 10}},
		MinConfidence: 50,
	})
	_, err := n.Normalize([]byte("a\n1\n"), true)
	var de *DetectionError
	if !errors.As(err, &de) {
		t.Fatalf("error = %v, want *DetectionError", err)
	}
	if de.Label != "shift_jis" || de.Confidence != 10 {
		t.Errorf("DetectionError = %+v", de)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	_, first, _, err := Normalize([]byte("k,v\n\"a\tb\",1\n\"c\"\"d\",\n"), true)
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	_, second, found, err := Normalize(first, true)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if string(second) != string(first) {
		t.Errorf("second pass changed output:\n%q\n%q", first, second)
	}
	if !found {
		t.Error("markers from the first pass not reported on the second")
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"control placeholder", Options{Placeholder: '\t'}},
		{"non-ascii placeholder", Options{Placeholder: 'é'}},
		{"confidence too high", Options{MinConfidence: 101}},
		{"unknown fallback", Options{FallbackEncoding: "klingon-8"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.opts); err == nil {
				t.Error("New succeeded, want error")
			}
		})
	}
}

func TestCandidates(t *testing.T) {
	n := mustNew(t, Options{})
	got, err := n.Candidates([]byte("plain,ascii\n1,2\n"))
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(got) != 1 || got[0].Label != LabelASCII {
		t.Errorf("Candidates = %+v", got)
	}

	n = mustNew(t, Options{Detector: fakeDetector{det: Detection{Label: "koi8-r", Confidence: 40}}})
	got, err = n.Candidates([]byte("x"))
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(got) != 1 || got[0].Label != "koi8-r" {
		t.Errorf("Candidates = %+v", got)
	}
}
