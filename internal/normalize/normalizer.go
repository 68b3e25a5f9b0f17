package normalize

import (
	"bytes"
	"fmt"
	"strings"
)

// Options configure a Normalizer. The zero value is usable: it detects with
// chardet over the first DefaultSampleSize bytes, fails on an uncertain
// guess, and substitutes DefaultPlaceholder in ASCII mode.
type Options struct {
	// Detector guesses the source encoding. Nil means NewChardetDetector().
	Detector Detector

	// SampleSize is the number of leading bytes handed to the detector.
	SampleSize int

	// MinConfidence rejects guesses below this confidence (0-100).
	MinConfidence int

	// FallbackEncoding is used when detection fails instead of returning a
	// DetectionError. The Result then carries a warning.
	FallbackEncoding string

	// Placeholder replaces non-ASCII characters in ASCII mode. It must be
	// a printable ASCII character.
	Placeholder rune

	// LazyQuotes relaxes CSV quote handling.
	LazyQuotes bool
}

// Normalizer runs the cleaning pipeline. It holds no per-run state and is
// safe for concurrent use.
type Normalizer struct {
	detector      Detector
	sampleSize    int
	minConfidence int
	fallback      string
	placeholder   rune
	parse         ParseOptions
}

// New creates a Normalizer from opts.
func New(opts Options) (*Normalizer, error) {
	n := &Normalizer{
		detector:      opts.Detector,
		sampleSize:    opts.SampleSize,
		minConfidence: opts.MinConfidence,
		fallback:      canonicalLabel(opts.FallbackEncoding),
		placeholder:   opts.Placeholder,
		parse:         ParseOptions{LazyQuotes: opts.LazyQuotes},
	}
	if n.detector == nil {
		n.detector = NewChardetDetector()
	}
	if n.sampleSize <= 0 {
		n.sampleSize = DefaultSampleSize
	}
	if n.placeholder == 0 {
		n.placeholder = DefaultPlaceholder
	}
	if n.placeholder < 0x20 || n.placeholder > 0x7E {
		return nil, fmt.Errorf("placeholder %q is not a printable ascii character", n.placeholder)
	}
	if n.minConfidence < 0 || n.minConfidence > 100 {
		return nil, fmt.Errorf("min confidence %d out of range 0-100", n.minConfidence)
	}
	if n.fallback != "" && n.fallback != LabelUTF8 && n.fallback != LabelASCII {
		if _, err := lookupEncoding(n.fallback); err != nil {
			return nil, fmt.Errorf("fallback encoding: %w", err)
		}
	}
	return n, nil
}

var defaultNormalizer, _ = New(Options{})

// Normalize cleans raw with the default Normalizer. It returns the detected
// encoding label, the cleaned CSV and whether any non-printable character
// was replaced.
func Normalize(raw []byte, convertToUTF8 bool) (string, []byte, bool, error) {
	res, err := defaultNormalizer.Normalize(raw, convertToUTF8)
	if err != nil {
		return "", nil, false, err
	}
	return res.Encoding, res.Output, res.FoundNonPrintable, nil
}

// Result describes a successful run.
type Result struct {
	Encoding          string         // detected source label
	Confidence        int            // detector confidence, 0-100
	Target            string         // LabelUTF8 or LabelASCII
	Output            []byte         // cleaned CSV in the target encoding
	FoundNonPrintable bool           // a data cell contains MarkerPrefix
	Rows              int            // data rows, header excluded
	Columns           int            // header width
	Escaped           int            // characters replaced by markers
	ColumnEscapes     map[string]int // escapes per column name, non-zero only
	Warnings          []string       // non-fatal notes for the user
}

// Normalize runs the whole pipeline over raw. With convertToUTF8 the input
// is decoded strictly and the output is UTF-8; without it the input is
// decoded lossily and the output is 7-bit ASCII with unrepresentable
// characters replaced by the placeholder. Either a complete Result or an
// error is returned.
func (n *Normalizer) Normalize(raw []byte, convertToUTF8 bool) (*Result, error) {
	det, warnings, err := n.detect(raw)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Encoding:   det.Label,
		Confidence: det.Confidence,
		Warnings:   warnings,
	}

	var text string
	if convertToUTF8 {
		res.Target = LabelUTF8
		text, err = decodeStrict(raw, det.Label)
	} else {
		res.Target = LabelASCII
		text, err = decodeLossy(raw, det.Label)
		if err == nil {
			text, err = toASCII(text, n.placeholder)
		}
	}
	if err != nil {
		return nil, err
	}

	table, err := ParseTable(text, n.parse)
	if err != nil {
		return nil, err
	}

	res.Rows = len(table.Rows)
	res.Columns = table.Columns()
	res.Escaped, res.ColumnEscapes = escapeCells(table)
	res.FoundNonPrintable = containsMarker(table)

	var buf bytes.Buffer
	buf.Grow(len(raw) + res.Escaped*5)
	if err := WriteTable(&buf, table); err != nil {
		return nil, fmt.Errorf("serialize: %w", err)
	}
	res.Output = buf.Bytes()
	return res, nil
}

// Detect returns the encoding guess for raw, honoring the confidence
// threshold and fallback.
func (n *Normalizer) Detect(raw []byte) (Detection, []string, error) {
	return n.detect(raw)
}

// Candidates lists every encoding guess for raw, best first. Detectors that
// only produce a single guess yield a one-element list.
func (n *Normalizer) Candidates(raw []byte) ([]Detection, error) {
	sample := trimIncompleteRune(sampleOf(raw, n.sampleSize))
	if cd, ok := n.detector.(interface {
		Candidates([]byte) ([]Detection, error)
	}); ok {
		return cd.Candidates(sample)
	}
	det, err := n.detector.Detect(sample)
	if err != nil {
		return nil, err
	}
	return []Detection{det}, nil
}

func (n *Normalizer) detect(raw []byte) (Detection, []string, error) {
	sample := trimIncompleteRune(sampleOf(raw, n.sampleSize))

	det, err := n.detector.Detect(sample)
	if err == nil && det.Label == "" {
		err = ErrNotDetected
	}
	if err == nil && det.Confidence < n.minConfidence {
		err = fmt.Errorf("confidence %d below minimum %d", det.Confidence, n.minConfidence)
	}
	if err == nil {
		det.Label = canonicalLabel(det.Label)
		return det, nil, nil
	}

	derr := &DetectionError{Label: canonicalLabel(det.Label), Confidence: det.Confidence, Err: err}
	if n.fallback == "" {
		return Detection{}, nil, derr
	}
	warning := fmt.Sprintf("%v; assuming %s", derr, n.fallback)
	return Detection{Label: n.fallback}, []string{warning}, nil
}

// escapeCells escapes every text cell of t in place and returns the total
// number of replaced characters plus a per-column breakdown.
func escapeCells(t *Table) (int, map[string]int) {
	total := 0
	perColumn := make(map[string]int)
	for _, row := range t.Rows {
		for i, c := range row {
			if c.Kind != CellText {
				continue
			}
			escaped, n := escapeCount(c.Value)
			if n == 0 {
				continue
			}
			row[i].Value = escaped
			total += n
			perColumn[t.Header[i]] += n
		}
	}
	return total, perColumn
}

// containsMarker reports whether any data cell holds an escape marker.
// Header names are labels, not cells, and are not scanned.
func containsMarker(t *Table) bool {
	for _, row := range t.Rows {
		for _, c := range row {
			if c.Kind == CellText && strings.Contains(c.Value, MarkerPrefix) {
				return true
			}
		}
	}
	return false
}
