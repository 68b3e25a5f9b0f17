package normalize

import (
	"bytes"
	"errors"
	"strings"

	"github.com/saintfish/chardet"
)

// DefaultSampleSize is how many leading bytes the detector inspects.
const DefaultSampleSize = 1024

// Canonical labels for the encodings the normalizer handles itself.
const (
	LabelUTF8  = "utf-8"
	LabelASCII = "ascii"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Detection is an encoding guess. Confidence ranges from 0 to 100.
type Detection struct {
	Label      string `json:"label"`
	Confidence int    `json:"confidence"`
	Language   string `json:"language,omitempty"`
}

// Detector guesses the character encoding of a byte sample.
type Detector interface {
	// Detect returns the best guess for sample. It returns an error when
	// no guess can be made.
	Detect(sample []byte) (Detection, error)
}

// ChardetDetector is the default Detector. It answers BOM-prefixed and pure
// 7-bit samples itself and defers everything else to a statistical
// detector.
type ChardetDetector struct {
	text *chardet.Detector
}

// NewChardetDetector creates a detector for plain text (no HTML stripping).
func NewChardetDetector() *ChardetDetector {
	return &ChardetDetector{text: chardet.NewTextDetector()}
}

// Detect implements Detector.
func (d *ChardetDetector) Detect(sample []byte) (Detection, error) {
	if det, ok := quickDetect(sample); ok {
		return det, nil
	}

	res, err := d.text.DetectBest(sample)
	if err != nil || res == nil {
		if err == nil || errors.Is(err, chardet.NotDetectedError) {
			err = ErrNotDetected
		}
		return Detection{}, err
	}
	return Detection{
		Label:      canonicalLabel(res.Charset),
		Confidence: res.Confidence,
		Language:   res.Language,
	}, nil
}

// Candidates returns every guess for sample, best first.
func (d *ChardetDetector) Candidates(sample []byte) ([]Detection, error) {
	if det, ok := quickDetect(sample); ok {
		return []Detection{det}, nil
	}

	results, err := d.text.DetectAll(sample)
	if err != nil {
		if errors.Is(err, chardet.NotDetectedError) {
			err = ErrNotDetected
		}
		return nil, err
	}

	out := make([]Detection, 0, len(results))
	seen := make(map[string]bool, len(results))
	for _, r := range results {
		label := canonicalLabel(r.Charset)
		if seen[label] {
			continue
		}
		seen[label] = true
		out = append(out, Detection{Label: label, Confidence: r.Confidence, Language: r.Language})
	}
	return out, nil
}

// quickDetect handles the unambiguous cases without statistics.
func quickDetect(sample []byte) (Detection, bool) {
	if bytes.HasPrefix(sample, utf8BOM) {
		return Detection{Label: LabelUTF8, Confidence: 100}, true
	}
	if len(sample) > 0 && isAllASCII(sample) {
		return Detection{Label: LabelASCII, Confidence: 100}, true
	}
	return Detection{}, false
}

// isAllASCII returns true if all bytes are below 0x80.
func isAllASCII(data []byte) bool {
	for _, b := range data {
		if b >= 0x80 {
			return false
		}
	}
	return true
}

// canonicalLabel lowercases a detector label and folds the common aliases
// onto the labels used throughout the package.
func canonicalLabel(label string) string {
	l := strings.ToLower(strings.TrimSpace(label))
	switch l {
	case "utf8":
		return LabelUTF8
	case "us-ascii", "ansi_x3.4-1968":
		return LabelASCII
	case "latin1", "latin-1", "iso8859-1":
		return "iso-8859-1"
	}
	return l
}

// sampleOf returns at most n leading bytes of raw.
func sampleOf(raw []byte, n int) []byte {
	if n <= 0 {
		n = DefaultSampleSize
	}
	if len(raw) > n {
		return raw[:n]
	}
	return raw
}
