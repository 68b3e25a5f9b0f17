package normalize

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// DefaultPlaceholder replaces characters that have no ASCII representation
// in lossy mode.
const DefaultPlaceholder = '?'

// ErrUnsupportedEncoding is wrapped by an EncodingError when the detected
// label has no decoder.
var ErrUnsupportedEncoding = errors.New("unsupported encoding")

var (
	errInvalidASCII = errors.New("byte is not 7-bit ascii")
	errInvalidUTF8  = errors.New("invalid utf-8 sequence")
	errSubstituted  = errors.New("byte sequence has no mapping in this encoding")
)

// lookupEncoding resolves a detector label to an x/text encoding.
func lookupEncoding(label string) (encoding.Encoding, error) {
	if enc, err := ianaindex.IANA.Encoding(label); err == nil && enc != nil {
		return enc, nil
	}
	if enc, err := htmlindex.Get(label); err == nil && enc != nil {
		return enc, nil
	}
	// chardet reports some labels with separators the indexes do not know,
	// e.g. "gb-18030".
	if squashed := strings.ReplaceAll(label, "-", ""); squashed != label {
		if enc, err := htmlindex.Get(squashed); err == nil && enc != nil {
			return enc, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, label)
}

// decodeStrict decodes raw from label and fails on any byte that cannot be
// decoded. x/text decoders substitute U+FFFD instead of failing, so a
// replacement character in the output of a non-UTF-8 decoder is treated as
// a failure.
func decodeStrict(raw []byte, label string) (string, error) {
	switch label {
	case LabelUTF8:
		if i := invalidUTF8Offset(raw); i >= 0 {
			return "", &EncodingError{Label: label, Offset: i, Err: errInvalidUTF8}
		}
		return stripBOM(string(raw)), nil
	case LabelASCII:
		for i, b := range raw {
			if b >= 0x80 {
				return "", &EncodingError{Label: label, Offset: i, Err: errInvalidASCII}
			}
		}
		return string(raw), nil
	}

	enc, err := lookupEncoding(label)
	if err != nil {
		return "", &EncodingError{Label: label, Offset: -1, Err: err}
	}
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", &EncodingError{Label: label, Offset: -1, Err: err}
	}
	if i := strings.IndexRune(string(out), utf8.RuneError); i >= 0 {
		return "", &EncodingError{Label: label, Offset: -1, Err: errSubstituted}
	}
	return stripBOM(string(out)), nil
}

// decodeLossy decodes raw from label, replacing undecodable input with
// U+FFFD. An unknown label is still an error: there is nothing sensible to
// decode with.
func decodeLossy(raw []byte, label string) (string, error) {
	switch label {
	case LabelUTF8:
		return stripBOM(strings.ToValidUTF8(string(raw), string(utf8.RuneError))), nil
	case LabelASCII:
		var b strings.Builder
		b.Grow(len(raw))
		for _, c := range raw {
			if c >= utf8.RuneSelf {
				b.WriteRune(utf8.RuneError)
				continue
			}
			b.WriteByte(c)
		}
		return b.String(), nil
	}

	enc, err := lookupEncoding(label)
	if err != nil {
		return "", &EncodingError{Label: label, Offset: -1, Err: err}
	}
	out, _, err := transform.Bytes(enc.NewDecoder(), raw)
	if err != nil {
		return "", &EncodingError{Label: label, Offset: -1, Err: err}
	}
	return stripBOM(strings.ToValidUTF8(string(out), string(utf8.RuneError))), nil
}

// asciiTransformer maps every rune outside 7-bit ASCII to placeholder.
func asciiTransformer(placeholder rune) transform.Transformer {
	return runes.Map(func(r rune) rune {
		if r >= utf8.RuneSelf {
			return placeholder
		}
		return r
	})
}

// toASCII renders s as 7-bit ASCII, substituting placeholder for every
// character that has no ASCII representation.
func toASCII(s string, placeholder rune) (string, error) {
	out, _, err := transform.String(asciiTransformer(placeholder), s)
	if err != nil {
		return "", &EncodingError{Label: LabelASCII, Offset: -1, Err: err}
	}
	return out, nil
}

// stripBOM drops a leading byte-order mark from decoded text.
func stripBOM(s string) string {
	return strings.TrimPrefix(s, "\uFEFF")
}

// invalidUTF8Offset returns the offset of the first invalid UTF-8 byte in
// data, or -1 if data is valid.
func invalidUTF8Offset(data []byte) int {
	if utf8.Valid(data) {
		return -1
	}
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			return i
		}
		i += size
	}
	return -1
}

// trimIncompleteRune drops a multi-byte UTF-8 sequence cut off at the end of
// a sample so that the detector does not count it as invalid.
func trimIncompleteRune(sample []byte) []byte {
	return sample[:len(sample)-incompleteTrailingBytes(sample)]
}

// incompleteTrailingBytes returns the number of bytes at the end of data
// that could be the start of an incomplete multi-byte UTF-8 sequence.
func incompleteTrailingBytes(data []byte) int {
	for i := 1; i <= 3 && i <= len(data); i++ {
		b := data[len(data)-i]
		if b >= 0xC0 {
			if i < runeLen(b) {
				return i
			}
			return 0
		}
		// Anything but a continuation byte ends the search.
		if b&0xC0 != 0x80 {
			return 0
		}
	}
	return 0
}

// runeLen returns the expected length of a UTF-8 sequence starting with b.
func runeLen(b byte) int {
	switch {
	case b < 0x80:
		return 1
	case b < 0xC0:
		return 0
	case b < 0xE0:
		return 2
	case b < 0xF0:
		return 3
	}
	return 4
}
