// Package decode turns raw log bytes into text by trying a fixed ordered list
// of encodings, falling back to a lossy UTF-8 conversion.
package decode

import (
	"bytes"
	"errors"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// ErrDecode is returned when no candidate encoding accepts the input and lossy
// decoding is disabled
var ErrDecode = errors.New("no encoding could decode content")

// Names of the encodings tried by the default chain
const (
	UTF8        = "utf-8"
	UTF16       = "utf-16"
	Windows1252 = "windows-1252"
	Latin1      = "iso-8859-1"
	LossyUTF8   = "utf-8-lossy"
)

// Candidate is one encoding attempt. Decode reports false when the input is
// not valid in that encoding.
type Candidate struct {
	Name   string
	Decode func(data []byte) (string, bool)
}

// Result is the outcome of a decode
type Result struct {
	Text     string
	Encoding string
	Lossy    bool
}

// Decoder tries each candidate in order
type Decoder struct {
	Chain []Candidate
	Lossy bool
}

// DefaultChain is the encoding order applied to terminal logs
func DefaultChain() []Candidate {
	return []Candidate{
		{Name: UTF8, Decode: decodeUTF8},
		{Name: UTF16, Decode: decodeUTF16},
		{Name: Windows1252, Decode: strictCharmap(charmap.Windows1252, 0x81, 0x8D, 0x8F, 0x90, 0x9D)},
		{Name: Latin1, Decode: strictCharmap(charmap.ISO8859_1)},
	}
}

// Default returns the decoder used by the classifier and parsers
func Default() *Decoder {
	return &Decoder{Chain: DefaultChain(), Lossy: true}
}

// BestEffort decodes data with the default chain
func BestEffort(data []byte) (Result, error) {
	return Default().Decode(data)
}

// Decode runs the chain and returns the first successful result
func (d *Decoder) Decode(data []byte) (Result, error) {
	for _, c := range d.Chain {
		if text, ok := c.Decode(data); ok {
			return Result{Text: text, Encoding: c.Name}, nil
		}
	}
	if d.Lossy {
		return Result{
			Text:     strings.ToValidUTF8(string(data), string(utf8.RuneError)),
			Encoding: LossyUTF8,
			Lossy:    true,
		}, nil
	}
	return Result{}, ErrDecode
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func decodeUTF8(data []byte) (string, bool) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return "", false
	}
	return string(data), true
}

// decodeUTF16 only accepts input carrying a byte order mark. Without one any
// even-length byte string decodes, which would shadow the single-byte encodings.
func decodeUTF16(data []byte) (string, bool) {
	if len(data) < 2 {
		return "", false
	}
	if !(data[0] == 0xFF && data[1] == 0xFE) && !(data[0] == 0xFE && data[1] == 0xFF) {
		return "", false
	}
	dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
	out, err := dec.Bytes(data)
	if err != nil {
		return "", false
	}
	return string(out), true
}

// strictCharmap rejects input containing bytes the code page leaves undefined
func strictCharmap(cm *charmap.Charmap, undefined ...byte) func([]byte) (string, bool) {
	return func(data []byte) (string, bool) {
		for _, b := range data {
			if b < utf8.RuneSelf {
				continue
			}
			if bytes.IndexByte(undefined, b) >= 0 || cm.DecodeByte(b) == utf8.RuneError {
				return "", false
			}
		}
		text, err := cm.NewDecoder().Bytes(data)
		if err != nil {
			return "", false
		}
		return string(text), true
	}
}

// SplitLines splits text on \n, \r\n and \r without keeping terminators.
// A trailing terminator does not produce an empty final line.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	var lines []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\n':
			lines = append(lines, text[start:i])
			start = i + 1
		case '\r':
			lines = append(lines, text[start:i])
			if i+1 < len(text) && text[i+1] == '\n' {
				i++
			}
			start = i + 1
		}
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}
