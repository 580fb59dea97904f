package decode

import (
	"errors"
	"testing"
)

func TestBestEffort(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		wantText string
		wantEnc  string
	}{
		{"ascii", []byte("09:15:00 3201 hello"), "09:15:00 3201 hello", UTF8},
		{"utf8 bom", append([]byte{0xEF, 0xBB, 0xBF}, []byte("abc")...), "abc", UTF8},
		{"utf16 le", []byte{0xFF, 0xFE, 'h', 0x00, 'i', 0x00}, "hi", UTF16},
		{"utf16 be", []byte{0xFE, 0xFF, 0x00, 'h', 0x00, 'i'}, "hi", UTF16},
		{"windows-1252 euro", []byte{'p', 0x80}, "p€", Windows1252},
		{"latin1 fallback", []byte{'a', 0x81, 'b'}, "a\u0081b", Latin1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := BestEffort(tt.input)
			if err != nil {
				t.Fatalf("BestEffort() error = %v", err)
			}
			if res.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", res.Text, tt.wantText)
			}
			if res.Encoding != tt.wantEnc {
				t.Errorf("Encoding = %s, want %s", res.Encoding, tt.wantEnc)
			}
			if res.Lossy {
				t.Error("expected non-lossy decode")
			}
		})
	}
}

func TestDecoderLossyFallback(t *testing.T) {
	d := &Decoder{Chain: []Candidate{{Name: UTF8, Decode: decodeUTF8}}, Lossy: true}

	res, err := d.Decode([]byte{'o', 'k', 0xFF})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !res.Lossy || res.Encoding != LossyUTF8 {
		t.Errorf("expected lossy result, got %+v", res)
	}
	if res.Text != "ok�" {
		t.Errorf("Text = %q", res.Text)
	}
}

func TestDecoderWithoutLossy(t *testing.T) {
	d := &Decoder{Chain: []Candidate{{Name: UTF8, Decode: decodeUTF8}}}

	_, err := d.Decode([]byte{0xFF})
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

func TestSplitLines(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"", nil},
		{"a", []string{"a"}},
		{"a\nb\n", []string{"a", "b"}},
		{"a\r\nb\rc", []string{"a", "b", "c"}},
		{"a\n\nb", []string{"a", "", "b"}},
	}

	for _, tt := range tests {
		got := SplitLines(tt.input)
		if len(got) != len(tt.want) {
			t.Errorf("SplitLines(%q) = %q, want %q", tt.input, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("SplitLines(%q)[%d] = %q, want %q", tt.input, i, got[i], tt.want[i])
			}
		}
	}
}
