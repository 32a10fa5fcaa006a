package template

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	raw := []byte{0xAB, 0xCD, 1, 2, 3, 4, 5, 6, 7, 8}
	container := Encode(raw, "right_index")

	if len(container) != headerSize+len(raw) {
		t.Fatalf("container length = %d, want %d", len(container), headerSize+len(raw))
	}
	if container[0] != 0xAB || container[1] != 0xCD {
		t.Errorf("header prefix = [%x %x], want first two template bytes", container[0], container[1])
	}
	if container[2] != 0 || container[3] != 0 {
		t.Errorf("padding bytes = [%x %x], want zero", container[2], container[3])
	}

	got, ok := Decode(container)
	if !ok {
		t.Fatal("Decode returned !ok for a valid container")
	}
	if !bytes.Equal(got, raw) {
		t.Errorf("decoded template = %v, want %v", got, raw)
	}
}

func TestEncodeLabel(t *testing.T) {
	tests := []struct {
		name  string
		label string
		want  string
	}{
		{name: "short label", label: "thumb", want: "thumb"},
		{name: "empty label", label: "", want: ""},
		{name: "exactly 15 chars", label: "abcdefghijklmno", want: "abcdefghijklmno"},
		{name: "truncated to 15", label: "abcdefghijklmnop", want: "abcdefghijklmno"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			container := Encode([]byte{1, 2, 3}, tt.label)
			if got := Label(container); got != tt.want {
				t.Errorf("Label = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEncodeEmptyTemplate(t *testing.T) {
	container := Encode(nil, "left_thumb")
	if len(container) != headerSize {
		t.Fatalf("header-only container length = %d, want %d", len(container), headerSize)
	}
	if Label(container) != "left_thumb" {
		t.Errorf("Label = %q, want left_thumb", Label(container))
	}
	// Header-only containers carry no template and must not decode.
	if _, ok := Decode(container); ok {
		t.Error("Decode ok for header-only container, want !ok")
	}
}

func TestDecodeShortBuffers(t *testing.T) {
	for _, size := range []int{0, 1, 19, 20} {
		buf := make([]byte, size)
		if _, ok := Decode(buf); ok {
			t.Errorf("Decode ok for %d-byte buffer, want !ok", size)
		}
	}

	buf := make([]byte, 21)
	buf[20] = 0x42
	raw, ok := Decode(buf)
	if !ok || len(raw) != 1 || raw[0] != 0x42 {
		t.Errorf("Decode(21 bytes) = %v, %v; want single templated byte 0x42", raw, ok)
	}
}

func TestLabelShortBuffer(t *testing.T) {
	if got := Label(make([]byte, 10)); got != "" {
		t.Errorf("Label of short buffer = %q, want empty", got)
	}
}
