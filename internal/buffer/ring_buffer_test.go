package buffer

import (
	"bytes"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestRingBufferBasicWriteRead(t *testing.T) {
	rb := NewRingBuffer(16)

	rb.Write([]byte("hello"))
	if got := rb.Bytes(); !bytes.Equal(got, []byte("hello")) {
		t.Errorf("Bytes() = %q, want %q", got, "hello")
	}
	if rb.Len() != 5 {
		t.Errorf("Len() = %d, want 5", rb.Len())
	}
	if rb.Cap() != 16 {
		t.Errorf("Cap() = %d, want 16", rb.Cap())
	}
}

func TestRingBufferOverflowKeepsNewest(t *testing.T) {
	rb := NewRingBuffer(8)

	rb.Write([]byte("abcdefgh"))
	rb.Write([]byte("1234"))

	if got := rb.Bytes(); !bytes.Equal(got, []byte("efgh1234")) {
		t.Errorf("Bytes() = %q, want %q", got, "efgh1234")
	}
}

func TestRingBufferOversizedWrite(t *testing.T) {
	rb := NewRingBuffer(4)

	rb.Write([]byte("abcdefgh"))
	if got := rb.Bytes(); !bytes.Equal(got, []byte("efgh")) {
		t.Errorf("Bytes() = %q, want %q", got, "efgh")
	}
}

func TestRingBufferWraparound(t *testing.T) {
	rb := NewRingBuffer(8)

	// Force the write cursor past the end repeatedly; 15 bytes written,
	// the last 8 of the stream are kept.
	for i := 0; i < 5; i++ {
		rb.Write([]byte("abc"))
	}
	if got := rb.Bytes(); !bytes.Equal(got, []byte("bcabcabc")) {
		t.Errorf("Bytes() = %q, want %q", got, "bcabcabc")
	}
}

func TestRingBufferReset(t *testing.T) {
	rb := NewRingBuffer(8)
	rb.Write([]byte("abc"))
	rb.Reset()

	if rb.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", rb.Len())
	}
	if rb.Bytes() != nil {
		t.Errorf("Bytes() after Reset = %q, want nil", rb.Bytes())
	}
}

func TestRingBufferEmptyAndTinyCapacity(t *testing.T) {
	rb := NewRingBuffer(0)
	if rb.Cap() != 1 {
		t.Errorf("Cap() = %d, want 1", rb.Cap())
	}

	rb.Write([]byte("xy"))
	if got := rb.Bytes(); !bytes.Equal(got, []byte("y")) {
		t.Errorf("Bytes() = %q, want %q", got, "y")
	}

	if n, err := rb.Write(nil); n != 0 || err != nil {
		t.Errorf("empty Write = (%d, %v), want (0, nil)", n, err)
	}
}

// TestRingBufferSuffixProperty checks the core invariant: the buffer
// always holds exactly the most recent min(total, capacity) bytes of
// the written stream.
func TestRingBufferSuffixProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("buffer content is the stream suffix", prop.ForAll(
		func(capacity int, chunks [][]byte) bool {
			rb := NewRingBuffer(capacity)

			var stream []byte
			for _, chunk := range chunks {
				rb.Write(chunk)
				stream = append(stream, chunk...)
			}

			want := stream
			if len(want) > rb.Cap() {
				want = want[len(want)-rb.Cap():]
			}

			got := rb.Bytes()
			if len(want) == 0 {
				return got == nil
			}
			return bytes.Equal(got, want)
		},
		gen.IntRange(1, 64),
		gen.SliceOf(gen.SliceOf(gen.UInt8())),
	))

	properties.TestingRun(t)
}
