package codec

import (
	"bytes"
	"testing"
)

func TestStringRoundTrip(t *testing.T) {
	w := NewWriter()
	w.String("hello, world")

	r := NewReader(w.Bytes())
	got, err := r.String()
	if err != nil {
		t.Fatalf("String() error: %v", err)
	}
	if got != "hello, world" {
		t.Errorf("got %q, want %q", got, "hello, world")
	}
	if r.Remaining() != 0 {
		t.Errorf("Remaining() = %d, want 0", r.Remaining())
	}
}

func TestU64RoundTrip(t *testing.T) {
	w := NewWriter()
	w.U64(1)
	w.U64(0)
	w.U64(18446744073709551615)

	r := NewReader(w.Bytes())
	for _, want := range []uint64{1, 0, 18446744073709551615} {
		got, err := r.U64()
		if err != nil {
			t.Fatalf("U64() error: %v", err)
		}
		if got != want {
			t.Errorf("got %d, want %d", got, want)
		}
	}
}

func TestOptionPresentAbsent(t *testing.T) {
	w := NewWriter()
	id := uint64(42)
	w.OptU64(&id)
	w.OptU64(nil)

	r := NewReader(w.Bytes())

	got, err := r.OptU64()
	if err != nil {
		t.Fatalf("OptU64() error: %v", err)
	}
	if got == nil || *got != 42 {
		t.Errorf("got %v, want pointer to 42", got)
	}

	got, err = r.OptU64()
	if err != nil {
		t.Fatalf("OptU64() error: %v", err)
	}
	if got != nil {
		t.Errorf("got %v, want nil", got)
	}
}

func TestOptionDiscriminatorBytes(t *testing.T) {
	w := NewWriter()
	w.OptionPresent()
	w.OptionAbsent()

	want := []byte{0x3A, 0xCC}
	if !bytes.Equal(w.Bytes(), want) {
		t.Errorf("got %x, want %x", w.Bytes(), want)
	}
}

func TestStringSeqRoundTrip(t *testing.T) {
	w := NewWriter()
	w.StringSeq([]string{"a", "bb", "ccc"})

	r := NewReader(w.Bytes())
	got, err := r.StringSeq()
	if err != nil {
		t.Fatalf("StringSeq() error: %v", err)
	}
	if len(got) != 3 || got[0] != "a" || got[1] != "bb" || got[2] != "ccc" {
		t.Errorf("got %v", got)
	}
}

func TestU64SeqRoundTrip(t *testing.T) {
	w := NewWriter()
	w.U64Seq([]uint64{7, 8, 9})

	r := NewReader(w.Bytes())
	got, err := r.U64Seq()
	if err != nil {
		t.Fatalf("U64Seq() error: %v", err)
	}
	if len(got) != 3 || got[0] != 7 || got[1] != 8 || got[2] != 9 {
		t.Errorf("got %v", got)
	}
}

func TestBytesFieldRoundTrip(t *testing.T) {
	w := NewWriter()
	payload := []byte{0, 1, 2, 255, 254}
	w.BytesField(payload)

	r := NewReader(w.Bytes())
	got, err := r.BytesField()
	if err != nil {
		t.Fatalf("BytesField() error: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("got %v, want %v", got, payload)
	}
}

func TestReaderShortBuffer(t *testing.T) {
	r := NewReader([]byte{0, 0, 0})
	if _, err := r.U64(); err == nil {
		t.Fatal("expected error reading U64 from short buffer")
	}
}

func TestFloatRoundTrip(t *testing.T) {
	w := NewWriter()
	w.F64(3.14159)
	w.F64(-1.0)

	r := NewReader(w.Bytes())
	for _, want := range []float64{3.14159, -1.0} {
		got, err := r.F64()
		if err != nil {
			t.Fatalf("F64() error: %v", err)
		}
		if got != want {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}
