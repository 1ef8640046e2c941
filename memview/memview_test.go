package memview

import (
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAppend(t *testing.T) {
	var mv MemView
	mv.Append(New([]byte("hello ")))
	mv.Append(New([]byte("prince!")))
	if mv.String() != "hello prince!" {
		t.Errorf(`expected "hello prince!" got "%s"`, mv.String())
	} else if mv.Len() != int64(len("hello prince!")) {
		t.Errorf(`expected new length %d, got %d`, len("hello prince!"), mv.Len())
	}
}

// DeepCopy MemViews should operate independently.
func TestDeepCopy(t *testing.T) {
	mv1 := New([]byte("hello"))
	mv2 := mv1.DeepCopy()
	mv2.Append(New([]byte(" prince!")))
	mv1.Append(New([]byte(" pineapple!")))

	if mv1.String() != "hello pineapple!" {
		t.Errorf(`expected "hello pineapple!" got "%s"`, mv1.String())
	}
	if mv2.String() != "hello prince!" {
		t.Errorf(`expected "hello prince!" got "%s"`, mv2.String())
	}
}

func TestReader(t *testing.T) {
	mv := New([]byte("hello"))
	mv.Append(New([]byte(" prince!")))

	// Test with every possible buffer size, including oversized ones.
	for bufSize := 1; bufSize < len("hello prince!")+10; bufSize++ {
		r := mv.CreateReader()
		buf := make([]byte, bufSize)
		read := []byte{}
		for {
			n, err := r.Read(buf)
			read = append(read, buf[:n]...)
			if err == io.EOF {
				break
			}
		}

		if diff := cmp.Diff(string(read), "hello prince!"); diff != "" {
			t.Errorf("found diff with bufSize=%d: %s", bufSize, diff)
		}
	}
}

func TestGetIntegers(t *testing.T) {
	var mv MemView
	// Split across chunks to exercise the multi-buffer paths.
	mv.Append(New([]byte{0x01, 0x02}))
	mv.Append(New([]byte{0x03, 0x04, 0x05}))

	if got := mv.GetUint16(0); got != 0x0102 {
		t.Errorf("GetUint16(0) = %#x", got)
	}
	if got := mv.GetUint24(1); got != 0x020304 {
		t.Errorf("GetUint24(1) = %#x", got)
	}
	if got := mv.GetUint32(0); got != 0x01020304 {
		t.Errorf("GetUint32(0) = %#x", got)
	}
	if got := mv.GetUint16(4); got != 0 {
		t.Errorf("out-of-bounds GetUint16 = %#x", got)
	}
}

func TestReaderIntegers(t *testing.T) {
	var mv MemView
	mv.Append(New([]byte{0xaa}))
	mv.Append(New([]byte{0x01, 0x02, 0x03}))
	mv.Append(New([]byte{0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b}))

	r := mv.CreateReader()
	if b, err := r.ReadByte(); err != nil || b != 0xaa {
		t.Fatalf("ReadByte = %#x, %v", b, err)
	}
	if v, err := r.ReadUint24(); err != nil || v != 0x010203 {
		t.Fatalf("ReadUint24 = %#x, %v", v, err)
	}
	if v, err := r.ReadUint64(); err != nil || v != 0x0405060708090a0b {
		t.Fatalf("ReadUint64 = %#x, %v", v, err)
	}
	if r.Remaining() != 0 {
		t.Errorf("Remaining = %d, expected 0", r.Remaining())
	}
	if _, err := r.ReadByte(); err != io.EOF {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestSubView(t *testing.T) {
	var mv MemView
	mv.Append(New([]byte("hello ")))
	mv.Append(New([]byte("prince!")))

	sub := mv.SubView(4, 9)
	if sub.String() != "o pri" {
		t.Errorf(`expected "o pri", got "%s"`, sub.String())
	}
	if sub.Len() != 5 {
		t.Errorf("expected length 5, got %d", sub.Len())
	}

	empty := mv.SubView(9, 4)
	if empty.Len() != 0 {
		t.Errorf("expected empty subview, got %d bytes", empty.Len())
	}
}

func TestBytes(t *testing.T) {
	var mv MemView
	mv.Append(New([]byte{1, 2}))
	mv.Append(New([]byte{3}))

	if diff := cmp.Diff([]byte{1, 2, 3}, mv.Bytes()); diff != "" {
		t.Errorf("Bytes mismatch: %s", diff)
	}
}

func TestTruncate(t *testing.T) {
	mv := New([]byte{0x00, 0x03, 0x0a, 0x0b, 0x0c, 0xff})
	r := mv.CreateReader()

	length, field, err := r.ReadUint16AndTruncate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if length != 3 {
		t.Fatalf("expected length 3, got %d", length)
	}
	if field.Remaining() != 3 {
		t.Fatalf("expected 3 bytes remaining in field, got %d", field.Remaining())
	}

	out := make([]byte, 3)
	if err := field.ReadFull(out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]byte{0x0a, 0x0b, 0x0c}, out); diff != "" {
		t.Errorf("field mismatch: %s", diff)
	}

	// Truncating past the end fails without advancing.
	if _, err := field.Truncate(1); err == nil {
		t.Error("expected an error truncating past the end")
	}
}

func TestReadByteAndTruncate(t *testing.T) {
	mv := New([]byte{0x02, 0xaa, 0xbb, 0xcc})
	r := mv.CreateReader()

	length, field, err := r.ReadByteAndTruncate()
	if err != nil || length != 2 {
		t.Fatalf("ReadByteAndTruncate = %d, %v", length, err)
	}
	s, err := field.ReadString(2)
	if err != nil || s != "\xaa\xbb" {
		t.Fatalf("field contents = %q, %v", s, err)
	}
}

func TestEqual(t *testing.T) {
	var left MemView
	left.Append(New([]byte("he")))
	left.Append(New([]byte("llo")))
	right := New([]byte("hello"))

	if !left.Equal(right) {
		t.Error("expected views to be equal")
	}
	if left.Equal(New([]byte("hellO"))) {
		t.Error("expected views to differ")
	}
}
