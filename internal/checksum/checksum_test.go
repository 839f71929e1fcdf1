package checksum

import (
	"bytes"
	"testing"
)

func TestRollMatchesFreshComputation(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog!!!!")
	const blockSize = 8

	r := NewRolling(data[:blockSize])
	for i := 0; i+blockSize < len(data); i++ {
		want := RollingChecksum(data[i+1 : i+1+blockSize])
		r.Roll(data[i], data[i+blockSize])
		if got := r.Value(); got != want {
			t.Fatalf("at i=%d: Roll produced %d, want %d", i, got, want)
		}
	}
}

func TestStrongHashDeterministic(t *testing.T) {
	a := StrongHash([]byte("hello\n"))
	b := StrongHash([]byte("hello\n"))
	if a != b {
		t.Fatal("StrongHash not deterministic")
	}
	c := StrongHash([]byte("hello\n!"))
	if a == c {
		t.Fatal("StrongHash collided on different input")
	}
}

func TestStrongHashReaderMatchesStrongHash(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 4096)
	want := StrongHash(data)
	got, err := StrongHashReader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("StrongHashReader = %x, want %x", got, want)
	}
}

func TestBlockStrongHashIsTruncated(t *testing.T) {
	full := StrongHash([]byte("block data"))
	block := BlockStrongHash([]byte("block data"))
	if !bytes.Equal(block[:], full[:BlockStrongSize]) {
		t.Fatal("BlockStrongHash is not a prefix of the full hash")
	}
}
