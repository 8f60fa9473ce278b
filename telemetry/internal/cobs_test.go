package internal

import (
	"bytes"
	"testing"
)

func TestStuffDestuffRoundTrip(t *testing.T) {
	cases := [][]byte{
		{},
		{1, 2, 3},
		{0, 0, 0},
		{0x11, 0x22, 0x00, 0x33},
		bytes.Repeat([]byte{0x01}, 300), // exercises the 254-byte block split
		bytes.Repeat([]byte{0x00}, 10),
	}
	for i, want := range cases {
		stuffed := Stuff(want)
		if bytes.IndexByte(stuffed, 0) != -1 {
			t.Fatalf("case %d: stuffed output contains a zero byte: %x", i, stuffed)
		}
		got, ok := Destuff(stuffed)
		if !ok {
			t.Fatalf("case %d: Destuff reported failure on well-formed input", i)
		}
		if !bytes.Equal(got, want) && !(len(got) == 0 && len(want) == 0) {
			t.Fatalf("case %d: round trip mismatch: got %x want %x", i, got, want)
		}
	}
}

func TestDestuffRejectsMalformed(t *testing.T) {
	if _, ok := Destuff([]byte{0x00, 0x01}); ok {
		t.Fatal("expected failure on embedded zero code byte")
	}
	if _, ok := Destuff([]byte{0x05, 0x01, 0x02}); ok {
		t.Fatal("expected failure on code byte overrunning the buffer")
	}
}
