package blockfile

import "testing"

func TestFrameMarshalRoundtrip(t *testing.T) {
	f := &frame{
		BodySize: 123,
		Deleted:  false,
		Next:     7,
		CRC32:    0xDEADBEEF,
	}
	data, err := marshalFrame(f)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != frameHeaderSize {
		t.Fatalf("want %d bytes, got %d", frameHeaderSize, len(data))
	}
	got, err := unmarshalFrame(data)
	if err != nil {
		t.Fatal(err)
	}
	if *got != *f {
		t.Fatalf("want %#v, got %#v", f, got)
	}
}

func TestBlockHeaderMarshalRoundtrip(t *testing.T) {
	h := &blockHeader{
		Version:        currentVersion,
		FrameSize:      1024,
		FrameCount:     5,
		FirstFreeFrame: 3,
	}
	data, err := marshalBlockHeader(h)
	if err != nil {
		t.Fatal(err)
	}
	got, err := unmarshalBlockHeader(data)
	if err != nil {
		t.Fatal(err)
	}
	if *got != *h {
		t.Fatalf("want %#v, got %#v", h, got)
	}
}

func TestChecksumDetectsChange(t *testing.T) {
	a := checksum([]byte("hello"))
	b := checksum([]byte("hellp"))
	if a == b {
		t.Fatal("expected different checksums for different input")
	}
}
