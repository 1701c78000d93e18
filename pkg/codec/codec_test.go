package codec

import (
	"bytes"
	"testing"
)

type sample struct {
	Seq     int    `cbor:"seq"`
	Payload []byte `cbor:"payload"`
	Name    string `cbor:"name,omitempty"`
}

func TestCBORRoundTrip(t *testing.T) {
	c, err := CBOR()
	if err != nil {
		t.Fatalf("CBOR init failed: %v", err)
	}
	in := sample{Seq: 7, Payload: []byte{1, 2, 3}, Name: "ping"}
	raw, err := c.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var out sample
	if err := c.Unmarshal(raw, &out); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if out.Seq != in.Seq || !bytes.Equal(out.Payload, in.Payload) || out.Name != in.Name {
		t.Fatalf("round trip mismatch: %+v != %+v", out, in)
	}
}

func TestCBORDeterministicEncoding(t *testing.T) {
	c, err := CBOR()
	if err != nil {
		t.Fatalf("CBOR init failed: %v", err)
	}
	in := sample{Seq: 1, Payload: []byte("x")}
	a, _ := c.Marshal(in)
	b, _ := c.Marshal(in)
	if !bytes.Equal(a, b) {
		t.Fatalf("canonical encoding not deterministic")
	}
}

func TestContentType(t *testing.T) {
	c, _ := CBOR()
	if c.ContentType() != "application/cbor" {
		t.Fatalf("ContentType: %q", c.ContentType())
	}
}
