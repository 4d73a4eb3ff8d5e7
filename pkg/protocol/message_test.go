package protocol

import (
	"bytes"
	"testing"

	"taskmesh/pkg/protocol/codec"
)

func TestMessageRoundtripJSON(t *testing.T) {
	m := NewMessage(MsgRequest, "A", []string{"B"}, []byte("payload"))
	if m.ID == "" || m.Timestamp == 0 {
		t.Fatalf("missing generated fields: %+v", m)
	}

	b, err := m.Encode(codec.JSON())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeMessage(codec.JSON(), b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != m.ID || got.Type != MsgRequest || got.From != "A" ||
		len(got.To) != 1 || got.To[0] != "B" || !bytes.Equal(got.Payload, m.Payload) ||
		got.Timestamp != m.Timestamp {
		t.Fatalf("roundtrip mismatch: %+v vs %+v", got, m)
	}
}

func TestMessageRoundtripCBOR(t *testing.T) {
	c, err := codec.CBOR()
	if err != nil {
		t.Fatalf("new cbor: %v", err)
	}
	m := NewMessage(MsgHeartbeat, "A", []string{"B", "C"}, nil)
	b, err := m.Encode(c)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeMessage(c, b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != MsgHeartbeat || len(got.To) != 2 {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}
}

func TestMessageTypeStrings(t *testing.T) {
	cases := map[MessageType]string{
		MsgRequest:   "request",
		MsgResponse:  "response",
		MsgBroadcast: "broadcast",
		MsgHeartbeat: "heartbeat",
		MsgUnknown:   "unknown",
	}
	for typ, want := range cases {
		if got := typ.String(); got != want {
			t.Fatalf("%d.String() = %q, want %q", typ, got, want)
		}
	}
}

func TestDecodeGarbageFails(t *testing.T) {
	if _, err := DecodeMessage(codec.JSON(), []byte("{not json")); err == nil {
		t.Fatalf("expected decode error")
	}
}
