package codec

import "testing"

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	c := r.Get("application/json")
	if c == nil {
		t.Fatalf("json codec not preloaded")
	}
	if c.ContentType() != "application/json" {
		t.Fatalf("content type = %q", c.ContentType())
	}
	if r.Get("application/cbor") != nil {
		t.Fatalf("cbor should not be preloaded")
	}
	if r.Get("application/bogus") != nil {
		t.Fatalf("unknown content type must resolve to nil")
	}
}

func TestRegistryRegisterAndReplace(t *testing.T) {
	r := NewRegistry()
	cb, err := CBOR()
	if err != nil {
		t.Fatalf("cbor: %v", err)
	}
	r.Register(cb)
	if got := r.Get("application/cbor"); got == nil {
		t.Fatalf("registered codec not found")
	}

	// Registering the same content type again replaces the entry.
	cb2, err := CBOR()
	if err != nil {
		t.Fatalf("cbor: %v", err)
	}
	r.Register(cb2)
	if got := r.Get("application/cbor"); got != cb2 {
		t.Fatalf("replacement codec not returned")
	}
}

func TestCodecRoundtrip(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	cb, err := CBOR()
	if err != nil {
		t.Fatalf("cbor: %v", err)
	}
	for _, c := range []Codec{JSON(), cb} {
		b, err := c.Marshal(payload{Name: "x", Count: 2})
		if err != nil {
			t.Fatalf("%s marshal: %v", c.ContentType(), err)
		}
		var got payload
		if err := c.Unmarshal(b, &got); err != nil {
			t.Fatalf("%s unmarshal: %v", c.ContentType(), err)
		}
		if got.Name != "x" || got.Count != 2 {
			t.Fatalf("%s roundtrip = %+v", c.ContentType(), got)
		}
	}
}
