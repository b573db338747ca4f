// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

func TestMarshalDeterministic(t *testing.T) {
	value := map[string]any{
		"zebra":  1,
		"apple":  2,
		"middle": []any{"a", "b"},
	}

	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	second, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("repeated Marshal of the same value produced different bytes")
	}
}

func TestRoundTrip(t *testing.T) {
	type record struct {
		Name  string `cbor:"name"`
		Data  []byte `cbor:"data"`
		Count uint64 `cbor:"count"`
	}

	in := record{Name: "snap-0001", Data: []byte{0xde, 0xad, 0xbe, 0xef}, Count: 42}

	encoded, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var out record
	if err := Unmarshal(encoded, &out); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if out.Name != in.Name || out.Count != in.Count || !bytes.Equal(out.Data, in.Data) {
		t.Errorf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestUnmarshalIgnoresUnknownFields(t *testing.T) {
	encoded, err := Marshal(map[string]any{"known": 1, "future_field": "x"})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var out struct {
		Known int `cbor:"known"`
	}
	if err := Unmarshal(encoded, &out); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if out.Known != 1 {
		t.Errorf("known = %d, want 1", out.Known)
	}
}

func TestStreamEncoderDecoder(t *testing.T) {
	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for _, name := range []string{"one", "two", "three"} {
		if err := encoder.Encode(name); err != nil {
			t.Fatalf("Encode(%q) failed: %v", name, err)
		}
	}

	decoder := NewDecoder(&buffer)
	for _, want := range []string{"one", "two", "three"} {
		var got string
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if got != want {
			t.Errorf("decoded %q, want %q", got, want)
		}
	}
}
