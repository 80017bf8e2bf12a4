package protocol

import (
	"encoding/json"
	"testing"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	env, err := NewEnvelope(TypeNewItem, "req-7", NewItem{IID: "FIRE_PLACE"})
	if err != nil {
		t.Fatal(err)
	}
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}

	var got Envelope
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if got.Type != TypeNewItem || got.RequestID != "req-7" {
		t.Fatalf("envelope header = %+v", got)
	}
	var body NewItem
	if err := Decode(got, &body); err != nil {
		t.Fatal(err)
	}
	if body.IID != "FIRE_PLACE" {
		t.Errorf("iid = %q", body.IID)
	}
}

func TestDecodeEmptyData(t *testing.T) {
	var body NewItem
	if err := Decode(Envelope{Type: TypeSummaryRequest}, &body); err != nil {
		t.Errorf("empty data should decode to zero value: %v", err)
	}
}

func TestDecodeMalformed(t *testing.T) {
	env := Envelope{Type: TypeNewItem, Data: json.RawMessage(`{"iid":`)}
	var body NewItem
	if err := Decode(env, &body); err == nil {
		t.Error("malformed payload accepted")
	}
}
