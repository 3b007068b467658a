package server

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"netsync/sim"
)

func compileSchema(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	s, err := jsonschema.Compile(filepath.Join("..", "schemas", name))
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return s
}

func validateJSON(t *testing.T, s *jsonschema.Schema, b []byte) error {
	t.Helper()
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return s.Validate(v)
}

func TestSchemas_StateMessage(t *testing.T) {
	s := compileSchema(t, "state.schema.json")

	r, clock := newTestRoom(t, testConfig())
	r.applyIntent(intentEvent{player: "player1", controls: sim.Controls{Right: true}})
	advance(r, clock, 200*time.Millisecond)

	b, err := json.Marshal(r.View())
	if err != nil {
		t.Fatal(err)
	}
	if err := validateJSON(t, s, b); err != nil {
		t.Fatalf("state message: %v", err)
	}
	if err := validateJSON(t, s, []byte(`{"type":"state","room":"r","server":{"tick":0,"tick_rate_hz":10,"entities":null,"acks":[]},"players":[]}`)); err == nil {
		t.Fatalf("null entities accepted")
	}
}

func TestSchemas_IntentMessage(t *testing.T) {
	s := compileSchema(t, "intent.schema.json")
	b, _ := json.Marshal(IntentMessage{Type: TypeKeys, Right: true})
	if err := validateJSON(t, s, b); err != nil {
		t.Fatalf("intent: %v", err)
	}
	if err := validateJSON(t, s, []byte(`{"type":"keys","right":"yes","left":false}`)); err == nil {
		t.Fatalf("string key state accepted")
	}
}
