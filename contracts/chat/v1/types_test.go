package v1

import (
	"encoding/json"
	"testing"
)

func TestMarshal_ProducerPayloadKeepsTypeField(t *testing.T) {
	raw, err := Marshal(NewError("nope"))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var out map[string]json.RawMessage
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var typ string
	if err := json.Unmarshal(out["type"], &typ); err != nil {
		t.Fatalf("decode type: %v", err)
	}
	if typ != TypeError {
		t.Fatalf("type = %q, want %q", typ, TypeError)
	}
}

func TestMarshal_UnencodablePayloadFails(t *testing.T) {
	if _, err := Marshal(make(chan int)); err == nil {
		t.Fatalf("expected error for unencodable payload")
	}
}

func TestKnownInboundType(t *testing.T) {
	for _, typ := range []string{TypeAuth, TypeJoinConversation, TypeSendMessage, TypeMarkRead} {
		if !KnownInboundType(typ) {
			t.Fatalf("KnownInboundType(%q) = false", typ)
		}
	}
	for _, typ := range []string{"", TypeAuthSuccess, TypeError, TypeNewMessage, "subscribe"} {
		if KnownInboundType(typ) {
			t.Fatalf("KnownInboundType(%q) = true", typ)
		}
	}
}
