package core

import "testing"

func TestToolContext_Accessors(t *testing.T) {
	rc, emitCh := newRunContextForTest()
	rc.SetState("wallet_address", "did:bid:xyz")

	tc := NewToolContext(rc, "fc-1")
	if err := tc.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if tc.FunctionCallID() != "fc-1" || tc.RunID() != "run-x" || tc.AgentName() != "Agent1" {
		t.Fatalf("unexpected identifiers: %s %s %s", tc.FunctionCallID(), tc.RunID(), tc.AgentName())
	}
	if tc.SessionKey() != testKey {
		t.Errorf("unexpected session key %v", tc.SessionKey())
	}
	if v, ok := tc.GetState("wallet_address"); !ok || v != "did:bid:xyz" {
		t.Errorf("GetState = %v %v", v, ok)
	}

	if err := tc.EmitEvent(NewMessageEvent("Agent1", "progress")); err != nil {
		t.Fatalf("EmitEvent: %v", err)
	}
	if ev := <-emitCh; ev.Text() != "progress" {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestToolContext_ValidateRequiresCallID(t *testing.T) {
	rc, _ := newRunContextForTest()
	if err := NewToolContext(rc, "").Validate(); err == nil {
		t.Fatal("expected validation error")
	}
}
