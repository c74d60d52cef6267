package jmap

import (
	"encoding/json"
	"testing"
)

func TestInvoke_AssignsSequentialCallIDs(t *testing.T) {
	req := NewRequest()

	c0 := req.Invoke("Email/query", nil)
	c1 := req.Invoke("Email/get", nil)
	c2 := req.Invoke("Email/set", nil)

	if c0.ID() != "c0" || c1.ID() != "c1" || c2.ID() != "c2" {
		t.Errorf("call IDs = %q, %q, %q, want c0, c1, c2", c0.ID(), c1.ID(), c2.ID())
	}
}

func TestRequest_MarshalsOrderedTuples(t *testing.T) {
	req := NewRequest()
	req.Invoke("Mailbox/get", map[string]any{"accountId": "a1"})
	req.Invoke("Email/query", map[string]any{"accountId": "a1", "limit": 10})

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal error = %v", err)
	}

	var envelope struct {
		Using       []string `json:"using"`
		MethodCalls [][]any  `json:"methodCalls"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("Unmarshal error = %v", err)
	}

	if len(envelope.Using) != 2 || envelope.Using[0] != CoreCapability || envelope.Using[1] != MailCapability {
		t.Errorf("using = %v, want core+mail", envelope.Using)
	}
	if len(envelope.MethodCalls) != 2 {
		t.Fatalf("methodCalls count = %d, want 2", len(envelope.MethodCalls))
	}
	if envelope.MethodCalls[0][0] != "Mailbox/get" || envelope.MethodCalls[0][2] != "c0" {
		t.Errorf("first tuple = %v, want [Mailbox/get, ..., c0]", envelope.MethodCalls[0])
	}
	if envelope.MethodCalls[1][0] != "Email/query" || envelope.MethodCalls[1][2] != "c1" {
		t.Errorf("second tuple = %v, want [Email/query, ..., c1]", envelope.MethodCalls[1])
	}
}

func TestRequest_NilArgsMarshalAsEmptyObject(t *testing.T) {
	req := NewRequest()
	req.Invoke("Identity/get", nil)

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal error = %v", err)
	}

	var envelope struct {
		MethodCalls [][]json.RawMessage `json:"methodCalls"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("Unmarshal error = %v", err)
	}
	if string(envelope.MethodCalls[0][1]) != "{}" {
		t.Errorf("args = %s, want {}", envelope.MethodCalls[0][1])
	}
}

func TestResultReference_BuildsBackReference(t *testing.T) {
	req := NewRequest()
	query := req.Invoke("Email/query", map[string]any{"accountId": "a1"})
	req.Invoke("Email/get", map[string]any{
		"accountId": "a1",
		"#ids":      query.ResultReference("/ids"),
	})

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal error = %v", err)
	}

	var envelope struct {
		MethodCalls [][]json.RawMessage `json:"methodCalls"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("Unmarshal error = %v", err)
	}

	var getArgs map[string]any
	if err := json.Unmarshal(envelope.MethodCalls[1][1], &getArgs); err != nil {
		t.Fatalf("decoding get args: %v", err)
	}
	ref, ok := getArgs["#ids"].(map[string]any)
	if !ok {
		t.Fatalf("#ids = %v, want object", getArgs["#ids"])
	}
	if ref["resultOf"] != "c0" || ref["name"] != "Email/query" || ref["path"] != "/ids" {
		t.Errorf("back-reference = %v, want {c0, Email/query, /ids}", ref)
	}
}

func TestRequest_CustomCapabilities(t *testing.T) {
	req := NewRequest(CoreCapability, MailCapability, SubmissionCapability)

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal error = %v", err)
	}

	var envelope struct {
		Using []string `json:"using"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("Unmarshal error = %v", err)
	}
	if len(envelope.Using) != 3 || envelope.Using[2] != SubmissionCapability {
		t.Errorf("using = %v, want submission capability last", envelope.Using)
	}
}
