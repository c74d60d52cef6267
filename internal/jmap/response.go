package jmap

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Error types for response extraction.
var (
	ErrInvalidResponse = errors.New("invalid JMAP response")
	ErrNoSuchCall      = errors.New("no response for call")
)

// MethodError is a method-level JMAP error tuple. It fails only its own
// call, not siblings in the batch.
type MethodError struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

func (e *MethodError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("jmap method error %s: %s", e.Type, e.Description)
	}
	return fmt.Sprintf("jmap method error %s", e.Type)
}

// methodResponse is one decoded (methodName, result, callId) tuple.
type methodResponse struct {
	name   string
	args   json.RawMessage
	callID string
}

// UnmarshalJSON decodes the positional tuple [name, args, callId].
func (m *methodResponse) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(tuple) < 3 {
		return fmt.Errorf("%w: method response tuple has %d elements", ErrInvalidResponse, len(tuple))
	}
	if err := json.Unmarshal(tuple[0], &m.name); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	m.args = tuple[1]
	if err := json.Unmarshal(tuple[2], &m.callID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

// Response is the decoded result of one batched exchange. Results are
// kept in arrival order and extracted by call handle.
type Response struct {
	methodResponses []methodResponse
	sessionState    string
}

// UnmarshalJSON decodes the response envelope.
func (r *Response) UnmarshalJSON(data []byte) error {
	var envelope struct {
		MethodResponses []methodResponse `json:"methodResponses"`
		SessionState    string           `json:"sessionState"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	r.methodResponses = envelope.MethodResponses
	r.sessionState = envelope.SessionState
	return nil
}

// SessionState returns the server session state string, if reported.
func (r *Response) SessionState() string { return r.sessionState }

// Len reports the number of method responses.
func (r *Response) Len() int { return len(r.methodResponses) }

// Get extracts the result for call into out. A matching "error" tuple
// decodes to a *MethodError and is returned as the error. A tuple whose
// method name matches neither the call nor "error", or whose result does
// not decode into out, is an ErrInvalidResponse.
//
// Servers may emit several responses for one call ID (Foo/changes
// paging); Get returns the first whose name matches.
func (r *Response) Get(call *Call, out any) error {
	var found *methodResponse
	for i := range r.methodResponses {
		m := &r.methodResponses[i]
		if m.callID != call.id {
			continue
		}
		if m.name == call.name || m.name == "error" {
			found = m
			break
		}
		if found == nil {
			found = m
		}
	}
	if found == nil {
		return fmt.Errorf("%w: %s (%s)", ErrNoSuchCall, call.id, call.name)
	}

	if found.name == "error" {
		var methodErr MethodError
		if err := json.Unmarshal(found.args, &methodErr); err != nil {
			return fmt.Errorf("%w: undecodable error tuple for %s: %v", ErrInvalidResponse, call.id, err)
		}
		return &methodErr
	}

	if found.name != call.name {
		return fmt.Errorf("%w: call %s answered by %q, want %q", ErrInvalidResponse, call.id, found.name, call.name)
	}

	if err := json.Unmarshal(found.args, out); err != nil {
		return fmt.Errorf("%w: decoding %s result: %v", ErrInvalidResponse, call.name, err)
	}
	return nil
}
