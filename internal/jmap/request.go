package jmap

import (
	"encoding/json"
	"fmt"
)

// ResultReference points into the not-yet-returned result of an earlier
// call in the same batch. The server resolves it during execution; the
// client only preserves call order.
type ResultReference struct {
	ResultOf string `json:"resultOf"`
	Name     string `json:"name"`
	Path     string `json:"path"`
}

// Call identifies one queued method call in a Request. It is the handle
// through which back-references are built and results are extracted.
type Call struct {
	id   string
	name string
}

// ID returns the call ID assigned by the request builder.
func (c *Call) ID() string { return c.id }

// Name returns the method name of the call.
func (c *Call) Name() string { return c.name }

// ResultReference builds a back-reference into this call's future
// result at the given JSON pointer path (for example "/ids").
// The reference must be placed under a "#"-prefixed argument key.
func (c *Call) ResultReference(path string) ResultReference {
	return ResultReference{ResultOf: c.id, Name: c.name, Path: path}
}

// invocation is one (methodName, arguments, callId) triple on the wire.
type invocation struct {
	name   string
	args   map[string]any
	callID string
}

// MarshalJSON encodes the invocation as the JMAP tuple [name, args, callId].
func (inv invocation) MarshalJSON() ([]byte, error) {
	args := inv.args
	if args == nil {
		args = map[string]any{}
	}
	return json.Marshal([]any{inv.name, args, inv.callID})
}

// Request is an ordered batch of method calls sent as one HTTP exchange.
// Call IDs are assigned sequentially so back-references never require
// the caller to invent identifiers.
type Request struct {
	using []string
	calls []invocation
}

// NewRequest creates a request advertising the given capability URNs.
// With no arguments it uses core plus mail.
func NewRequest(using ...string) *Request {
	if len(using) == 0 {
		using = []string{CoreCapability, MailCapability}
	}
	return &Request{using: using}
}

// Invoke appends a method call and returns its handle. Arguments may
// contain ResultReference values under "#"-prefixed keys referencing
// handles from earlier Invoke calls on the same request.
func (r *Request) Invoke(method string, args map[string]any) *Call {
	callID := fmt.Sprintf("c%d", len(r.calls))
	r.calls = append(r.calls, invocation{name: method, args: args, callID: callID})
	return &Call{id: callID, name: method}
}

// Len reports the number of queued calls.
func (r *Request) Len() int { return len(r.calls) }

// MarshalJSON encodes the full request envelope.
func (r *Request) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Using       []string     `json:"using"`
		MethodCalls []invocation `json:"methodCalls"`
	}{
		Using:       r.using,
		MethodCalls: r.calls,
	})
}
