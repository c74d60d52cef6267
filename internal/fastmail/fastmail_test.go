package fastmail

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"mailbridge/internal/jmap"
)

// fakeRPC records outgoing requests and delegates responses to doFunc.
type fakeRPC struct {
	requests []*jmap.Request
	doFunc   func(req *jmap.Request) (*jmap.Response, error)
}

func (f *fakeRPC) Do(_ context.Context, req *jmap.Request) (*jmap.Response, error) {
	f.requests = append(f.requests, req)
	return f.doFunc(req)
}

// respondInOrder returns a doFunc serving the given raw responses one
// per exchange.
func respondInOrder(t *testing.T, raws ...string) func(*jmap.Request) (*jmap.Response, error) {
	t.Helper()
	i := 0
	return func(*jmap.Request) (*jmap.Response, error) {
		if i >= len(raws) {
			t.Fatalf("unexpected exchange %d, only %d responses prepared", i+1, len(raws))
		}
		resp := mustResponse(t, raws[i])
		i++
		return resp, nil
	}
}

func mustResponse(t *testing.T, raw string) *jmap.Response {
	t.Helper()
	var resp jmap.Response
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatalf("bad test response: %v", err)
	}
	return &resp
}

// parsedCall is one decoded invocation of a marshaled request.
type parsedCall struct {
	Name   string
	Args   map[string]any
	CallID string
}

// parseCalls round-trips a request through its wire encoding so tests
// assert on exactly what the server would see.
func parseCalls(t *testing.T, req *jmap.Request) []parsedCall {
	t.Helper()
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	var wire struct {
		MethodCalls [][]json.RawMessage `json:"methodCalls"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}
	calls := make([]parsedCall, len(wire.MethodCalls))
	for i, tuple := range wire.MethodCalls {
		if len(tuple) != 3 {
			t.Fatalf("call %d: tuple has %d elements", i, len(tuple))
		}
		var call parsedCall
		if err := json.Unmarshal(tuple[0], &call.Name); err != nil {
			t.Fatalf("call %d name: %v", i, err)
		}
		if err := json.Unmarshal(tuple[1], &call.Args); err != nil {
			t.Fatalf("call %d args: %v", i, err)
		}
		if err := json.Unmarshal(tuple[2], &call.CallID); err != nil {
			t.Fatalf("call %d id: %v", i, err)
		}
		calls[i] = call
	}
	return calls
}

type fakeHTTPDoer struct {
	doFunc func(req *http.Request) (*http.Response, error)
}

func (f *fakeHTTPDoer) Do(req *http.Request) (*http.Response, error) {
	return f.doFunc(req)
}

func testSession() *jmap.Session {
	return &jmap.Session{
		PrimaryAccounts: map[string]string{jmap.MailCapability: "acc1"},
		APIURL:          "https://api.test/jmap",
		DownloadURL:     "https://api.test/download/{accountId}/{blobId}/{name}?type={type}",
		UploadURL:       "https://api.test/upload/{accountId}",
	}
}

func testClient(rpc requester) *Client {
	return &Client{
		accountID:      "acc1",
		session:        testSession(),
		rpc:            rpc,
		token:          "tok",
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		cache:          newMailboxCache(),
		labelMemo:      newLabelMemo(),
		blobRetries:    2,
		blobRetryDelay: time.Millisecond,
		sleepFunc:      func(time.Duration) {},
	}
}

// mailboxListResponse is a canned Mailbox/get result covering the
// system roles plus one user label.
const mailboxListResponse = `{
	"methodResponses": [
		["Mailbox/get", {
			"accountId": "acc1",
			"state": "mbs1",
			"list": [
				{"id": "mb-inbox", "name": "Inbox", "role": "inbox", "totalEmails": 10, "unreadEmails": 2},
				{"id": "mb-archive", "name": "Archive", "role": "archive", "totalEmails": 100},
				{"id": "mb-trash", "name": "Trash", "role": "trash"},
				{"id": "mb-drafts", "name": "Drafts", "role": "drafts"},
				{"id": "mb-sent", "name": "Sent", "role": "sent"},
				{"id": "mb-junk", "name": "Spam", "role": "junk"},
				{"id": "mb-projects", "name": "Projects"}
			]
		}, "c0"]
	],
	"sessionState": "s1"
}`
