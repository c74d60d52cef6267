package jmap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
)

// fakeHTTPDoer implements HTTPDoer for testing.
type fakeHTTPDoer struct {
	doFunc func(req *http.Request) (*http.Response, error)
}

func (f *fakeHTTPDoer) Do(req *http.Request) (*http.Response, error) {
	if f.doFunc != nil {
		return f.doFunc(req)
	}
	return nil, nil
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
	}
}

func TestDo_SendsOnePOSTWithBearerAuth(t *testing.T) {
	var capturedMethod, capturedAuth, capturedContentType string
	var capturedBody []byte
	fake := &fakeHTTPDoer{
		doFunc: func(req *http.Request) (*http.Response, error) {
			capturedMethod = req.Method
			capturedAuth = req.Header.Get("Authorization")
			capturedContentType = req.Header.Get("Content-Type")
			capturedBody, _ = io.ReadAll(req.Body)
			return jsonResponse(http.StatusOK, `{"methodResponses": []}`), nil
		},
	}
	client := NewClientWithHTTP("https://api.example.com/jmap", "tok-1", fake)

	req := NewRequest()
	req.Invoke("Mailbox/get", map[string]any{"accountId": "a1"})
	if _, err := client.Do(context.Background(), req); err != nil {
		t.Fatalf("Do error = %v", err)
	}

	if capturedMethod != http.MethodPost {
		t.Errorf("method = %q, want POST", capturedMethod)
	}
	if capturedAuth != "Bearer tok-1" {
		t.Errorf("auth = %q, want Bearer tok-1", capturedAuth)
	}
	if capturedContentType != "application/json" {
		t.Errorf("content-type = %q, want application/json", capturedContentType)
	}

	var envelope struct {
		Using       []string `json:"using"`
		MethodCalls [][]any  `json:"methodCalls"`
	}
	if err := json.Unmarshal(capturedBody, &envelope); err != nil {
		t.Fatalf("request body not a JMAP envelope: %v", err)
	}
	if len(envelope.MethodCalls) != 1 {
		t.Errorf("methodCalls count = %d, want 1", len(envelope.MethodCalls))
	}
}

func TestDo_Non2xxFailsWholeBatch(t *testing.T) {
	statusCodes := []int{500, 502, 400}
	for _, code := range statusCodes {
		t.Run(http.StatusText(code), func(t *testing.T) {
			fake := &fakeHTTPDoer{
				doFunc: func(req *http.Request) (*http.Response, error) {
					return jsonResponse(code, `{}`), nil
				},
			}
			client := NewClientWithHTTP("https://api.example.com/jmap", "tok", fake)

			req := NewRequest()
			req.Invoke("Email/get", nil)
			req.Invoke("Email/set", nil)
			_, err := client.Do(context.Background(), req)
			if !errors.Is(err, ErrTransport) {
				t.Errorf("status %d: error = %v, want ErrTransport", code, err)
			}
		})
	}
}

func TestDo_401MapsToErrUnauthorized(t *testing.T) {
	fake := &fakeHTTPDoer{
		doFunc: func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusUnauthorized, `{}`), nil
		},
	}
	client := NewClientWithHTTP("https://api.example.com/jmap", "tok", fake)

	_, err := client.Do(context.Background(), NewRequest())
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("error = %v, want ErrUnauthorized", err)
	}
}

func TestDo_NetworkErrorIsTransportError(t *testing.T) {
	fake := &fakeHTTPDoer{
		doFunc: func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("connection refused")
		},
	}
	client := NewClientWithHTTP("https://api.example.com/jmap", "tok", fake)

	_, err := client.Do(context.Background(), NewRequest())
	if !errors.Is(err, ErrTransport) {
		t.Errorf("error = %v, want ErrTransport", err)
	}
}

func TestDo_PropagatesContextCancellation(t *testing.T) {
	fake := &fakeHTTPDoer{
		doFunc: func(req *http.Request) (*http.Response, error) {
			return nil, req.Context().Err()
		},
	}
	client := NewClientWithHTTP("https://api.example.com/jmap", "tok", fake)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Do(ctx, NewRequest())
	if !errors.Is(err, ErrTransport) {
		t.Errorf("error = %v, want wrapped transport error", err)
	}
}

func TestFetchSession_DecodesSessionResource(t *testing.T) {
	var capturedURL, capturedAuth string
	fake := &fakeHTTPDoer{
		doFunc: func(req *http.Request) (*http.Response, error) {
			capturedURL = req.URL.String()
			capturedAuth = req.Header.Get("Authorization")
			return jsonResponse(http.StatusOK, `{
				"username": "user@example.com",
				"apiUrl": "https://api.example.com/jmap/api/",
				"downloadUrl": "https://api.example.com/jmap/download/{accountId}/{blobId}/{name}?type={type}",
				"uploadUrl": "https://api.example.com/jmap/upload/{accountId}/",
				"primaryAccounts": {"urn:ietf:params:jmap:mail": "a1"},
				"accounts": {"a1": {"name": "user@example.com", "isPersonal": true}}
			}`), nil
		},
	}

	session, err := FetchSession(context.Background(), fake, "https://api.example.com/.well-known/jmap", "tok-2")
	if err != nil {
		t.Fatalf("FetchSession error = %v", err)
	}
	if capturedURL != "https://api.example.com/.well-known/jmap" {
		t.Errorf("URL = %q", capturedURL)
	}
	if capturedAuth != "Bearer tok-2" {
		t.Errorf("auth = %q, want Bearer tok-2", capturedAuth)
	}

	accountID, err := session.MailAccountID()
	if err != nil {
		t.Fatalf("MailAccountID error = %v", err)
	}
	if accountID != "a1" {
		t.Errorf("accountID = %q, want a1", accountID)
	}
}

func TestFetchSession_Non2xxIsError(t *testing.T) {
	fake := &fakeHTTPDoer{
		doFunc: func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusServiceUnavailable, `{}`), nil
		},
	}
	_, err := FetchSession(context.Background(), fake, "https://api.example.com/session", "tok")
	if !errors.Is(err, ErrTransport) {
		t.Errorf("error = %v, want ErrTransport", err)
	}
}

func TestMailAccountID_MissingPrimaryIsError(t *testing.T) {
	session := &Session{PrimaryAccounts: map[string]string{}}
	_, err := session.MailAccountID()
	if !errors.Is(err, ErrNoMailAccount) {
		t.Errorf("error = %v, want ErrNoMailAccount", err)
	}
}

func TestBlobDownloadURL_SubstitutesAllPlaceholders(t *testing.T) {
	session := &Session{
		DownloadURL: "https://api.example.com/download/{accountId}/{blobId}/{name}?type={type}",
	}

	got := session.BlobDownloadURL("a1", "b2", "report.pdf", "application/pdf")
	want := "https://api.example.com/download/a1/b2/report.pdf?type=application%2Fpdf"
	if got != want {
		t.Errorf("url = %q, want %q", got, want)
	}
}

func TestBlobDownloadURL_DefaultsNameAndType(t *testing.T) {
	session := &Session{
		DownloadURL: "https://api.example.com/download/{accountId}/{blobId}/{name}?type={type}",
	}

	got := session.BlobDownloadURL("a1", "b2", "", "")
	want := "https://api.example.com/download/a1/b2/blob?type=application%2Foctet-stream"
	if got != want {
		t.Errorf("url = %q, want %q", got, want)
	}
}

func TestBlobUploadURL_SubstitutesAccountID(t *testing.T) {
	session := &Session{UploadURL: "https://api.example.com/upload/{accountId}/"}

	got := session.BlobUploadURL("a1")
	if got != "https://api.example.com/upload/a1/" {
		t.Errorf("url = %q", got)
	}
}
