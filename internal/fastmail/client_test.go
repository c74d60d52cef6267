package fastmail

import (
	"errors"
	"testing"

	"mailbridge/internal/jmap"
)

func TestNewResolvesMailAccount(t *testing.T) {
	c, err := New(testSession(), "tok")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.AccountID() != "acc1" {
		t.Errorf("AccountID = %q, want acc1", c.AccountID())
	}
}

func TestNewWithoutMailAccount(t *testing.T) {
	session := &jmap.Session{APIURL: "https://api.test/jmap"}

	_, err := New(session, "tok")
	if !errors.Is(err, jmap.ErrNoMailAccount) {
		t.Errorf("err = %v, want ErrNoMailAccount", err)
	}
}

func TestWithHTTPClientOption(t *testing.T) {
	doer := &fakeHTTPDoer{}

	c, err := New(testSession(), "tok", WithHTTPClient(doer))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.httpClient != doer {
		t.Error("option did not replace the http client")
	}
}
