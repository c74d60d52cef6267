package jmap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ErrNoMailAccount means the session advertises no primary mail account.
var ErrNoMailAccount = errors.New("session has no primary mail account")

// Account describes one account visible in a session.
type Account struct {
	Name       string `json:"name"`
	IsPersonal bool   `json:"isPersonal"`
	IsReadOnly bool   `json:"isReadOnly"`
}

// Session is the RFC 8620 session resource: the authenticated entry
// point that supplies API, upload and download URLs. Authentication
// itself happens upstream; the session only carries its results.
type Session struct {
	Capabilities    map[string]json.RawMessage `json:"capabilities"`
	Accounts        map[string]Account         `json:"accounts"`
	PrimaryAccounts map[string]string          `json:"primaryAccounts"`
	Username        string                     `json:"username"`
	APIURL          string                     `json:"apiUrl"`
	DownloadURL     string                     `json:"downloadUrl"`
	UploadURL       string                     `json:"uploadUrl"`
	EventSourceURL  string                     `json:"eventSourceUrl"`
	State           string                     `json:"state"`
}

// FetchSession GETs the session resource with bearer auth.
func FetchSession(ctx context.Context, httpClient HTTPDoer, sessionURL, token string) (*Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sessionURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: session fetch returned status %d", ErrTransport, resp.StatusCode)
	}

	var s Session
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("%w: decoding session: %v", ErrInvalidResponse, err)
	}
	return &s, nil
}

// MailAccountID resolves the primary account for the mail capability.
func (s *Session) MailAccountID() (string, error) {
	if id, ok := s.PrimaryAccounts[MailCapability]; ok && id != "" {
		return id, nil
	}
	return "", ErrNoMailAccount
}

// BlobDownloadURL expands the session's download URL template. The
// template contains {accountId}, {blobId}, {name} and {type}
// placeholders substituted by the client; blob bytes never travel
// inside a method-call payload.
func (s *Session) BlobDownloadURL(accountID, blobID, name, contentType string) string {
	if name == "" {
		name = "blob"
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	replacer := strings.NewReplacer(
		"{accountId}", url.PathEscape(accountID),
		"{blobId}", url.PathEscape(blobID),
		"{name}", url.PathEscape(name),
		"{type}", url.QueryEscape(contentType),
	)
	return replacer.Replace(s.DownloadURL)
}

// BlobUploadURL expands the session's upload URL template.
func (s *Session) BlobUploadURL(accountID string) string {
	return strings.ReplaceAll(s.UploadURL, "{accountId}", url.PathEscape(accountID))
}
