// Package provider defines the provider-neutral mailbox contract shared
// by all backend adapters. Callers reason in messages, threads and label
// IDs regardless of whether the backend natively has labels or folders.
package provider

import (
	"errors"
	"time"
)

// ErrNotFound is returned by operations that require an entity which
// does not exist. Lookups for which absence is an expected outcome
// return a nil result instead.
var ErrNotFound = errors.New("not found")

// Pseudo-labels synthesized from backend flags so callers never need
// backend-specific branching.
const (
	LabelUnread  = "UNREAD"
	LabelStarred = "STARRED"
	LabelDraft   = "DRAFT"
)

// Address is one envelope participant.
type Address struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// Attachment is normalized attachment metadata. ID is the backend's
// blob reference and is what GetAttachment expects.
type Attachment struct {
	ID       string `json:"attachmentId"`
	Name     string `json:"name,omitempty"`
	MIMEType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size"`
}

// Message is the shared message shape. LabelIDs carries mailbox IDs
// plus pseudo-labels; membership in several mailboxes at once is legal.
type Message struct {
	ID          string       `json:"id"`
	ThreadID    string       `json:"threadId"`
	LabelIDs    []string     `json:"labelIds"`
	Snippet     string       `json:"snippet,omitempty"`
	Subject     string       `json:"subject"`
	From        []Address    `json:"from,omitempty"`
	To          []Address    `json:"to,omitempty"`
	CC          []Address    `json:"cc,omitempty"`
	BCC         []Address    `json:"bcc,omitempty"`
	ReplyTo     []Address    `json:"replyTo,omitempty"`
	Date        time.Time    `json:"date"`
	TextPlain   string       `json:"textPlain,omitempty"`
	TextHTML    string       `json:"textHtml,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	MessageID   []string     `json:"messageId,omitempty"`
	InReplyTo   []string     `json:"inReplyTo,omitempty"`
	References  []string     `json:"references,omitempty"`
	Unread      bool         `json:"unread"`
	Starred     bool         `json:"starred"`
	Draft       bool         `json:"draft"`
}

// Sender returns the first from address, or a zero Address.
func (m *Message) Sender() Address {
	if len(m.From) > 0 {
		return m.From[0]
	}
	return Address{}
}

// Thread is an ordered collection of messages sharing a thread ID.
type Thread struct {
	ID       string    `json:"id"`
	Messages []Message `json:"messages"`
	Snippet  string    `json:"snippet,omitempty"`
}

// Label is a normalized label. For folder-model backends the ID is the
// mailbox ID and Role carries the well-known purpose, if any.
type Label struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

// Identity is a sending identity.
type Identity struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email"`
	ReplyTo   []Address `json:"replyTo,omitempty"`
	BCC       []Address `json:"bcc,omitempty"`
	Signature string    `json:"signature,omitempty"`
	IsDefault bool      `json:"isDefault"`
}

// LabelResult reports how a label mutation resolved the label. When a
// stale cached ID was rejected and the label was re-resolved by name,
// UsedFallback is true and ActualLabelID carries the healed ID.
type LabelResult struct {
	UsedFallback  bool   `json:"usedFallback,omitempty"`
	ActualLabelID string `json:"actualLabelId,omitempty"`
}

// BulkResult summarizes a bulk sender-scoped mutation. Capped reports
// whether any sender hit the per-sender fetch cap, meaning a caller
// needing completeness must re-invoke.
type BulkResult struct {
	Senders  int  `json:"senders"`
	Matched  int  `json:"matched"`
	Modified int  `json:"modified"`
	Capped   bool `json:"capped,omitempty"`
}

// SendResult identifies a sent message.
type SendResult struct {
	MessageID string `json:"messageId"`
	ThreadID  string `json:"threadId,omitempty"`
}

// PageRequest selects a page of messages.
type PageRequest struct {
	Query     string
	Before    time.Time
	After     time.Time
	PageToken string
	MaxItems  int
}

// Page is one page of messages with an optional continuation token.
// An empty NextPageToken means the listing is complete.
type Page struct {
	Messages      []Message `json:"messages"`
	NextPageToken string    `json:"nextPageToken,omitempty"`
}

// AttachmentData is downloaded attachment content.
type AttachmentData struct {
	Data string `json:"data"` // base64url, no padding
	Size int64  `json:"size"`
}

// Capability is the result of an operation the backend may not support.
// Unsupported capabilities are results, not errors, so callers can
// degrade per backend.
type Capability struct {
	Supported bool   `json:"supported"`
	Reason    string `json:"reason,omitempty"`
}

// Unsupported builds the standard not-supported result.
func Unsupported(reason string) Capability {
	return Capability{Supported: false, Reason: reason}
}
