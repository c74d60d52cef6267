// Package jmap implements the JMAP (RFC 8620/8621) wire protocol:
// the session resource, batched method calls with back-references,
// and typed extraction of method responses.
package jmap

import "time"

// Capability URNs used in the "using" list of a request.
const (
	CoreCapability       = "urn:ietf:params:jmap:core"
	MailCapability       = "urn:ietf:params:jmap:mail"
	SubmissionCapability = "urn:ietf:params:jmap:submission"
)

// Mailbox roles per RFC 8621.
const (
	RoleInbox   = "inbox"
	RoleArchive = "archive"
	RoleDrafts  = "drafts"
	RoleSent    = "sent"
	RoleTrash   = "trash"
	RoleJunk    = "junk"
	RoleFlagged = "flagged"
)

// Keywords per RFC 8621 section 4.1.1.
const (
	KeywordSeen    = "$seen"
	KeywordFlagged = "$flagged"
	KeywordDraft   = "$draft"
	KeywordAnswer  = "$answered"
)

// EmailAddress represents an email address with optional display name.
type EmailAddress struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// Mailbox represents a JMAP mailbox. A message may belong to any number
// of mailboxes at once; this is not a single-parent folder model.
type Mailbox struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	ParentID      *string `json:"parentId,omitempty"`
	Role          string  `json:"role,omitempty"`
	SortOrder     int     `json:"sortOrder,omitempty"`
	TotalEmails   int     `json:"totalEmails"`
	UnreadEmails  int     `json:"unreadEmails"`
	TotalThreads  int     `json:"totalThreads"`
	UnreadThreads int     `json:"unreadThreads"`
	IsSubscribed  bool    `json:"isSubscribed"`
}

// BodyPart references a MIME part of an email body. The content itself
// lives in the bodyValues map, keyed by PartID.
type BodyPart struct {
	PartID      string `json:"partId,omitempty"`
	BlobID      string `json:"blobId,omitempty"`
	Type        string `json:"type,omitempty"`
	Charset     string `json:"charset,omitempty"`
	Disposition string `json:"disposition,omitempty"`
	Name        string `json:"name,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

// BodyValue holds the decoded content of one body part.
type BodyValue struct {
	Value             string `json:"value"`
	IsTruncated       bool   `json:"isTruncated,omitempty"`
	IsEncodingProblem bool   `json:"isEncodingProblem,omitempty"`
}

// Email represents a JMAP email object as returned by Email/get.
type Email struct {
	ID            string               `json:"id"`
	BlobID        string               `json:"blobId,omitempty"`
	ThreadID      string               `json:"threadId,omitempty"`
	MailboxIDs    map[string]bool      `json:"mailboxIds,omitempty"`
	Keywords      map[string]bool      `json:"keywords,omitempty"`
	Size          int64                `json:"size,omitempty"`
	ReceivedAt    time.Time            `json:"receivedAt"`
	Subject       string               `json:"subject,omitempty"`
	From          []EmailAddress       `json:"from,omitempty"`
	To            []EmailAddress       `json:"to,omitempty"`
	CC            []EmailAddress       `json:"cc,omitempty"`
	BCC           []EmailAddress       `json:"bcc,omitempty"`
	ReplyTo       []EmailAddress       `json:"replyTo,omitempty"`
	MessageID     []string             `json:"messageId,omitempty"`
	InReplyTo     []string             `json:"inReplyTo,omitempty"`
	References    []string             `json:"references,omitempty"`
	Preview       string               `json:"preview,omitempty"`
	HasAttachment bool                 `json:"hasAttachment,omitempty"`
	TextBody      []BodyPart           `json:"textBody,omitempty"`
	HTMLBody      []BodyPart           `json:"htmlBody,omitempty"`
	BodyValues    map[string]BodyValue `json:"bodyValues,omitempty"`
	Attachments   []BodyPart           `json:"attachments,omitempty"`
}

// Thread represents a JMAP thread: an ordered list of email IDs.
type Thread struct {
	ID       string   `json:"id"`
	EmailIDs []string `json:"emailIds"`
}

// Identity represents a sending identity from Identity/get.
type Identity struct {
	ID            string         `json:"id"`
	Name          string         `json:"name,omitempty"`
	Email         string         `json:"email"`
	ReplyTo       []EmailAddress `json:"replyTo,omitempty"`
	BCC           []EmailAddress `json:"bcc,omitempty"`
	TextSignature string         `json:"textSignature,omitempty"`
	HTMLSignature string         `json:"htmlSignature,omitempty"`
	MayDelete     bool           `json:"mayDelete"`
}

// QueryResponse is the result shape of Foo/query methods.
type QueryResponse struct {
	AccountID           string   `json:"accountId"`
	QueryState          string   `json:"queryState"`
	CanCalculateChanges bool     `json:"canCalculateChanges"`
	Position            int      `json:"position"`
	Total               *int     `json:"total,omitempty"`
	IDs                 []string `json:"ids"`
}

// MailboxGetResponse is the result shape of Mailbox/get.
type MailboxGetResponse struct {
	AccountID string    `json:"accountId"`
	State     string    `json:"state"`
	List      []Mailbox `json:"list"`
	NotFound  []string  `json:"notFound"`
}

// EmailGetResponse is the result shape of Email/get.
type EmailGetResponse struct {
	AccountID string   `json:"accountId"`
	State     string   `json:"state"`
	List      []Email  `json:"list"`
	NotFound  []string `json:"notFound"`
}

// ThreadGetResponse is the result shape of Thread/get.
type ThreadGetResponse struct {
	AccountID string   `json:"accountId"`
	State     string   `json:"state"`
	List      []Thread `json:"list"`
	NotFound  []string `json:"notFound"`
}

// IdentityGetResponse is the result shape of Identity/get.
type IdentityGetResponse struct {
	AccountID string     `json:"accountId"`
	State     string     `json:"state"`
	List      []Identity `json:"list"`
}

// SetError describes why one object in a Foo/set call failed.
type SetError struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Properties  []string `json:"properties,omitempty"`
}

// CreatedObject holds the server-assigned properties of a created object.
type CreatedObject struct {
	ID       string `json:"id"`
	BlobID   string `json:"blobId,omitempty"`
	ThreadID string `json:"threadId,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// SetResponse is the result shape of Foo/set methods. A single failed
// object does not abort its siblings; per-object failures land in the
// not* maps.
type SetResponse struct {
	AccountID    string                   `json:"accountId"`
	OldState     string                   `json:"oldState,omitempty"`
	NewState     string                   `json:"newState"`
	Created      map[string]CreatedObject `json:"created,omitempty"`
	Updated      map[string]any           `json:"updated,omitempty"`
	Destroyed    []string                 `json:"destroyed,omitempty"`
	NotCreated   map[string]SetError      `json:"notCreated,omitempty"`
	NotUpdated   map[string]SetError      `json:"notUpdated,omitempty"`
	NotDestroyed map[string]SetError      `json:"notDestroyed,omitempty"`
}
