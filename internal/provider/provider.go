package provider

import "context"

// DraftRequest describes a message to compose. ReplyToMessageID, when
// set, threads the new message under the referenced one.
type DraftRequest struct {
	To               []string
	CC               []string
	BCC              []string
	Subject          string
	TextBody         string
	HTMLBody         string
	From             string
	ReplyToMessageID string
	Attachments      []AttachmentRef
}

// AttachmentRef references an uploaded blob to attach.
type AttachmentRef struct {
	BlobID   string
	Name     string
	MIMEType string
}

// Provider is the normalized mailbox contract. Every backend adapter
// (label-model or folder-model) implements the same surface; rule
// evaluation and automation consume only this interface.
type Provider interface {
	// Reads.
	GetThreads(ctx context.Context, mailboxID string) ([]Thread, error)
	GetThread(ctx context.Context, threadID string) (*Thread, error)
	GetMessage(ctx context.Context, messageID string) (*Message, error)
	GetMessagesBatch(ctx context.Context, messageIDs []string) ([]Message, error)
	GetMessagesWithPagination(ctx context.Context, req PageRequest) (*Page, error)
	GetAttachment(ctx context.Context, messageID, attachmentID string) (*AttachmentData, error)

	// Labels (mailboxes, for folder-model backends).
	GetLabels(ctx context.Context) ([]Label, error)
	CreateLabel(ctx context.Context, name string) (*Label, error)
	DeleteLabel(ctx context.Context, labelID string) error

	// Message-granular mutations.
	ArchiveMessage(ctx context.Context, messageID string) error
	UnarchiveMessage(ctx context.Context, messageID string) error
	TrashMessage(ctx context.Context, messageID string) error
	MarkRead(ctx context.Context, messageID string) error
	MarkUnread(ctx context.Context, messageID string) error
	StarMessage(ctx context.Context, messageID string) error
	UnstarMessage(ctx context.Context, messageID string) error
	LabelMessage(ctx context.Context, messageID, labelID, labelName string) (*LabelResult, error)
	UnlabelMessage(ctx context.Context, messageID, labelID string) error

	// Thread-granular mutations.
	ArchiveThread(ctx context.Context, threadID string) error
	TrashThread(ctx context.Context, threadID string) error
	MarkSpamThread(ctx context.Context, threadID string) error
	MarkReadThread(ctx context.Context, threadID string) error
	StarThread(ctx context.Context, threadID string) error
	MoveThreadToFolder(ctx context.Context, threadID, folderName string) error

	// Bulk sender-scoped mutations.
	BulkArchiveFromSenders(ctx context.Context, senders []string) (*BulkResult, error)
	BulkTrashFromSenders(ctx context.Context, senders []string) (*BulkResult, error)

	// Compose and send.
	Identities(ctx context.Context) ([]Identity, error)
	DraftEmail(ctx context.Context, req DraftRequest) (string, error)
	ReplyToEmail(ctx context.Context, messageID string, req DraftRequest) (*SendResult, error)
	SendEmail(ctx context.Context, req DraftRequest) (*SendResult, error)
	SendEmailWithHTML(ctx context.Context, req DraftRequest) (*SendResult, error)

	// Capabilities some backends do not have. These return a Capability
	// result, never an error, when unsupported.
	CreateFilter(ctx context.Context, name string) (Capability, error)
	WatchMailbox(ctx context.Context) (Capability, error)
}
