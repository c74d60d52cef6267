package fastmail

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"mailbridge/internal/jmap"
	"mailbridge/internal/provider"
	"mailbridge/internal/tracing"
)

// Identities lists the account's sending identities. The first one is
// reported as the default.
func (c *Client) Identities(ctx context.Context) ([]provider.Identity, error) {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "fastmail.Identities",
		trace.WithAttributes(tracing.AccountID(c.accountID)))
	defer span.End()

	identities, err := c.fetchIdentities(ctx)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	out := make([]provider.Identity, len(identities))
	for i, id := range identities {
		out[i] = provider.Identity{
			ID:        id.ID,
			Name:      id.Name,
			Email:     id.Email,
			ReplyTo:   toAddresses(id.ReplyTo),
			BCC:       toAddresses(id.BCC),
			Signature: id.TextSignature,
			IsDefault: i == 0,
		}
	}
	return out, nil
}

func (c *Client) fetchIdentities(ctx context.Context) ([]jmap.Identity, error) {
	req := jmap.NewRequest(jmap.CoreCapability, jmap.MailCapability, jmap.SubmissionCapability)
	call := req.Invoke("Identity/get", map[string]any{
		"accountId": c.accountID,
	})

	resp, err := c.rpc.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	var result jmap.IdentityGetResponse
	if err := resp.Get(call, &result); err != nil {
		return nil, err
	}
	return result.List, nil
}

// pickIdentity chooses the sending identity: the one matching From when
// given, otherwise the first.
func (c *Client) pickIdentity(ctx context.Context, from string) (*jmap.Identity, error) {
	identities, err := c.fetchIdentities(ctx)
	if err != nil {
		return nil, err
	}
	if len(identities) == 0 {
		return nil, ErrNoIdentities
	}
	if from == "" {
		return &identities[0], nil
	}
	for i := range identities {
		if strings.EqualFold(identities[i].Email, from) {
			return &identities[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrInvalidFrom, from)
}

func bareAddresses(emails []string) []map[string]any {
	out := make([]map[string]any, 0, len(emails))
	for _, e := range emails {
		if e == "" {
			continue
		}
		out = append(out, map[string]any{"email": e})
	}
	return out
}

// composeEmail builds the Email/set create object for a draft. The
// body is plain text, HTML, or both depending on what the request
// carries.
func composeEmail(req provider.DraftRequest, identity *jmap.Identity, mailboxID string, keywords map[string]bool) map[string]any {
	bodyValues := map[string]any{}
	var textBody, htmlBody []map[string]any
	if req.TextBody != "" || req.HTMLBody == "" {
		bodyValues["text"] = map[string]any{"value": req.TextBody}
		textBody = []map[string]any{{"partId": "text", "type": "text/plain"}}
	}
	if req.HTMLBody != "" {
		bodyValues["html"] = map[string]any{"value": req.HTMLBody}
		htmlBody = []map[string]any{{"partId": "html", "type": "text/html"}}
	}

	email := map[string]any{
		"mailboxIds": map[string]bool{mailboxID: true},
		"keywords":   keywords,
		"from":       []map[string]any{{"name": identity.Name, "email": identity.Email}},
		"subject":    req.Subject,
		"bodyValues": bodyValues,
	}
	if len(textBody) > 0 {
		email["textBody"] = textBody
	}
	if len(htmlBody) > 0 {
		email["htmlBody"] = htmlBody
	}
	if to := bareAddresses(req.To); len(to) > 0 {
		email["to"] = to
	}
	if cc := bareAddresses(req.CC); len(cc) > 0 {
		email["cc"] = cc
	}
	if bcc := bareAddresses(req.BCC); len(bcc) > 0 {
		email["bcc"] = bcc
	}
	if len(req.Attachments) > 0 {
		attachments := make([]map[string]any, len(req.Attachments))
		for i, a := range req.Attachments {
			attachments[i] = map[string]any{
				"blobId":      a.BlobID,
				"name":        a.Name,
				"type":        a.MIMEType,
				"disposition": "attachment",
			}
		}
		email["attachments"] = attachments
	}
	return email
}

// threadReply rewrites a draft request so the composed message threads
// under the referenced original: reply headers, a Re: subject, and a
// recipient defaulted from the original's reply-to or sender.
func threadReply(req provider.DraftRequest, original *provider.Message) (provider.DraftRequest, map[string]any) {
	headers := map[string]any{}
	if len(original.MessageID) > 0 {
		headers["inReplyTo"] = original.MessageID
		headers["references"] = append(append([]string{}, original.References...), original.MessageID...)
	}
	if req.Subject == "" {
		subject := original.Subject
		if !strings.HasPrefix(strings.ToLower(subject), "re:") {
			subject = "Re: " + subject
		}
		req.Subject = subject
	}
	if len(req.To) == 0 {
		source := original.ReplyTo
		if len(source) == 0 {
			source = original.From
		}
		for _, a := range source {
			req.To = append(req.To, a.Email)
		}
	}
	return req, headers
}

// DraftEmail creates a draft in the drafts mailbox and returns its
// message ID.
func (c *Client) DraftEmail(ctx context.Context, req provider.DraftRequest) (string, error) {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "fastmail.DraftEmail",
		trace.WithAttributes(tracing.AccountID(c.accountID)))
	defer span.End()

	identity, err := c.pickIdentity(ctx, req.From)
	if err != nil {
		tracing.RecordError(span, err)
		return "", err
	}
	drafts, err := c.mailboxByRole(ctx, jmap.RoleDrafts)
	if err != nil {
		tracing.RecordError(span, err)
		return "", err
	}
	if drafts == nil {
		tracing.RecordError(span, ErrNoDraftsMailbox)
		return "", ErrNoDraftsMailbox
	}

	var headers map[string]any
	if req.ReplyToMessageID != "" {
		original, err := c.GetMessage(ctx, req.ReplyToMessageID)
		if err != nil {
			tracing.RecordError(span, err)
			return "", err
		}
		req, headers = threadReply(req, original)
	}
	email := composeEmail(req, identity, drafts.ID, map[string]bool{
		jmap.KeywordDraft: true,
		jmap.KeywordSeen:  true,
	})
	mergeArgs(email, headers)

	creationID := uuid.New().String()
	wire := jmap.NewRequest()
	call := wire.Invoke("Email/set", map[string]any{
		"accountId": c.accountID,
		"create":    map[string]any{creationID: email},
	})

	resp, err := c.rpc.Do(ctx, wire)
	if err != nil {
		tracing.RecordError(span, err)
		return "", err
	}
	var result jmap.SetResponse
	if err := resp.Get(call, &result); err != nil {
		tracing.RecordError(span, err)
		return "", err
	}
	if setErr, ok := result.NotCreated[creationID]; ok {
		err := fmt.Errorf("%w: create draft: %s", ErrMutationRejected, setErr.Type)
		tracing.RecordError(span, err)
		return "", err
	}
	created, ok := result.Created[creationID]
	if !ok {
		err := fmt.Errorf("%w: draft created but no id returned", jmap.ErrInvalidResponse)
		tracing.RecordError(span, err)
		return "", err
	}
	return created.ID, nil
}

// SendEmail composes and submits a plain-text message. The create and
// the submission ride in one exchange, linked by a creation-ID
// back-reference; on successful submission the server moves the message
// from drafts to sent and clears the draft keyword.
func (c *Client) SendEmail(ctx context.Context, req provider.DraftRequest) (*provider.SendResult, error) {
	req.HTMLBody = ""
	return c.send(ctx, "fastmail.SendEmail", req, nil)
}

// SendEmailWithHTML composes and submits a message carrying an HTML
// body alongside any plain-text alternative.
func (c *Client) SendEmailWithHTML(ctx context.Context, req provider.DraftRequest) (*provider.SendResult, error) {
	return c.send(ctx, "fastmail.SendEmailWithHTML", req, nil)
}

// ReplyToEmail composes and submits a reply threaded under the given
// message.
func (c *Client) ReplyToEmail(ctx context.Context, messageID string, req provider.DraftRequest) (*provider.SendResult, error) {
	original, err := c.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, "fastmail.ReplyToEmail", req, original)
}

func (c *Client) send(ctx context.Context, spanName string, req provider.DraftRequest, replyTo *provider.Message) (*provider.SendResult, error) {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, spanName,
		trace.WithAttributes(tracing.AccountID(c.accountID)))
	defer span.End()

	identity, err := c.pickIdentity(ctx, req.From)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	drafts, err := c.mailboxByRole(ctx, jmap.RoleDrafts)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	if drafts == nil {
		tracing.RecordError(span, ErrNoDraftsMailbox)
		return nil, ErrNoDraftsMailbox
	}
	sent, err := c.mailboxByRole(ctx, jmap.RoleSent)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	var headers map[string]any
	if replyTo != nil {
		req, headers = threadReply(req, replyTo)
	}
	email := composeEmail(req, identity, drafts.ID, map[string]bool{
		jmap.KeywordDraft: true,
		jmap.KeywordSeen:  true,
	})
	mergeArgs(email, headers)

	rcpt := bareAddresses(append(append(append([]string{}, req.To...), req.CC...), req.BCC...))
	if len(rcpt) == 0 {
		err := fmt.Errorf("%w: no recipients", ErrMutationRejected)
		tracing.RecordError(span, err)
		return nil, err
	}

	emailCreation := uuid.New().String()
	submissionCreation := uuid.New().String()

	wire := jmap.NewRequest(jmap.CoreCapability, jmap.MailCapability, jmap.SubmissionCapability)
	setCall := wire.Invoke("Email/set", map[string]any{
		"accountId": c.accountID,
		"create":    map[string]any{emailCreation: email},
	})
	submitArgs := map[string]any{
		"accountId": c.accountID,
		"create": map[string]any{
			submissionCreation: map[string]any{
				"emailId":    "#" + emailCreation,
				"identityId": identity.ID,
				"envelope": map[string]any{
					"mailFrom": map[string]any{"email": identity.Email},
					"rcptTo":   rcpt,
				},
			},
		},
	}
	// Once the server accepts the submission it also files the message:
	// out of drafts, into sent, draft keyword cleared. Without a sent
	// mailbox the message stays where it is.
	if sent != nil {
		submitArgs["onSuccessUpdateEmail"] = map[string]any{
			"#" + submissionCreation: map[string]any{
				"mailboxIds/" + drafts.ID:       nil,
				"mailboxIds/" + sent.ID:         true,
				"keywords/" + jmap.KeywordDraft: nil,
				"keywords/" + jmap.KeywordSeen:  true,
			},
		}
	} else {
		c.logger.WarnContext(ctx, "sent mailbox absent, submitted message stays in drafts",
			slog.String("account_id", c.accountID))
	}
	submitCall := wire.Invoke("EmailSubmission/set", submitArgs)

	resp, err := c.rpc.Do(ctx, wire)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	var setRes jmap.SetResponse
	if err := resp.Get(setCall, &setRes); err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	if setErr, ok := setRes.NotCreated[emailCreation]; ok {
		err := fmt.Errorf("%w: create message: %s", ErrMutationRejected, setErr.Type)
		tracing.RecordError(span, err)
		return nil, err
	}
	created, ok := setRes.Created[emailCreation]
	if !ok {
		err := fmt.Errorf("%w: message created but no id returned", jmap.ErrInvalidResponse)
		tracing.RecordError(span, err)
		return nil, err
	}

	var submitRes jmap.SetResponse
	if err := resp.Get(submitCall, &submitRes); err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	if setErr, ok := submitRes.NotCreated[submissionCreation]; ok {
		err := fmt.Errorf("%w: submit message: %s", ErrMutationRejected, setErr.Type)
		tracing.RecordError(span, err)
		return nil, err
	}
	if _, ok := submitRes.Created[submissionCreation]; !ok {
		// Ambiguous outcome: the server reported neither success nor a
		// per-object failure. Treat as sent rather than risk a caller
		// retry producing a duplicate delivery.
		c.logger.WarnContext(ctx, "submission outcome ambiguous, treating as sent",
			slog.String("account_id", c.accountID),
			slog.String("message_id", created.ID),
		)
	}

	span.SetAttributes(tracing.MessageID(created.ID))
	return &provider.SendResult{MessageID: created.ID, ThreadID: created.ThreadID}, nil
}
