package fastmail

import (
	"sort"

	"mailbridge/internal/htmlstrip"
	"mailbridge/internal/jmap"
	"mailbridge/internal/provider"
)

// emailProperties is the property set requested on every Email/get so
// the normalizer always has the fields it reads.
var emailProperties = []string{
	"id", "threadId", "mailboxIds", "keywords", "subject",
	"from", "to", "cc", "bcc", "replyTo",
	"receivedAt", "preview", "bodyValues", "textBody", "htmlBody",
	"attachments", "messageId", "inReplyTo", "references",
}

// emailBodyArgs are the Email/get arguments that make the server
// inline body content alongside the structure.
func emailBodyArgs() map[string]any {
	return map[string]any{
		"properties":          emailProperties,
		"fetchTextBodyValues": true,
		"fetchHTMLBodyValues": true,
	}
}

// bodyText joins the body values referenced by parts. Parts whose
// value is absent contribute nothing; a gap in bodyValues is not an
// error.
func bodyText(parts []jmap.BodyPart, values map[string]jmap.BodyValue) string {
	var out string
	for _, part := range parts {
		if part.PartID == "" {
			continue
		}
		v, ok := values[part.PartID]
		if !ok {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += v.Value
	}
	return out
}

func toAddresses(in []jmap.EmailAddress) []provider.Address {
	if len(in) == 0 {
		return nil
	}
	out := make([]provider.Address, len(in))
	for i, a := range in {
		out[i] = provider.Address{Name: a.Name, Email: a.Email}
	}
	return out
}

// normalizeMessage flattens a wire email into the provider shape:
// body parts joined into plain and HTML strings, mailbox membership
// and keywords folded into a sorted label list, and a single-line
// snippet.
func normalizeMessage(email jmap.Email) provider.Message {
	textPlain := bodyText(email.TextBody, email.BodyValues)
	textHTML := bodyText(email.HTMLBody, email.BodyValues)
	// HTML-only messages still get a plain rendering so callers never
	// have to parse markup themselves.
	if textPlain == "" && textHTML != "" {
		textPlain = htmlstrip.Strip(textHTML)
	}

	snippet := email.Preview
	if snippet == "" {
		if textPlain != "" {
			snippet = htmlstrip.TruncatePreview(textPlain)
		} else if textHTML != "" {
			snippet = htmlstrip.Preview(textHTML)
		}
	}

	unread := !email.Keywords[jmap.KeywordSeen]
	starred := email.Keywords[jmap.KeywordFlagged]
	draft := email.Keywords[jmap.KeywordDraft]

	labels := make([]string, 0, len(email.MailboxIDs)+3)
	for id, in := range email.MailboxIDs {
		if in {
			labels = append(labels, id)
		}
	}
	if unread {
		labels = append(labels, provider.LabelUnread)
	}
	if starred {
		labels = append(labels, provider.LabelStarred)
	}
	if draft {
		labels = append(labels, provider.LabelDraft)
	}
	sort.Strings(labels)

	var attachments []provider.Attachment
	for _, part := range email.Attachments {
		attachments = append(attachments, provider.Attachment{
			ID:       part.BlobID,
			Name:     part.Name,
			MIMEType: part.Type,
			Size:     part.Size,
		})
	}

	return provider.Message{
		ID:          email.ID,
		ThreadID:    email.ThreadID,
		LabelIDs:    labels,
		Snippet:     snippet,
		Subject:     email.Subject,
		From:        toAddresses(email.From),
		To:          toAddresses(email.To),
		CC:          toAddresses(email.CC),
		BCC:         toAddresses(email.BCC),
		ReplyTo:     toAddresses(email.ReplyTo),
		Date:        email.ReceivedAt,
		TextPlain:   textPlain,
		TextHTML:    textHTML,
		Attachments: attachments,
		MessageID:   email.MessageID,
		InReplyTo:   email.InReplyTo,
		References:  email.References,
		Unread:      unread,
		Starred:     starred,
		Draft:       draft,
	}
}

func normalizeMessages(emails []jmap.Email) []provider.Message {
	out := make([]provider.Message, len(emails))
	for i, email := range emails {
		out[i] = normalizeMessage(email)
	}
	return out
}
