package fastmail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"mailbridge/internal/jmap"
	"mailbridge/internal/provider"
	"mailbridge/internal/tracing"
)

// bulkSenderFetchCap bounds how many messages one sender's bulk query
// fetches. A capped sender is reported, not an error.
const bulkSenderFetchCap = 500

// membershipPatch adds or removes one mailbox from a message without
// touching its other memberships.
type membershipPatch struct {
	mailboxID string
	in        bool
}

// membershipArgs renders patches as JMAP sparse-update keys. Removal is
// a null, not false.
func membershipArgs(patches ...membershipPatch) map[string]any {
	args := make(map[string]any, len(patches))
	for _, p := range patches {
		key := "mailboxIds/" + p.mailboxID
		if p.in {
			args[key] = true
		} else {
			args[key] = nil
		}
	}
	return args
}

// keywordArgs renders one keyword flip as a sparse-update key.
func keywordArgs(keyword string, set bool) map[string]any {
	key := "keywords/" + keyword
	if set {
		return map[string]any{key: true}
	}
	return map[string]any{key: nil}
}

// updateMessages applies the same sparse patch to every listed message
// in one Email/set. Any per-message rejection fails the call.
func (c *Client) updateMessages(ctx context.Context, messageIDs []string, patch map[string]any) (int, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}

	update := make(map[string]any, len(messageIDs))
	for _, id := range messageIDs {
		update[id] = patch
	}
	req := jmap.NewRequest()
	call := req.Invoke("Email/set", map[string]any{
		"accountId": c.accountID,
		"update":    update,
	})

	resp, err := c.rpc.Do(ctx, req)
	if err != nil {
		return 0, err
	}
	var result jmap.SetResponse
	if err := resp.Get(call, &result); err != nil {
		return 0, err
	}

	for id, setErr := range result.NotUpdated {
		if setErr.Type == "notFound" {
			return len(result.Updated), fmt.Errorf("%w: message %s", provider.ErrNotFound, id)
		}
		return len(result.Updated), fmt.Errorf("%w: update message %s: %s", ErrMutationRejected, id, setErr.Type)
	}
	return len(result.Updated), nil
}

func (c *Client) updateMessage(ctx context.Context, messageID string, patch map[string]any) error {
	_, err := c.updateMessages(ctx, []string{messageID}, patch)
	return err
}

// threadMessageIDs resolves a thread to its member message IDs.
func (c *Client) threadMessageIDs(ctx context.Context, threadID string) ([]string, error) {
	req := jmap.NewRequest()
	call := req.Invoke("Thread/get", map[string]any{
		"accountId": c.accountID,
		"ids":       []string{threadID},
	})

	resp, err := c.rpc.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	var result jmap.ThreadGetResponse
	if err := resp.Get(call, &result); err != nil {
		return nil, err
	}
	if len(result.List) == 0 {
		return nil, fmt.Errorf("%w: thread %s", provider.ErrNotFound, threadID)
	}
	return result.List[0].EmailIDs, nil
}

// moveToRole moves messages into the role mailbox and out of the inbox.
// A backend without the role mailbox makes the op a logged no-op rather
// than an error: there is nowhere to move to and nothing is lost.
func (c *Client) moveToRole(ctx context.Context, span trace.Span, role string, messageIDs []string) error {
	target, err := c.mailboxByRole(ctx, role)
	if err != nil {
		tracing.RecordError(span, err)
		return err
	}
	if target == nil {
		c.logger.WarnContext(ctx, "role mailbox absent, skipping move",
			slog.String("account_id", c.accountID),
			slog.String("role", role),
		)
		return nil
	}

	patches := []membershipPatch{{mailboxID: target.ID, in: true}}
	if inbox, err := c.mailboxByRole(ctx, jmap.RoleInbox); err != nil {
		tracing.RecordError(span, err)
		return err
	} else if inbox != nil && inbox.ID != target.ID {
		patches = append(patches, membershipPatch{mailboxID: inbox.ID, in: false})
	}

	if _, err := c.updateMessages(ctx, messageIDs, membershipArgs(patches...)); err != nil {
		tracing.RecordError(span, err)
		return err
	}
	return nil
}

// ArchiveMessage moves a message from the inbox to the archive.
// Archiving an already archived message is a no-op on the server side.
func (c *Client) ArchiveMessage(ctx context.Context, messageID string) error {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "fastmail.ArchiveMessage",
		trace.WithAttributes(tracing.AccountID(c.accountID), tracing.MessageID(messageID)))
	defer span.End()
	return c.moveToRole(ctx, span, jmap.RoleArchive, []string{messageID})
}

// UnarchiveMessage moves a message back to the inbox.
func (c *Client) UnarchiveMessage(ctx context.Context, messageID string) error {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "fastmail.UnarchiveMessage",
		trace.WithAttributes(tracing.AccountID(c.accountID), tracing.MessageID(messageID)))
	defer span.End()

	inbox, err := c.mailboxByRole(ctx, jmap.RoleInbox)
	if err != nil {
		tracing.RecordError(span, err)
		return err
	}
	if inbox == nil {
		c.logger.WarnContext(ctx, "inbox mailbox absent, skipping unarchive",
			slog.String("account_id", c.accountID))
		return nil
	}
	patches := []membershipPatch{{mailboxID: inbox.ID, in: true}}
	if archive, err := c.mailboxByRole(ctx, jmap.RoleArchive); err != nil {
		tracing.RecordError(span, err)
		return err
	} else if archive != nil {
		patches = append(patches, membershipPatch{mailboxID: archive.ID, in: false})
	}
	if err := c.updateMessage(ctx, messageID, membershipArgs(patches...)); err != nil {
		tracing.RecordError(span, err)
		return err
	}
	return nil
}

// TrashMessage moves a message to the trash.
func (c *Client) TrashMessage(ctx context.Context, messageID string) error {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "fastmail.TrashMessage",
		trace.WithAttributes(tracing.AccountID(c.accountID), tracing.MessageID(messageID)))
	defer span.End()
	return c.moveToRole(ctx, span, jmap.RoleTrash, []string{messageID})
}

// MarkRead sets the seen keyword.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "fastmail.MarkRead",
		trace.WithAttributes(tracing.AccountID(c.accountID), tracing.MessageID(messageID)))
	defer span.End()
	if err := c.updateMessage(ctx, messageID, keywordArgs(jmap.KeywordSeen, true)); err != nil {
		tracing.RecordError(span, err)
		return err
	}
	return nil
}

// MarkUnread clears the seen keyword.
func (c *Client) MarkUnread(ctx context.Context, messageID string) error {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "fastmail.MarkUnread",
		trace.WithAttributes(tracing.AccountID(c.accountID), tracing.MessageID(messageID)))
	defer span.End()
	if err := c.updateMessage(ctx, messageID, keywordArgs(jmap.KeywordSeen, false)); err != nil {
		tracing.RecordError(span, err)
		return err
	}
	return nil
}

// StarMessage sets the flagged keyword.
func (c *Client) StarMessage(ctx context.Context, messageID string) error {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "fastmail.StarMessage",
		trace.WithAttributes(tracing.AccountID(c.accountID), tracing.MessageID(messageID)))
	defer span.End()
	if err := c.updateMessage(ctx, messageID, keywordArgs(jmap.KeywordFlagged, true)); err != nil {
		tracing.RecordError(span, err)
		return err
	}
	return nil
}

// UnstarMessage clears the flagged keyword.
func (c *Client) UnstarMessage(ctx context.Context, messageID string) error {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "fastmail.UnstarMessage",
		trace.WithAttributes(tracing.AccountID(c.accountID), tracing.MessageID(messageID)))
	defer span.End()
	if err := c.updateMessage(ctx, messageID, keywordArgs(jmap.KeywordFlagged, false)); err != nil {
		tracing.RecordError(span, err)
		return err
	}
	return nil
}

// LabelMessage adds a mailbox membership. An empty label ID is
// resolved from the name, memoized per client so repeat applications
// of the same label skip the lookup. When the given label ID is
// rejected as stale, the label is re-resolved by name once and the
// mutation retried; the result reports the healed ID so the caller can
// repair its cache.
func (c *Client) LabelMessage(ctx context.Context, messageID, labelID, labelName string) (*provider.LabelResult, error) {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "fastmail.LabelMessage",
		trace.WithAttributes(tracing.AccountID(c.accountID), tracing.MessageID(messageID), tracing.LabelID(labelID)))
	defer span.End()

	if labelID == "" {
		if labelName == "" {
			err := fmt.Errorf("%w: label", provider.ErrNotFound)
			tracing.RecordError(span, err)
			return nil, err
		}
		if memoized, ok := c.labelMemo.get(labelName); ok {
			labelID = memoized
		} else {
			target, err := c.mailboxByName(ctx, labelName)
			if err != nil {
				tracing.RecordError(span, err)
				return nil, err
			}
			if target == nil {
				err := fmt.Errorf("%w: label %q", provider.ErrNotFound, labelName)
				tracing.RecordError(span, err)
				return nil, err
			}
			labelID = target.ID
		}
	}

	err := c.updateMessage(ctx, messageID, membershipArgs(membershipPatch{mailboxID: labelID, in: true}))
	if err == nil {
		if labelName != "" {
			c.labelMemo.put(labelName, labelID)
		}
		return &provider.LabelResult{ActualLabelID: labelID}, nil
	}
	if !isMutationRejected(err) || labelName == "" {
		tracing.RecordError(span, err)
		return nil, err
	}

	// Stale ID: the mailbox was likely recreated. Refresh and retry by
	// name once.
	c.invalidateMailboxes()
	target, lookupErr := c.mailboxByName(ctx, labelName)
	if lookupErr != nil {
		tracing.RecordError(span, lookupErr)
		return nil, lookupErr
	}
	if target == nil || target.ID == labelID {
		tracing.RecordError(span, err)
		return nil, err
	}

	if retryErr := c.updateMessage(ctx, messageID, membershipArgs(membershipPatch{mailboxID: target.ID, in: true})); retryErr != nil {
		tracing.RecordError(span, retryErr)
		return nil, retryErr
	}

	c.labelMemo.put(labelName, target.ID)
	c.logger.InfoContext(ctx, "label id healed by name lookup",
		slog.String("account_id", c.accountID),
		slog.String("label_name", labelName),
		slog.String("stale_id", labelID),
		slog.String("actual_id", target.ID),
	)
	return &provider.LabelResult{UsedFallback: true, ActualLabelID: target.ID}, nil
}

// UnlabelMessage removes a mailbox membership.
func (c *Client) UnlabelMessage(ctx context.Context, messageID, labelID string) error {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "fastmail.UnlabelMessage",
		trace.WithAttributes(tracing.AccountID(c.accountID), tracing.MessageID(messageID), tracing.LabelID(labelID)))
	defer span.End()
	if err := c.updateMessage(ctx, messageID, membershipArgs(membershipPatch{mailboxID: labelID, in: false})); err != nil {
		tracing.RecordError(span, err)
		return err
	}
	return nil
}

func isMutationRejected(err error) bool {
	return errors.Is(err, ErrMutationRejected) || errors.Is(err, provider.ErrNotFound)
}

// ArchiveThread archives every message of a thread.
func (c *Client) ArchiveThread(ctx context.Context, threadID string) error {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "fastmail.ArchiveThread",
		trace.WithAttributes(tracing.AccountID(c.accountID), tracing.ThreadID(threadID)))
	defer span.End()

	ids, err := c.threadMessageIDs(ctx, threadID)
	if err != nil {
		tracing.RecordError(span, err)
		return err
	}
	return c.moveToRole(ctx, span, jmap.RoleArchive, ids)
}

// TrashThread moves every message of a thread to the trash.
func (c *Client) TrashThread(ctx context.Context, threadID string) error {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "fastmail.TrashThread",
		trace.WithAttributes(tracing.AccountID(c.accountID), tracing.ThreadID(threadID)))
	defer span.End()

	ids, err := c.threadMessageIDs(ctx, threadID)
	if err != nil {
		tracing.RecordError(span, err)
		return err
	}
	return c.moveToRole(ctx, span, jmap.RoleTrash, ids)
}

// MarkSpamThread moves every message of a thread to the junk mailbox.
func (c *Client) MarkSpamThread(ctx context.Context, threadID string) error {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "fastmail.MarkSpamThread",
		trace.WithAttributes(tracing.AccountID(c.accountID), tracing.ThreadID(threadID)))
	defer span.End()

	ids, err := c.threadMessageIDs(ctx, threadID)
	if err != nil {
		tracing.RecordError(span, err)
		return err
	}
	return c.moveToRole(ctx, span, jmap.RoleJunk, ids)
}

// MarkReadThread marks every message of a thread as read.
func (c *Client) MarkReadThread(ctx context.Context, threadID string) error {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "fastmail.MarkReadThread",
		trace.WithAttributes(tracing.AccountID(c.accountID), tracing.ThreadID(threadID)))
	defer span.End()

	ids, err := c.threadMessageIDs(ctx, threadID)
	if err != nil {
		tracing.RecordError(span, err)
		return err
	}
	if _, err := c.updateMessages(ctx, ids, keywordArgs(jmap.KeywordSeen, true)); err != nil {
		tracing.RecordError(span, err)
		return err
	}
	return nil
}

// StarThread stars every message of a thread.
func (c *Client) StarThread(ctx context.Context, threadID string) error {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "fastmail.StarThread",
		trace.WithAttributes(tracing.AccountID(c.accountID), tracing.ThreadID(threadID)))
	defer span.End()

	ids, err := c.threadMessageIDs(ctx, threadID)
	if err != nil {
		tracing.RecordError(span, err)
		return err
	}
	if _, err := c.updateMessages(ctx, ids, keywordArgs(jmap.KeywordFlagged, true)); err != nil {
		tracing.RecordError(span, err)
		return err
	}
	return nil
}

// MoveThreadToFolder replaces the mailbox membership of every message
// in a thread with the named folder. Unlike the label operations this
// is a replacement, matching folder semantics. The folder is created
// when it does not exist.
func (c *Client) MoveThreadToFolder(ctx context.Context, threadID, folderName string) error {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "fastmail.MoveThreadToFolder",
		trace.WithAttributes(tracing.AccountID(c.accountID), tracing.ThreadID(threadID)))
	defer span.End()

	target, err := c.mailboxByName(ctx, folderName)
	if err != nil {
		tracing.RecordError(span, err)
		return err
	}
	if target == nil {
		label, err := c.CreateLabel(ctx, folderName)
		if err != nil {
			tracing.RecordError(span, err)
			return err
		}
		target = &jmap.Mailbox{ID: label.ID, Name: label.Name}
	}

	ids, err := c.threadMessageIDs(ctx, threadID)
	if err != nil {
		tracing.RecordError(span, err)
		return err
	}
	patch := map[string]any{"mailboxIds": map[string]bool{target.ID: true}}
	if _, err := c.updateMessages(ctx, ids, patch); err != nil {
		tracing.RecordError(span, err)
		return err
	}
	return nil
}

// bulkFromSenders queries each sender's messages and applies the move
// to all of them. Each sender is capped at bulkSenderFetchCap matches;
// a capped sender sets Capped on the result.
func (c *Client) bulkFromSenders(ctx context.Context, span trace.Span, senders []string, role string) (*provider.BulkResult, error) {
	result := &provider.BulkResult{Senders: len(senders)}
	for _, sender := range senders {
		req := jmap.NewRequest()
		query := req.Invoke("Email/query", map[string]any{
			"accountId": c.accountID,
			"filter":    map[string]any{"from": sender},
			"limit":     bulkSenderFetchCap,
		})

		resp, err := c.rpc.Do(ctx, req)
		if err != nil {
			tracing.RecordError(span, err)
			return nil, err
		}
		var queryRes jmap.QueryResponse
		if err := resp.Get(query, &queryRes); err != nil {
			tracing.RecordError(span, err)
			return nil, err
		}

		matched := len(queryRes.IDs)
		result.Matched += matched
		if matched >= bulkSenderFetchCap {
			result.Capped = true
		}
		if matched == 0 {
			continue
		}
		if err := c.moveToRole(ctx, span, role, queryRes.IDs); err != nil {
			return nil, err
		}
		result.Modified += matched
	}
	return result, nil
}

// BulkArchiveFromSenders archives all messages from each sender.
func (c *Client) BulkArchiveFromSenders(ctx context.Context, senders []string) (*provider.BulkResult, error) {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "fastmail.BulkArchiveFromSenders",
		trace.WithAttributes(tracing.AccountID(c.accountID), tracing.Count(len(senders))))
	defer span.End()
	return c.bulkFromSenders(ctx, span, senders, jmap.RoleArchive)
}

// BulkTrashFromSenders trashes all messages from each sender.
func (c *Client) BulkTrashFromSenders(ctx context.Context, senders []string) (*provider.BulkResult, error) {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "fastmail.BulkTrashFromSenders",
		trace.WithAttributes(tracing.AccountID(c.accountID), tracing.Count(len(senders))))
	defer span.End()
	return c.bulkFromSenders(ctx, span, senders, jmap.RoleTrash)
}
