package fastmail

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"mailbridge/internal/jmap"
	"mailbridge/internal/provider"
	"mailbridge/internal/tracing"
)

// threadListLimit bounds the thread listing query.
const threadListLimit = 50

// batchChunkSize bounds one Email/get; larger batches are split across
// exchanges.
const batchChunkSize = 50

// GetThreads lists the newest threads in a mailbox. One representative
// message per thread, newest first, with full bodies. Both the query
// and the fetch ride in a single exchange via a back-reference. An
// empty mailbox ID lists across all mailboxes.
func (c *Client) GetThreads(ctx context.Context, mailboxID string) ([]provider.Thread, error) {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "fastmail.GetThreads",
		trace.WithAttributes(tracing.AccountID(c.accountID), tracing.MailboxID(mailboxID)))
	defer span.End()

	queryArgs := map[string]any{
		"accountId":       c.accountID,
		"sort":            []map[string]any{{"property": "receivedAt", "isAscending": false}},
		"collapseThreads": true,
		"limit":           threadListLimit,
	}
	if mailboxID != "" {
		queryArgs["filter"] = map[string]any{"inMailbox": mailboxID}
	}
	req := jmap.NewRequest()
	query := req.Invoke("Email/query", queryArgs)
	get := req.Invoke("Email/get", mergeArgs(emailBodyArgs(), map[string]any{
		"accountId": c.accountID,
		"#ids":      query.ResultReference("/ids"),
	}))

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
	var getRes jmap.EmailGetResponse
	if err := resp.Get(get, &getRes); err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	messages := normalizeMessages(reorderEmails(queryRes.IDs, getRes.List))
	threads := groupThreads(messages)
	span.SetAttributes(tracing.Count(len(threads)))
	return threads, nil
}

// GetThread fetches every message of one thread, oldest first.
func (c *Client) GetThread(ctx context.Context, threadID string) (*provider.Thread, error) {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "fastmail.GetThread",
		trace.WithAttributes(tracing.AccountID(c.accountID), tracing.ThreadID(threadID)))
	defer span.End()

	req := jmap.NewRequest()
	query := req.Invoke("Email/query", map[string]any{
		"accountId": c.accountID,
		"filter":    map[string]any{"inThread": threadID},
		"sort":      []map[string]any{{"property": "receivedAt", "isAscending": true}},
	})
	get := req.Invoke("Email/get", mergeArgs(emailBodyArgs(), map[string]any{
		"accountId": c.accountID,
		"#ids":      query.ResultReference("/ids"),
	}))

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
	var getRes jmap.EmailGetResponse
	if err := resp.Get(get, &getRes); err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	if len(getRes.List) == 0 {
		return nil, fmt.Errorf("%w: thread %s", provider.ErrNotFound, threadID)
	}

	messages := normalizeMessages(reorderEmails(queryRes.IDs, getRes.List))
	thread := &provider.Thread{
		ID:       threadID,
		Messages: messages,
		Snippet:  messages[0].Snippet,
	}
	return thread, nil
}

// GetMessage fetches a single message with full bodies.
func (c *Client) GetMessage(ctx context.Context, messageID string) (*provider.Message, error) {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "fastmail.GetMessage",
		trace.WithAttributes(tracing.AccountID(c.accountID), tracing.MessageID(messageID)))
	defer span.End()

	emails, err := c.fetchEmails(ctx, []string{messageID})
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	if len(emails) == 0 {
		return nil, fmt.Errorf("%w: message %s", provider.ErrNotFound, messageID)
	}
	message := normalizeMessage(emails[0])
	return &message, nil
}

// GetMessagesBatch fetches many messages, chunking the underlying
// Email/get calls. IDs the server does not know are skipped, not
// errors; callers diff the result against their request when they
// care.
func (c *Client) GetMessagesBatch(ctx context.Context, messageIDs []string) ([]provider.Message, error) {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "fastmail.GetMessagesBatch",
		trace.WithAttributes(tracing.AccountID(c.accountID), tracing.Count(len(messageIDs))))
	defer span.End()

	out := make([]provider.Message, 0, len(messageIDs))
	for start := 0; start < len(messageIDs); start += batchChunkSize {
		end := start + batchChunkSize
		if end > len(messageIDs) {
			end = len(messageIDs)
		}
		emails, err := c.fetchEmails(ctx, messageIDs[start:end])
		if err != nil {
			tracing.RecordError(span, err)
			return nil, err
		}
		out = append(out, normalizeMessages(reorderEmails(messageIDs[start:end], emails))...)
	}
	return out, nil
}

// fetchEmails is one Email/get exchange with full body arguments.
func (c *Client) fetchEmails(ctx context.Context, ids []string) ([]jmap.Email, error) {
	req := jmap.NewRequest()
	get := req.Invoke("Email/get", mergeArgs(emailBodyArgs(), map[string]any{
		"accountId": c.accountID,
		"ids":       ids,
	}))

	resp, err := c.rpc.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	var getRes jmap.EmailGetResponse
	if err := resp.Get(get, &getRes); err != nil {
		return nil, err
	}
	return getRes.List, nil
}

// reorderEmails restores the query's ordering, which Email/get does not
// guarantee to preserve. IDs absent from the fetched list are dropped.
func reorderEmails(ids []string, emails []jmap.Email) []jmap.Email {
	byID := make(map[string]jmap.Email, len(emails))
	for _, e := range emails {
		byID[e.ID] = e
	}
	out := make([]jmap.Email, 0, len(emails))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

// groupThreads buckets messages by thread ID, preserving both the
// first-seen order of threads and the message order within each.
func groupThreads(messages []provider.Message) []provider.Thread {
	index := make(map[string]int, len(messages))
	threads := make([]provider.Thread, 0, len(messages))
	for _, m := range messages {
		i, ok := index[m.ThreadID]
		if !ok {
			i = len(threads)
			index[m.ThreadID] = i
			threads = append(threads, provider.Thread{ID: m.ThreadID, Snippet: m.Snippet})
		}
		threads[i].Messages = append(threads[i].Messages, m)
	}
	return threads
}

// mergeArgs overlays extra onto base. Keys in extra win.
func mergeArgs(base, extra map[string]any) map[string]any {
	for k, v := range extra {
		base[k] = v
	}
	return base
}
