package fastmail

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/trace"

	"mailbridge/internal/jmap"
	"mailbridge/internal/provider"
	"mailbridge/internal/tracing"
)

// defaultPageSize applies when a page request names no size.
const defaultPageSize = 20

// ErrBadPageToken is returned when a continuation token is not one this
// adapter issued.
var ErrBadPageToken = errors.New("invalid page token")

// GetMessagesWithPagination lists messages matching the request, newest
// first, one page at a time. The continuation token encodes an offset
// into the query ordering; pagination is best-effort under concurrent
// mailbox change, the way offset-based listing always is.
func (c *Client) GetMessagesWithPagination(ctx context.Context, req provider.PageRequest) (*provider.Page, error) {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "fastmail.GetMessagesWithPagination",
		trace.WithAttributes(tracing.AccountID(c.accountID)))
	defer span.End()

	offset := 0
	if req.PageToken != "" {
		n, err := strconv.Atoi(req.PageToken)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: %q", ErrBadPageToken, req.PageToken)
		}
		offset = n
	}
	limit := req.MaxItems
	if limit <= 0 {
		limit = defaultPageSize
	}

	wire := jmap.NewRequest()
	query := wire.Invoke("Email/query", map[string]any{
		"accountId":      c.accountID,
		"filter":         pageFilter(req),
		"sort":           []map[string]any{{"property": "receivedAt", "isAscending": false}},
		"position":       offset,
		"limit":          limit,
		"calculateTotal": true,
	})
	get := wire.Invoke("Email/get", mergeArgs(emailBodyArgs(), map[string]any{
		"accountId": c.accountID,
		"#ids":      query.ResultReference("/ids"),
	}))

	resp, err := c.rpc.Do(ctx, wire)
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
	page := &provider.Page{
		Messages:      messages,
		NextPageToken: nextPageToken(offset, len(queryRes.IDs), queryRes.Total, limit),
	}
	span.SetAttributes(tracing.Count(len(messages)))
	return page, nil
}

// SearchMessages runs a full-text query and returns the newest matches
// up to limit. It is the single-page convenience over the paginated
// listing.
func (c *Client) SearchMessages(ctx context.Context, query string, limit int) ([]provider.Message, error) {
	page, err := c.GetMessagesWithPagination(ctx, provider.PageRequest{Query: query, MaxItems: limit})
	if err != nil {
		return nil, err
	}
	return page.Messages, nil
}

// pageFilter builds the query filter from the request's text and date
// bounds. An empty request matches everything.
func pageFilter(req provider.PageRequest) map[string]any {
	filter := map[string]any{}
	if req.Query != "" {
		filter["text"] = req.Query
	}
	if !req.Before.IsZero() {
		filter["before"] = req.Before.UTC().Format(time.RFC3339)
	}
	if !req.After.IsZero() {
		filter["after"] = req.After.UTC().Format(time.RFC3339)
	}
	return filter
}

// nextPageToken decides whether more results exist. When the server
// reports a total, the token is present exactly when offset+returned
// falls short of it. Without a total, a full page means more may exist.
func nextPageToken(offset, returned int, total *int, limit int) string {
	next := offset + returned
	if total != nil {
		if next >= *total {
			return ""
		}
		return strconv.Itoa(next)
	}
	if returned < limit {
		return ""
	}
	return strconv.Itoa(next)
}
