package fastmail

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"mailbridge/internal/jmap"
	"mailbridge/internal/provider"
	"mailbridge/internal/tracing"
)

// mailboxCache is a lazily built index of the account's mailboxes,
// owned by exactly one Client. It is invalidated, never patched in
// place: indices are built aside and swapped wholesale so a concurrent
// reader sees either the old or the new generation, not a mix.
type mailboxCache struct {
	mu        sync.Mutex
	flight    singleflight.Group
	populated bool
	list      []jmap.Mailbox
	byID      map[string]jmap.Mailbox
	byRole    map[string]jmap.Mailbox
	byName    map[string]jmap.Mailbox
}

func newMailboxCache() *mailboxCache {
	return &mailboxCache{}
}

// ensure populates the indices from fetch if they are not already
// populated. Population is single-flighted so concurrent callers share
// one listing fetch.
func (mc *mailboxCache) ensure(ctx context.Context, fetch func(context.Context) ([]jmap.Mailbox, error)) error {
	mc.mu.Lock()
	populated := mc.populated
	mc.mu.Unlock()
	if populated {
		return nil
	}

	_, err, _ := mc.flight.Do("mailboxes", func() (any, error) {
		mc.mu.Lock()
		if mc.populated {
			mc.mu.Unlock()
			return nil, nil
		}
		mc.mu.Unlock()

		list, err := fetch(ctx)
		if err != nil {
			return nil, err
		}

		byID := make(map[string]jmap.Mailbox, len(list))
		byRole := make(map[string]jmap.Mailbox, len(list))
		// Two mailboxes may legally share a name on some backends; the
		// last one indexed wins. Documented limitation, not a merge.
		byName := make(map[string]jmap.Mailbox, len(list))
		for _, mb := range list {
			byID[mb.ID] = mb
			if mb.Role != "" {
				byRole[mb.Role] = mb
			}
			byName[strings.ToLower(mb.Name)] = mb
		}

		mc.mu.Lock()
		mc.list = list
		mc.byID = byID
		mc.byRole = byRole
		mc.byName = byName
		mc.populated = true
		mc.mu.Unlock()
		return nil, nil
	})
	return err
}

// invalidate marks the cache unpopulated, forcing the next ensure to
// refetch the full listing.
func (mc *mailboxCache) invalidate() {
	mc.mu.Lock()
	mc.populated = false
	mc.mu.Unlock()
}

func (mc *mailboxCache) all() []jmap.Mailbox {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	out := make([]jmap.Mailbox, len(mc.list))
	copy(out, mc.list)
	return out
}

func (mc *mailboxCache) lookupID(id string) (jmap.Mailbox, bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mb, ok := mc.byID[id]
	return mb, ok
}

func (mc *mailboxCache) lookupRole(role string) (jmap.Mailbox, bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mb, ok := mc.byRole[role]
	return mb, ok
}

// lookupName is case-insensitive.
func (mc *mailboxCache) lookupName(name string) (jmap.Mailbox, bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mb, ok := mc.byName[strings.ToLower(name)]
	return mb, ok
}

// labelMemo remembers resolved ids of well-known labels per instance,
// avoiding repeat name lookups between cache rebuilds.
type labelMemo struct {
	mu  sync.Mutex
	ids map[string]string
}

func newLabelMemo() *labelMemo {
	return &labelMemo{ids: make(map[string]string)}
}

func (m *labelMemo) get(name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.ids[strings.ToLower(name)]
	return id, ok
}

func (m *labelMemo) put(name, id string) {
	m.mu.Lock()
	m.ids[strings.ToLower(name)] = id
	m.mu.Unlock()
}

func (m *labelMemo) reset() {
	m.mu.Lock()
	m.ids = make(map[string]string)
	m.mu.Unlock()
}

// fetchMailboxes lists every mailbox in one Mailbox/get exchange.
func (c *Client) fetchMailboxes(ctx context.Context) ([]jmap.Mailbox, error) {
	req := jmap.NewRequest()
	call := req.Invoke("Mailbox/get", map[string]any{
		"accountId": c.accountID,
	})

	resp, err := c.rpc.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	var result jmap.MailboxGetResponse
	if err := resp.Get(call, &result); err != nil {
		return nil, err
	}
	return result.List, nil
}

func (c *Client) ensureMailboxes(ctx context.Context) error {
	return c.cache.ensure(ctx, c.fetchMailboxes)
}

// invalidateMailboxes drops the cache and memo after any mailbox
// mutation.
func (c *Client) invalidateMailboxes() {
	c.cache.invalidate()
	c.labelMemo.reset()
}

// mailboxByRole returns the authoritative mailbox for a role, or nil
// when the backend does not expose one. Absence is backend-normal, not
// an error.
func (c *Client) mailboxByRole(ctx context.Context, role string) (*jmap.Mailbox, error) {
	if err := c.ensureMailboxes(ctx); err != nil {
		return nil, err
	}
	if mb, ok := c.cache.lookupRole(role); ok {
		return &mb, nil
	}
	return nil, nil
}

// mailboxByName returns the mailbox with the given name
// (case-insensitive), or nil when there is none.
func (c *Client) mailboxByName(ctx context.Context, name string) (*jmap.Mailbox, error) {
	if err := c.ensureMailboxes(ctx); err != nil {
		return nil, err
	}
	if mb, ok := c.cache.lookupName(name); ok {
		return &mb, nil
	}
	// A role name like "inbox" is also accepted, matching how callers
	// address system folders.
	if mb, ok := c.cache.lookupRole(strings.ToLower(name)); ok {
		return &mb, nil
	}
	return nil, nil
}

func labelFromMailbox(mb jmap.Mailbox) provider.Label {
	return provider.Label{ID: mb.ID, Name: mb.Name, Role: mb.Role}
}

// GetLabels lists every mailbox as a label.
func (c *Client) GetLabels(ctx context.Context) ([]provider.Label, error) {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "fastmail.GetLabels",
		trace.WithAttributes(tracing.AccountID(c.accountID)))
	defer span.End()

	if err := c.ensureMailboxes(ctx); err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	mailboxes := c.cache.all()
	labels := make([]provider.Label, 0, len(mailboxes))
	for _, mb := range mailboxes {
		labels = append(labels, labelFromMailbox(mb))
	}
	return labels, nil
}

// CreateLabel creates a mailbox with the given name and invalidates
// the cache so the next listing reflects it.
func (c *Client) CreateLabel(ctx context.Context, name string) (*provider.Label, error) {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "fastmail.CreateLabel",
		trace.WithAttributes(tracing.AccountID(c.accountID)))
	defer span.End()

	creationID := uuid.New().String()
	req := jmap.NewRequest()
	call := req.Invoke("Mailbox/set", map[string]any{
		"accountId": c.accountID,
		"create": map[string]any{
			creationID: map[string]any{"name": name},
		},
	})

	resp, err := c.rpc.Do(ctx, req)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	var result jmap.SetResponse
	if err := resp.Get(call, &result); err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	if setErr, ok := result.NotCreated[creationID]; ok {
		err := fmt.Errorf("%w: create mailbox %q: %s", ErrMutationRejected, name, setErr.Type)
		tracing.RecordError(span, err)
		return nil, err
	}
	created, ok := result.Created[creationID]
	if !ok {
		err := fmt.Errorf("%w: mailbox created but no id returned", jmap.ErrInvalidResponse)
		tracing.RecordError(span, err)
		return nil, err
	}

	c.invalidateMailboxes()
	c.logger.InfoContext(ctx, "created mailbox",
		slog.String("account_id", c.accountID),
		slog.String("mailbox_id", created.ID),
		slog.String("name", name),
	)
	return &provider.Label{ID: created.ID, Name: name}, nil
}

// DeleteLabel destroys a mailbox. Contained messages are kept (moved
// by the server), not destroyed with it.
func (c *Client) DeleteLabel(ctx context.Context, labelID string) error {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "fastmail.DeleteLabel",
		trace.WithAttributes(tracing.AccountID(c.accountID), tracing.LabelID(labelID)))
	defer span.End()

	req := jmap.NewRequest()
	call := req.Invoke("Mailbox/set", map[string]any{
		"accountId":             c.accountID,
		"destroy":               []string{labelID},
		"onDestroyRemoveEmails": false,
	})

	resp, err := c.rpc.Do(ctx, req)
	if err != nil {
		tracing.RecordError(span, err)
		return err
	}
	var result jmap.SetResponse
	if err := resp.Get(call, &result); err != nil {
		tracing.RecordError(span, err)
		return err
	}

	if setErr, ok := result.NotDestroyed[labelID]; ok {
		if setErr.Type == "notFound" {
			return fmt.Errorf("%w: mailbox %s", provider.ErrNotFound, labelID)
		}
		err := fmt.Errorf("%w: destroy mailbox %s: %s", ErrMutationRejected, labelID, setErr.Type)
		tracing.RecordError(span, err)
		return err
	}

	c.invalidateMailboxes()
	return nil
}
