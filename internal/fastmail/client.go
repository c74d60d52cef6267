// Package fastmail implements the normalized provider contract against
// a JMAP backend. One Client owns one account's mailbox cache and
// label memo; instances must not be shared across accounts.
package fastmail

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"mailbridge/internal/jmap"
	"mailbridge/internal/logging"
	"mailbridge/internal/provider"
)

// tracerName identifies this adapter's spans.
const tracerName = "mailbridge-fastmail"

// Error types for the adapter.
var (
	ErrMutationRejected = errors.New("mutation rejected")
	ErrNoIdentities     = errors.New("account has no sending identities")
	ErrInvalidFrom      = errors.New("from address matches no identity")
	ErrNoDraftsMailbox  = errors.New("account has no drafts mailbox")
	ErrNotTextContent   = errors.New("attachment is not text content")
)

// requester executes one batched JMAP exchange.
type requester interface {
	Do(ctx context.Context, req *jmap.Request) (*jmap.Response, error)
}

// Client is the JMAP provider adapter.
type Client struct {
	accountID  string
	session    *jmap.Session
	rpc        requester
	token      string
	httpClient jmap.HTTPDoer
	logger     *slog.Logger

	cache     *mailboxCache
	labelMemo *labelMemo

	blobRetries    int
	blobRetryDelay time.Duration
	sleepFunc      func(time.Duration)
}

// Compile-time check that Client satisfies the provider contract.
var _ provider.Provider = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithHTTPClient sets the HTTP doer used for both the method-call
// channel and blob transfer.
func WithHTTPClient(httpClient jmap.HTTPDoer) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// New creates an adapter for the account advertised by the session.
// The session and token come from an upstream authentication layer;
// this package never authenticates.
func New(session *jmap.Session, token string, opts ...Option) (*Client, error) {
	accountID, err := session.MailAccountID()
	if err != nil {
		return nil, err
	}

	c := &Client{
		accountID: accountID,
		session:   session,
		token:     token,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger:         logging.New(),
		cache:          newMailboxCache(),
		labelMemo:      newLabelMemo(),
		blobRetries:    2,
		blobRetryDelay: 100 * time.Millisecond,
		sleepFunc:      time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.rpc = jmap.NewClientWithHTTP(session.APIURL, token, c.httpClient)
	return c, nil
}

// AccountID returns the JMAP account this client operates on.
func (c *Client) AccountID() string { return c.accountID }
