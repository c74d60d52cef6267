package fastmail

import (
	"context"

	"mailbridge/internal/provider"
)

// CreateFilter reports that server-side filter management is not
// exposed over this backend's API. Callers get a capability result,
// never an error.
func (c *Client) CreateFilter(ctx context.Context, name string) (provider.Capability, error) {
	return provider.Unsupported("server-side filter management is not exposed over JMAP"), nil
}

// WatchMailbox reports that push notifications are not implemented by
// this adapter. Polling is the supported change-detection strategy.
func (c *Client) WatchMailbox(ctx context.Context) (provider.Capability, error) {
	return provider.Unsupported("push notifications are not implemented; poll instead"), nil
}
