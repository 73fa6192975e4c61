package clients

import (
	"context"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when no client is registered under an ID.
var ErrNotFound = errors.New("client not found")

// Client is a registered relying-party application. Clients are created by
// an out-of-band admin process and are read-only to the authorization flow.
type Client struct {
	ID           string   `json:"client_id"`
	AppName      string   `json:"app_name,omitempty"`
	RedirectURIs []string `json:"redirect_uris"`
}

// TrustsRedirectURI reports whether uri is in the client's trusted set.
// Exact string match only; no prefix or substring logic.
func (c *Client) TrustsRedirectURI(uri string) bool {
	for _, trusted := range c.RedirectURIs {
		if trusted == uri {
			return true
		}
	}
	return false
}

// Repo provides access to registered clients.
type Repo interface {
	Get(ctx context.Context, clientID string) (*Client, error)
	List(ctx context.Context) ([]*Client, error)
	Upsert(ctx context.Context, client *Client) error
}
