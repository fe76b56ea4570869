// Package inventory talks to the upstream vehicle-listing APIs.
//
// A Source pages through a dealer's listings and fetches single-listing
// details. Payloads are kept as loosely typed Items; Extract pulls the
// handful of fields the sync pipeline depends on out of them.
package inventory

import (
	"context"
	"fmt"

	"dealerhub-api/internal/model"
)

// MaxPageSize is the largest page the upstream APIs accept.
const MaxPageSize = 100

// Credentials authenticate against an inventory account with HTTP basic auth.
type Credentials struct {
	Username string
	Password string
}

// Item is one upstream listing payload, summary or detail.
type Item map[string]interface{}

// SortField names a provider-neutral sort key.
type SortField string

// SortOrder names a provider-neutral sort direction.
type SortOrder string

const (
	SortByModified SortField = "modified"
	SortByCreated  SortField = "created"

	SortDescending SortOrder = "desc"
	SortAscending  SortOrder = "asc"
)

// Source abstracts one upstream inventory API.
type Source interface {
	// ListPage returns one page of listing summaries. page is 1-based; size is at most MaxPageSize.
	ListPage(ctx context.Context, creds Credentials, page, size int, field SortField, order SortOrder) ([]Item, error)

	// FetchDetail returns the full payload of a single listing.
	FetchDetail(ctx context.Context, creds Credentials, listingID string) (Item, error)
}

// Registry resolves the Source for a provider.
type Registry map[model.Provider]Source

// For returns the Source registered for p.
func (r Registry) For(p model.Provider) (Source, error) {
	src, ok := r[p]
	if !ok || src == nil {
		return nil, fmt.Errorf("no inventory source registered for provider %q", p)
	}
	return src, nil
}

// UpstreamRequestError is returned for any non-2xx upstream response.
type UpstreamRequestError struct {
	StatusCode int
	Body       string
	URL        string
}

// Error implements the error interface.
func (e *UpstreamRequestError) Error() string {
	body := e.Body
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	return fmt.Sprintf("upstream returned %d for %s: %s", e.StatusCode, e.URL, body)
}
