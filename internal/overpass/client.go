// Package overpass sends Overpass QL queries through the shared fetch policy
// and returns the raw response.
package overpass

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/JonathonClaypool/MilMap-sub001/internal/fetcher"
)

var ErrEmptyQuery = errors.New("empty overpass query")

type Client struct {
	endpoint string
	fetcher  *fetcher.Fetcher
}

func NewClient(endpoint string, f *fetcher.Fetcher) (*Client, error) {
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("invalid overpass endpoint: %w", err)
	}
	return &Client{endpoint: endpoint, fetcher: f}, nil
}

// ErrNoResult is returned when the client's fetcher treats some statuses as
// absence and the endpoint answered with one. NewComponents disables absence
// statuses for overpass, so there they surface as *fetcher.Error.
var ErrNoResult = fmt.Errorf("%w: overpass endpoint reported no result", fetcher.ErrFetchFailed)

// Query posts query as the "data" form field. Overpass has no notion of an
// absent resource, so an absence status is reported as a failure.
func (c *Client) Query(ctx context.Context, query string) ([]byte, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	body, found, err := c.fetcher.Do(ctx, fetcher.Request{
		Method:      http.MethodPost,
		URL:         c.endpoint,
		Body:        []byte(url.Values{"data": {query}}.Encode()),
		ContentType: "application/x-www-form-urlencoded",
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNoResult
	}
	return body, nil
}
