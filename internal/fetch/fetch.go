// Package fetch retrieves raw documents from remote locators.
//
// The fetcher is deliberately dumb: it validates the locator, pulls the
// bytes, and rejects payloads that are too small to be a real document.
// Everything smarter (parsing, chunking) belongs to the ingestion pipeline.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

var (
	// ErrFetch indicates the document could not be retrieved.
	ErrFetch = errors.New("document fetch failed")

	// ErrInvalidLocator indicates the locator is not an http(s) URL.
	ErrInvalidLocator = errors.New("invalid document locator")

	// ErrPayloadTooSmall indicates the payload is below the minimum
	// plausible document size.
	ErrPayloadTooSmall = errors.New("payload too small to be a valid document")
)

// minPayloadBytes rejects empty or truncated downloads before they reach
// the parser. 200 bytes is below any real document the service ingests.
const minPayloadBytes = 200

// maxPayloadBytes caps the download size to protect memory.
const maxPayloadBytes = 64 << 20 // 64 MiB

// defaultTimeout bounds a fetch when the caller's context carries no deadline.
const defaultTimeout = 30 * time.Second

// Client fetches documents over HTTP.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a fetch client. A nil httpClient gets a client with
// the default timeout.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{httpClient: httpClient}
}

// Fetch downloads the document at locator and returns its raw bytes.
// The locator must be an absolute http or https URL.
func (c *Client) Fetch(ctx context.Context, locator string) ([]byte, error) {
	u, err := url.Parse(locator)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLocator, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q, want http or https", ErrInvalidLocator, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidLocator)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrFetch, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrFetch, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrFetch, err)
	}
	if len(body) > maxPayloadBytes {
		return nil, fmt.Errorf("%w: payload exceeds %d bytes", ErrFetch, maxPayloadBytes)
	}
	if len(body) < minPayloadBytes {
		return nil, fmt.Errorf("%w: got %d bytes", ErrPayloadTooSmall, len(body))
	}

	return body, nil
}
