package promo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// HTTPSource fetches the promo catalog from a remote endpoint returning a
// JSON array of codes. Every fetch carries a bounded timeout so a slow or
// unreachable backend can never block a redemption flow.
type HTTPSource struct {
	url     string
	client  *http.Client
	timeout time.Duration
}

// HTTPSourceOption configures an HTTPSource.
type HTTPSourceOption func(*HTTPSource)

// WithHTTPClient sets a custom HTTP client, ignoring nil.
func WithHTTPClient(client *http.Client) HTTPSourceOption {
	return func(s *HTTPSource) {
		if client != nil {
			s.client = client
		}
	}
}

// WithTimeout bounds a single catalog fetch.
func WithTimeout(d time.Duration) HTTPSourceOption {
	return func(s *HTTPSource) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewHTTPSource returns a Source fetching the catalog from url.
func NewHTTPSource(url string, opts ...HTTPSourceOption) *HTTPSource {
	s := &HTTPSource{
		url:     url,
		client:  http.DefaultClient,
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load fetches and decodes the catalog, re-keyed by canonical code.
func (s *HTTPSource) Load(ctx context.Context) (map[string]Code, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadCatalog, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadCatalog, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Join(ErrFailedToLoadCatalog,
			fmt.Errorf("unexpected status %d from %s", resp.StatusCode, s.url))
	}

	var list []wireCode
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, errors.Join(ErrFailedToLoadCatalog, err)
	}

	codes := make(map[string]Code, len(list))
	for _, entry := range list {
		code := entry.toCode()
		code.Code = Canonical(code.Code)
		codes[code.Code] = code
	}
	return codes, nil
}
