package tsa

import (
	"bytes"
	"context"
	"crypto"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	mediaTypeQuery = "application/timestamp-query"
	mediaTypeReply = "application/timestamp-reply"

	httpTimeout = 10 * time.Second
	maxAttempts = 3
)

// Client obtains timestamp tokens from an authority.
type Client interface {
	Timestamp(ctx context.Context, digest []byte, alg crypto.Hash) (*Token, error)
}

// ResponderClient calls an in-process Responder.
type ResponderClient struct {
	Responder *Responder
}

// Timestamp issues a token directly.
func (c *ResponderClient) Timestamp(ctx context.Context, digest []byte, alg crypto.Hash) (*Token, error) {
	return c.Responder.Timestamp(ctx, digest, alg)
}

// HTTPClient calls a remote RFC 3161 endpoint.
type HTTPClient struct {
	URL    string
	Client *http.Client
}

// NewHTTPClient builds a client with the standard 10 second timeout.
func NewHTTPClient(url string) *HTTPClient {
	return &HTTPClient{
		URL:    url,
		Client: &http.Client{Timeout: httpTimeout},
	}
}

// Timestamp sends a timestamp-query and decodes the reply.
func (c *HTTPClient) Timestamp(ctx context.Context, digest []byte, alg crypto.Hash) (*Token, error) {
	req, err := NewRequest(digest, alg, nil, true)
	if err != nil {
		return nil, err
	}
	der, err := req.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(der))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mediaTypeQuery)

	httpResp, err := c.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("timestamp request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("timestamp authority returned status %d", httpResp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	resp, err := ParseResponse(body)
	if err != nil {
		return nil, err
	}
	if !resp.IsGranted() {
		return nil, fmt.Errorf("timestamp request rejected: %s", resp.FailureString())
	}
	return resp.Token, nil
}

// Timestamp obtains a token through client, retrying transient failures
// up to three attempts with exponential backoff. Malformed requests and
// authority configuration failures are not retried. Exhausted retries
// surface ErrTransientAuthority.
func Timestamp(ctx context.Context, client Client, digest []byte, alg crypto.Hash) (*Token, error) {
	operation := func() (*Token, error) {
		token, err := client.Timestamp(ctx, digest, alg)
		if err != nil {
			if errors.Is(err, ErrMalformedRequest) || errors.Is(err, ErrAuthorityUnavailable) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return token, nil
	}

	token, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxAttempts),
	)
	if err != nil {
		if errors.Is(err, ErrMalformedRequest) || errors.Is(err, ErrAuthorityUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrTransientAuthority, err)
	}
	return token, nil
}
