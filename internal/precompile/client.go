package precompile

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"git.home.luguber.info/inful/assetcompiler/internal/foundation/errors"
	"git.home.luguber.info/inful/assetcompiler/internal/version"
)

// Getter fetches a document over HTTP.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Fetcher streams a binary resource over HTTP.
type Fetcher interface {
	Fetch(ctx context.Context, url string, w io.Writer) error
}

// Client is the HTTP transport of the adapters. Credentials embedded in a URL's user info are
// sent as basic auth by net/http. There is no retry: a failed request is a miss for this run.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a Client. A nil httpClient uses a client with a 60 second timeout.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{httpClient: httpClient}
}

// Get returns the response body of a JSON API request.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.do(ctx, url, "application/json")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NetworkError("failed to read response").
			WithCause(err).
			WithContext("url", redact(url)).
			Build()
	}
	return body, nil
}

// Fetch copies the response body of a binary download into w.
func (c *Client) Fetch(ctx context.Context, url string, w io.Writer) error {
	resp, err := c.do(ctx, url, "application/octet-stream")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return errors.NetworkError("failed to download").
			WithCause(err).
			WithContext("url", redact(url)).
			Build()
	}
	return nil
}

func (c *Client) do(ctx context.Context, url, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, errors.NetworkError("failed to create request").
			WithCause(err).
			WithContext("url", redact(url)).
			Build()
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.NetworkError("failed to execute request").
			WithCause(err).
			WithContext("url", redact(url)).
			Build()
	}

	if resp.StatusCode >= 400 {
		defer func() { _ = resp.Body.Close() }()
		limitedBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		bodyStr := strings.ReplaceAll(string(limitedBody), "\n", " ")

		category := errors.CategoryNetwork
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			category = errors.CategoryAuth
		case http.StatusNotFound:
			category = errors.CategoryNotFound
		}
		return nil, errors.NewError(category, fmt.Sprintf("HTTP error: %s", resp.Status)).
			WithContext("code", resp.StatusCode).
			WithContext("url", redact(url)).
			WithContext("response", bodyStr).
			Build()
	}
	return resp, nil
}
