package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/psantana5/regionocr/pkg/retry"
	tlsutil "github.com/psantana5/regionocr/pkg/tls"
	"github.com/psantana5/regionocr/pkg/tracing"
)

// APIError is a non-2xx answer from the server
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Detail)
}

// Temporary reports answers from an overloaded or restarting server
func (e *APIError) Temporary() bool {
	switch e.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Client talks to the regionocr HTTP API
type Client struct {
	baseURL string
	http    *http.Client
	retry   retry.Config
}

// NewClient creates a client for baseURL using hc (http.DefaultClient if nil)
func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
		retry:   retry.DefaultConfig(),
	}
}

// newClientFromFlags builds a client from the global flags
func newClientFromFlags() (*Client, error) {
	hc := &http.Client{Timeout: timeout}
	if strings.HasPrefix(GetServerURL(), "https://") {
		tlsConfig, err := tlsutil.LoadClientConfig(caFile, certFile, keyFile, insecure)
		if err != nil {
			return nil, err
		}
		hc.Transport = &http.Transport{TLSClientConfig: tlsConfig}
	}
	return NewClient(GetServerURL(), hc), nil
}

// Do sends a request and decodes a JSON answer into out when out is non-nil.
// Transient failures are retried; POST requests are only retried when the
// connection was refused, since the server may already have acted on them.
func (c *Client) Do(ctx context.Context, method, path string, body []byte, contentType string, want int, out interface{}) error {
	policy := c.retry
	if method == http.MethodPost {
		policy.Retryable = retry.ConnectOnly
	}

	return retry.Do(ctx, policy, func() error {
		resp, err := c.send(ctx, method, path, body, contentType)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode != want {
			return &APIError{StatusCode: resp.StatusCode, Detail: detailOf(data)}
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return &retry.Permanent{Err: fmt.Errorf("failed to parse response: %w", err)}
		}
		return nil
	})
}

// Download streams the body of a GET into w
func (c *Client) Download(ctx context.Context, path string, w io.Writer) (int64, error) {
	var n int64
	err := retry.Do(ctx, c.retry, func() error {
		resp, err := c.send(ctx, http.MethodGet, path, nil, "")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			data, _ := io.ReadAll(resp.Body)
			return &APIError{StatusCode: resp.StatusCode, Detail: detailOf(data)}
		}
		n, err = io.Copy(w, resp.Body)
		if err != nil {
			// w may already hold a partial body
			return &retry.Permanent{Err: fmt.Errorf("failed to read archive: %w", err)}
		}
		return nil
	})
	return n, err
}

func (c *Client) send(ctx context.Context, method, path string, body []byte, contentType string) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, &retry.Permanent{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	tracing.InjectHTTPHeaders(ctx, req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	return resp, nil
}

// detailOf extracts {"detail": ...} from an error body, or returns it verbatim
func detailOf(body []byte) string {
	var e struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Detail != "" {
		return e.Detail
	}
	return strings.TrimSpace(string(body))
}
