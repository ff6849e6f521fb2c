package avatarapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

type Client struct {
	baseURL    string
	token      string
	source     string
	lang       string
	tag        string
	httpClient *http.Client
	limiter    *rate.Limiter
}

type Options struct {
	BaseURL string
	Token   string
	Source  string
	Lang    string
	Tag     string
	// Timeout bounds every single request. Defaults to 30s.
	Timeout time.Duration
	// RateLimit caps outbound requests per second across all callers. Zero
	// disables the limiter.
	RateLimit float64
	// HTTPClient replaces the default client; Timeout is ignored when set.
	HTTPClient *http.Client
}

func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return &Client{
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		token:      opts.Token,
		source:     opts.Source,
		lang:       opts.Lang,
		tag:        opts.Tag,
		httpClient: httpClient,
		limiter:    limiter,
	}
}

// envelope is the response wrapper used by every endpoint.
type envelope struct {
	Error   bool            `json:"error"`
	Message *string         `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// do executes one request and returns the body of a 2xx response. It never retries.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body io.Reader, contentType string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, transportErr(op, err)
		}
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, transportErr(op, fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportErr(op, fmt.Errorf("failed to execute request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportErr(op, fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			Kind:       KindTransport,
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    truncate(string(respBody), 256),
		}
	}

	return respBody, nil
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, query url.Values, payload interface{}) ([]byte, error) {
	if payload == nil {
		return c.do(ctx, op, method, path, query, nil, "")
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, transportErr(op, fmt.Errorf("failed to marshal request: %w", err))
	}
	return c.do(ctx, op, method, path, query, bytes.NewReader(jsonData), "application/json")
}

// decodeData unwraps the envelope into out. An `"error": true` envelope becomes an
// application failure; a missing or null data field is a decode failure.
func decodeData(op string, body []byte, out interface{}) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return decodeErr(op, fmt.Errorf("failed to decode response: %w, body: %s", err, truncate(string(body), 256)))
	}
	if env.Error {
		msg := ""
		if env.Message != nil {
			msg = *env.Message
		}
		return applicationErr(op, msg)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return decodeErr(op, errors.New("response has no data"))
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return decodeErr(op, fmt.Errorf("failed to decode data: %w", err))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
