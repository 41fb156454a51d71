package lib

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ptmflow/ptmflow/internal/log"
)

// Config is the client configuration.
type Config struct {
	// ServerURL is the base URL of the ptmflow server, e.g.
	// "http://localhost:8080". Required.
	ServerURL string
	// HTTPClient is the HTTP client used for API calls. Optional, defaults to
	// a client with a 30s timeout. Streaming requests use a copy without the
	// timeout.
	HTTPClient *http.Client
	// ReconnectBackoff is the fixed wait between stream reconnect attempts.
	// Optional, defaults to 2s.
	ReconnectBackoff time.Duration
	// PollInterval is the reconciliation poll interval used by Watch.
	// Optional, defaults to 10s.
	PollInterval time.Duration
	// StreamIdleTimeout is the maximum silence on a stream (pings included)
	// before the connection is considered dead and reconnected. Optional,
	// defaults to 60s.
	StreamIdleTimeout time.Duration
	// Logger is the logger used by the client. Optional, defaults to no
	// logging.
	Logger log.Logger
}

func (c *Config) defaults() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server URL is required")
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid server URL: scheme must be http or https")
	}
	c.ServerURL = strings.TrimRight(c.ServerURL, "/")

	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	if c.ReconnectBackoff == 0 {
		c.ReconnectBackoff = 2 * time.Second
	}

	if c.PollInterval == 0 {
		c.PollInterval = 10 * time.Second
	}

	if c.StreamIdleTimeout == 0 {
		c.StreamIdleTimeout = 60 * time.Second
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"lib": "ptmflow"})

	return nil
}

// Client is the ptmflow API client. It is safe for concurrent use.
type Client struct {
	baseURL          string
	httpc            *http.Client
	streamc          *http.Client
	reconnectBackoff time.Duration
	pollInterval     time.Duration
	idleTimeout      time.Duration
	logger           log.Logger
}

// New returns a new API client.
func New(config Config) (*Client, error) {
	if err := config.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Streaming connections stay open indefinitely, so they need a client
	// without a global timeout.
	streamc := *config.HTTPClient
	streamc.Timeout = 0

	return &Client{
		baseURL:          config.ServerURL,
		httpc:            config.HTTPClient,
		streamc:          &streamc,
		reconnectBackoff: config.ReconnectBackoff,
		pollInterval:     config.PollInterval,
		idleTimeout:      config.StreamIdleTimeout,
		logger:           config.Logger,
	}, nil
}

// doJSON performs a request and decodes the JSON response into out (when out
// is not nil).
func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("could not marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return apiErrorFromResponse(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("could not decode response: %w", err)
		}
	}

	return nil
}

// apiErrorFromResponse maps an HTTP error response to the SDK's sentinel
// errors, keeping the server's message.
func apiErrorFromResponse(resp *http.Response) error {
	msg := http.StatusText(resp.StatusCode)
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&payload); err == nil && payload.Error != "" {
		msg = payload.Error
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", msg, ErrNotFound)
	case http.StatusConflict:
		return fmt.Errorf("%s: %w", msg, ErrAlreadyExists)
	case http.StatusBadRequest:
		return fmt.Errorf("%s: %w", msg, ErrNotValid)
	default:
		return fmt.Errorf("server error (HTTP %d): %s", resp.StatusCode, msg)
	}
}
