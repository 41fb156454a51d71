package lib

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ptmflow/ptmflow/internal/log"
)

// Subscription delivers an order's live progress events. A subscription
// transparently reconnects with a fixed backoff when the stream drops, so
// duplicate events are possible across reconnects. Use the event timestamps
// (or Watch, which merges for you) to deduplicate.
type Subscription struct {
	events <-chan ProgressEvent
	cancel context.CancelFunc
}

// Events returns the channel live events are delivered on. The channel is
// closed when the subscription's context ends or Close is called.
func (s *Subscription) Events() <-chan ProgressEvent { return s.events }

// Close terminates the subscription and closes the events channel.
func (s *Subscription) Close() { s.cancel() }

// Subscribe opens a live event stream for an order. The first connection
// attempt is made synchronously so unknown orders fail fast with ErrNotFound.
func (c *Client) Subscribe(ctx context.Context, ref string) (*Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)

	events := make(chan ProgressEvent, 64)
	logger := c.logger.WithValues(log.Kv{"order": ref})

	conn, err := c.openStream(ctx, ref)
	if err != nil {
		cancel()
		return nil, err
	}

	go func() {
		defer close(events)
		for {
			err := c.consumeStream(ctx, conn, events)
			if ctx.Err() != nil {
				return
			}
			logger.Warningf("Stream dropped (%s), reconnecting in %s", err, c.reconnectBackoff)

			for {
				select {
				case <-ctx.Done():
					return
				case <-time.After(c.reconnectBackoff):
				}

				conn, err = c.openStream(ctx, ref)
				if err == nil {
					break
				}
				if ctx.Err() != nil || errors.Is(err, ErrNotFound) {
					return
				}
				logger.Warningf("Stream reconnect failed (%s), retrying in %s", err, c.reconnectBackoff)
			}
		}
	}()

	return &Subscription{events: events, cancel: cancel}, nil
}

// openStream dials the SSE endpoint and validates the response.
func (c *Client) openStream(ctx context.Context, ref string) (*http.Response, error) {
	path := c.baseURL + "/api/v1/stream/orders/" + url.PathEscape(ref)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stream request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, apiErrorFromResponse(resp)
	}

	return resp, nil
}

// consumeStream reads SSE frames until the connection drops or goes silent
// longer than the idle timeout. Ping frames only reset the idle timer.
func (c *Client) consumeStream(ctx context.Context, resp *http.Response, events chan<- ProgressEvent) error {
	defer resp.Body.Close()

	// The server pings periodically, so a silent connection is a dead one.
	// Closing the body is the only way to unblock the scanner.
	idle := time.AfterFunc(c.idleTimeout, func() { resp.Body.Close() })
	defer idle.Stop()

	var eventType string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		idle.Reset(c.idleTimeout)
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			eventType = strings.TrimPrefix(line, "event: ")

		case strings.HasPrefix(line, "data: "):
			if eventType != "progress" {
				continue
			}
			var event ProgressEvent
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
				c.logger.Errorf("Could not decode stream event: %s", err)
				continue
			}
			select {
			case events <- event:
			case <-ctx.Done():
				return ctx.Err()
			}

		case line == "":
			eventType = ""
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}
	return errors.New("stream closed by server")
}
