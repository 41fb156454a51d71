package lib

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// CreateOrderOpts are the options for creating an order.
type CreateOrderOpts struct {
	// Code is the unique order code. Required.
	Code string
	// ProjectName is the human-readable project name. Required.
	ProjectName string
}

// CreateOrder creates a new order in pending status.
func (c *Client) CreateOrder(ctx context.Context, opts CreateOrderOpts) (*Order, error) {
	body := struct {
		Code        string `json:"code"`
		ProjectName string `json:"project_name"`
	}{Code: opts.Code, ProjectName: opts.ProjectName}

	var order Order
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/orders", body, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrdersOpts are the options for listing orders.
type ListOrdersOpts struct {
	// Status filters by order status. Optional.
	Status OrderStatus
	// Limit caps the number of returned orders, newest first. Optional, 0
	// means no limit.
	Limit int
}

// ListOrders returns orders sorted by creation time descending.
func (c *Client) ListOrders(ctx context.Context, opts ListOrdersOpts) ([]Order, error) {
	q := url.Values{}
	if opts.Status != "" {
		q.Set("status", string(opts.Status))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	path := "/api/v1/orders"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp struct {
		Orders []Order `json:"orders"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Orders, nil
}

// GetOrder returns the order identified by its code or ID.
func (c *Client) GetOrder(ctx context.Context, ref string) (*Order, error) {
	var order Order
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/orders/"+url.PathEscape(ref), nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// DeleteOrderOpts are the options for deleting an order.
type DeleteOrderOpts struct {
	// Force cancels the order first when it is active. Without it, deleting
	// an active order fails with ErrNotValid.
	Force bool
}

// DeleteOrder deletes an order and its progress log.
func (c *Client) DeleteOrder(ctx context.Context, ref string, opts DeleteOrderOpts) error {
	path := "/api/v1/orders/" + url.PathEscape(ref)
	if opts.Force {
		path += "?force=true"
	}
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

// StartOrder starts (or restarts, after failure or cancellation) the
// pipeline for an order. Starting an already active order is a no-op.
func (c *Client) StartOrder(ctx context.Context, ref string) (*Order, error) {
	var order Order
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/orders/"+url.PathEscape(ref)+"/start", nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// CancelOrder cancels an active order. Cancelling a pending or terminal
// order fails with ErrNotValid.
func (c *Client) CancelOrder(ctx context.Context, ref string) (*Order, error) {
	var order Order
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/orders/"+url.PathEscape(ref)+"/cancel", nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// OrderEventsOpts are the options for fetching an order's progress log.
type OrderEventsOpts struct {
	// Stage filters events to a single pipeline stage. Optional.
	Stage string
	// Limit caps the number of returned events, oldest first. Optional, 0
	// means no limit.
	Limit int
}

// OrderEvents returns the order and its persisted progress events in append
// order.
func (c *Client) OrderEvents(ctx context.Context, ref string, opts OrderEventsOpts) (*Order, []ProgressEvent, error) {
	q := url.Values{}
	if opts.Stage != "" {
		q.Set("stage", opts.Stage)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	path := fmt.Sprintf("/api/v1/orders/%s/events", url.PathEscape(ref))
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp struct {
		Order  Order           `json:"order"`
		Events []ProgressEvent `json:"events"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, nil, err
	}
	return &resp.Order, resp.Events, nil
}
