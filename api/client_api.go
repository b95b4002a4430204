// client_api.go - API-Methoden des Clients, eine pro Server-Route
package api

import (
	"context"
	"net/http"
)

// Heartbeat checks if the server has started and is responsive; if yes, it
// returns nil, otherwise an error.
func (c *Client) Heartbeat(ctx context.Context) error {
	return c.do(ctx, http.MethodHead, "/", nil, nil)
}

// ListBackends lists the backends the server can create, in selection order.
func (c *Client) ListBackends(ctx context.Context) (*ListBackendsResponse, error) {
	var lr ListBackendsResponse
	if err := c.do(ctx, http.MethodGet, "/api/backends", nil, &lr); err != nil {
		return nil, err
	}
	return &lr, nil
}

// CreateInstance creates a backend instance on the server.
func (c *Client) CreateInstance(ctx context.Context, req *CreateInstanceRequest) (*InstanceInfo, error) {
	var info InstanceInfo
	if err := c.do(ctx, http.MethodPost, "/api/instances", req, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ListInstances lists live backend instances.
func (c *Client) ListInstances(ctx context.Context) (*ListInstancesResponse, error) {
	var lr ListInstancesResponse
	if err := c.do(ctx, http.MethodGet, "/api/instances", nil, &lr); err != nil {
		return nil, err
	}
	return &lr, nil
}

// DeleteInstance closes a backend instance.
func (c *Client) DeleteInstance(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/instances/"+id, nil, nil)
}

// Evaluate runs one batch of positions on an instance.
func (c *Client) Evaluate(ctx context.Context, req *EvaluateRequest) (*EvaluateResponse, error) {
	var resp EvaluateResponse
	if err := c.do(ctx, http.MethodPost, "/api/evaluate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Version returns the version of the server.
func (c *Client) Version(ctx context.Context) (string, error) {
	var version struct {
		Version string `json:"version"`
	}

	if err := c.do(ctx, http.MethodGet, "/api/version", nil, &version); err != nil {
		return "", err
	}

	return version.Version, nil
}
