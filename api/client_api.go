// Package api - API-Methoden des Clients.
// Dieses Modul enthaelt die Methoden fuer Laeufe, Skalare und Checkpoints.

package api

import (
	"context"
	"net/http"
	"net/url"
)

// Runs lists tracked runs, newest first. A non-empty sweep restricts the
// result to runs of that sweep.
func (c *Client) Runs(ctx context.Context, sweep string) (*ListRunsResponse, error) {
	var query url.Values
	if sweep != "" {
		query = url.Values{"sweep": {sweep}}
	}

	var resp ListRunsResponse
	if err := c.do(ctx, http.MethodGet, "/api/runs", query, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Run obtains a single run.
func (c *Client) Run(ctx context.Context, id string) (*Run, error) {
	var resp Run
	if err := c.do(ctx, http.MethodGet, "/api/runs/"+url.PathEscape(id), nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Scalars obtains the logged values of a run. An empty key returns all keys.
func (c *Client) Scalars(ctx context.Context, id, key string) (*ScalarsResponse, error) {
	var query url.Values
	if key != "" {
		query = url.Values{"key": {key}}
	}

	var resp ScalarsResponse
	if err := c.do(ctx, http.MethodGet, "/api/runs/"+url.PathEscape(id)+"/scalars", query, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Checkpoints lists the model artifacts a run has saved.
func (c *Client) Checkpoints(ctx context.Context, id string) (*CheckpointsResponse, error) {
	var resp CheckpointsResponse
	if err := c.do(ctx, http.MethodGet, "/api/runs/"+url.PathEscape(id)+"/checkpoints", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Heartbeat checks if the server has started and is responsive; if yes, it
// returns nil, otherwise an error.
func (c *Client) Heartbeat(ctx context.Context) error {
	return c.do(ctx, http.MethodHead, "/", nil, nil, nil)
}
