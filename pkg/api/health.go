package api

import (
	"context"
)

// HealthStatus represents the server health status
type HealthStatus struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// Health checks if the server is healthy
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var health HealthStatus
	if err := c.getJSON(ctx, "/health", &health); err != nil {
		return nil, err
	}
	return &health, nil
}
