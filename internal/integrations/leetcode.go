package integrations

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// LeetCodeStats forwards the solve-count stats for a username. The stats
// API reports unknown users inside a 200 body, which maps to a 404 here.
func (c *Client) LeetCodeStats(ctx context.Context, username string) ([]byte, error) {
	body, err := c.get(ctx, fmt.Sprintf("%s/%s", c.leetCodeBaseURL, url.PathEscape(username)))
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := decode(body, &envelope); err != nil {
		return nil, err
	}
	if envelope.Status == "error" {
		return nil, &UpstreamError{Status: http.StatusNotFound, Message: envelope.Message}
	}
	return body, nil
}
