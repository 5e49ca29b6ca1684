package integrations

import (
	"context"
	"fmt"
	"net/url"
)

// WakaTimeStats forwards the public last-7-days coding stats for a
// username verbatim.
func (c *Client) WakaTimeStats(ctx context.Context, username string) ([]byte, error) {
	statsURL := fmt.Sprintf("%s/users/%s/stats/last_7_days", c.wakaTimeBaseURL, url.PathEscape(username))
	return c.get(ctx, statsURL)
}
