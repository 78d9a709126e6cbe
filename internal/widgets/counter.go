package widgets

import (
	"context"
	"net/http"
)

// CounterClient reads the page visit counter
type CounterClient struct {
	backend
}

func NewCounterClient(url string, httpClient *http.Client) *CounterClient {
	return &CounterClient{backend: newBackend(url, httpClient)}
}

type counterResponse struct {
	ViewCount int64 `json:"view_count"`
}

// Views returns the current view count. The backend increments it on read.
func (c *CounterClient) Views(ctx context.Context) (int64, error) {
	var out counterResponse
	if err := c.do(ctx, http.MethodGet, c.url, nil, &out); err != nil {
		return 0, err
	}
	return out.ViewCount, nil
}
