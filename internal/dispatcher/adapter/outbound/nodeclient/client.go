package nodeclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/anthanhphan/go-byzantine-lb/internal/dispatcher/port"
)

// Client forwards requests to a node's /process endpoint. There is no retry
// and no per-node state here: a failed outcome lowers the node's trust
// weight on the next refresh cycle, which is the fault-tolerance strategy.
type Client struct {
	http *http.Client
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		http: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Process(ctx context.Context, addr string) (port.ProcessResult, error) {
	url := fmt.Sprintf("http://%s/process", addr)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return port.ProcessResult{}, fmt.Errorf("failed to build request for %s: %w", addr, err)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	latency := time.Since(start)
	if err != nil {
		return port.ProcessResult{Latency: latency}, err
	}
	defer func() { _ = resp.Body.Close() }()

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	return port.ProcessResult{
		StatusCode: resp.StatusCode,
		Latency:    latency,
	}, nil
}
