package license

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// remoteTimeSource fetches a trusted wall-clock sample from an HTTPS
// endpoint's Date response header. Used only as an advisory cross-check
// against local clock rollback; failures leave the check unavailable and
// are never fatal.
type remoteTimeSource struct {
	client *retryablehttp.Client
	url    string
}

func newRemoteTimeSource(url string, timeout time.Duration) *remoteTimeSource {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = time.Second
	client.HTTPClient.Timeout = timeout
	client.Logger = nil

	return &remoteTimeSource{client: client, url: url}
}

// Fetch performs a HEAD request and parses the Date header.
func (r *remoteTimeSource) Fetch(ctx context.Context) (time.Time, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodHead, r.url, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to build time request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return time.Time{}, fmt.Errorf("remote time fetch failed: %w", err)
	}
	defer resp.Body.Close()

	date := resp.Header.Get("Date")
	if date == "" {
		return time.Time{}, fmt.Errorf("remote time response missing Date header")
	}

	sample, err := http.ParseTime(date)
	if err != nil {
		return time.Time{}, fmt.Errorf("remote time header unparseable: %w", err)
	}

	return sample.UTC(), nil
}
