package plugin

import (
	"context"
	"io"
	"net/http"
	"time"
)

// UserAgent is sent with every plugin request.
const UserAgent = "campus-feed/1.0 (+https://github.com/DeafMist/campus-feed)"

const maxBodyBytes = 16 << 20

// NewHTTPClient returns the client plugins share.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// Fetch GETs url and returns its body. Transport failures and non-2xx
// statuses are request errors attributed to plugin.
func Fetch(ctx context.Context, client *http.Client, plugin, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, RequestError(plugin, err, "build request %s", url)
	}
	req.Header.Set("User-Agent", UserAgent)

	res, err := client.Do(req)
	if err != nil {
		return nil, RequestError(plugin, err, "get %s", url)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, RequestError(plugin, nil, "get %s: %s", url, res.Status)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, RequestError(plugin, err, "read %s", url)
	}
	return body, nil
}
