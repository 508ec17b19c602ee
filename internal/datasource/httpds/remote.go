package httpds

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// IsURL reports whether path names an http or https resource.
func IsURL(path string) bool {
	p := strings.ToLower(path)
	return strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://")
}

// Remote is a file source served over HTTP.
type Remote struct {
	url    string
	client *Client
}

// NewRemote binds url to c.
func NewRemote(url string, c *Client) *Remote { return &Remote{url: url, client: c} }

// Path returns the URL.
func (r *Remote) Path() string { return r.url }

// Open GETs the resource and returns its body. 404 and 410 wrap
// os.ErrNotExist so optional sources behave like a missing local file.
func (r *Remote) Open(ctx context.Context) (io.ReadCloser, error) {
	resp, err := r.client.Get(ctx, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", r.url, err)
	}
	if err := checkStatus(resp, r.url); err != nil {
		_ = resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

// Peek returns at most n leading bytes of the resource. A Range header is sent
// but the result is capped client-side too.
func (r *Remote) Peek(ctx context.Context, n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("httpds: n must be > 0")
	}
	h := make(http.Header)
	h.Set("Range", fmt.Sprintf("bytes=0-%d", n-1))
	resp, err := r.client.Get(ctx, r.url, h)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", r.url, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, r.url); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(io.LimitReader(resp.Body, int64(n))); err != nil {
		return nil, fmt.Errorf("read %s: %w", r.url, err)
	}
	return buf.Bytes(), nil
}

func checkStatus(resp *http.Response, url string) error {
	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fmt.Errorf("get %s: %s: %w", url, resp.Status, os.ErrNotExist)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("get %s: unexpected status %s", url, resp.Status)
	}
	return nil
}
