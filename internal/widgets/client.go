package widgets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dgellow/vaultlink/internal/ioutil"
)

// ErrUpstream is returned when a widget backend answers with a non-2xx status
var ErrUpstream = errors.New("widget backend error")

// errorBody is the error shape the widget backends use
type errorBody struct {
	Error string `json:"error"`
}

type backend struct {
	url        string
	httpClient *http.Client
}

func newBackend(url string, httpClient *http.Client) backend {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return backend{url: url, httpClient: httpClient}
}

func (b backend) do(ctx context.Context, method, target string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("request timed out")
		}
		return fmt.Errorf("cannot reach %s: %w", req.URL.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorFromResponse(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("invalid response from %s: %w", req.URL.Host, err)
	}
	return nil
}

// errorFromResponse prefers the backend's own error message over the raw body
func errorFromResponse(resp *http.Response) error {
	raw := strings.TrimSpace(ioutil.ReadLimited(resp.Body, ioutil.ExcerptLimit))
	var e errorBody
	if err := json.Unmarshal([]byte(raw), &e); err == nil && e.Error != "" {
		return &UpstreamError{Status: resp.StatusCode, Message: e.Error}
	}
	return &UpstreamError{Status: resp.StatusCode, Body: raw}
}

// UpstreamError describes a non-2xx answer from a widget backend
type UpstreamError struct {
	Status int
	// Message is the backend's error field, when it sent one
	Message string
	Body    string
}

func (e *UpstreamError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Body)
}

func (e *UpstreamError) Unwrap() error {
	return ErrUpstream
}
