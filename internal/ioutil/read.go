package ioutil

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ExcerptLimit bounds how much of an upstream body ends up in an error.
const ExcerptLimit = 1024

// ReadLimited reads up to limit bytes from r and returns the content as a string.
// If reading fails, returns a string describing the read failure instead of silencing
// the error. This is intended for including response bodies in error messages and logs.
func ReadLimited(r io.Reader, limit int64) string {
	body, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return fmt.Sprintf("<unreadable: %v>", err)
	}
	return string(body)
}

// Excerpt summarises a failed upstream response as "status: body".
func Excerpt(resp *http.Response) string {
	if resp == nil {
		return "<no response>"
	}
	body := ""
	if resp.Body != nil {
		body = strings.TrimSpace(ReadLimited(resp.Body, ExcerptLimit))
	}
	if body == "" {
		return resp.Status
	}
	return resp.Status + ": " + body
}
