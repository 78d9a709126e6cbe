package urlutil

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// HostedBase turns a bare hosted-UI domain such as
// "auth.example.com" into an https base URL. Values that already carry a
// scheme are returned unchanged, minus any trailing slash.
func HostedBase(domain string) (string, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return "", fmt.Errorf("empty domain")
	}
	if !strings.Contains(domain, "://") {
		domain = "https://" + domain
	}
	u, err := url.Parse(domain)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("domain %q has no host", domain)
	}
	return strings.TrimSuffix(u.String(), "/"), nil
}

// JoinPath safely joins URL paths, handling trailing and leading slashes correctly
func JoinPath(base string, paths ...string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}

	allPaths := append([]string{u.Path}, paths...)
	u.Path = path.Join(allPaths...)

	if len(paths) > 0 && strings.HasSuffix(paths[len(paths)-1], "/") {
		u.Path += "/"
	}

	return u.String(), nil
}

// WithoutParams returns a copy of u with the named query parameters removed.
// Path, fragment and every other parameter are preserved.
func WithoutParams(u *url.URL, names ...string) *url.URL {
	clean := *u
	q := u.Query()
	for _, name := range names {
		q.Del(name)
	}
	clean.RawQuery = q.Encode()
	return &clean
}

// PathAndQuery renders the request-relative form of u, suitable for a
// same-origin history entry.
func PathAndQuery(u *url.URL) string {
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	if u.Fragment != "" {
		p += "#" + u.EscapedFragment()
	}
	return p
}
