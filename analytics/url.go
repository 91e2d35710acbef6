package analytics

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"newsletter/pkg/errutil"
)

var ErrInvalidURL = errutil.BadRequestError(errors.New("invalid tracked url"))

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// NormalizeURL canonicalizes an absolute http(s) link so that spellings of
// the same target share one link click record. The query is kept as is.
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if _, ok := defaultPorts[u.Scheme]; !ok || u.Host == "" {
		return "", fmt.Errorf("%w: %q is not an absolute http(s) url", ErrInvalidURL, raw)
	}

	host, port := strings.ToLower(u.Hostname()), u.Port()
	if port == "" || port == defaultPorts[u.Scheme] {
		u.Host = host
		if strings.Contains(host, ":") {
			u.Host = "[" + host + "]"
		}
	} else {
		u.Host = strings.ToLower(u.Host)
	}

	u.Fragment = ""
	u.RawFragment = ""

	if len(u.Path) > 1 && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimRight(u.Path, "/")
		if u.Path == "" {
			u.Path = "/"
		}
		u.RawPath = ""
	}

	return u.String(), nil
}
