package crawler

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/liliang-cn/sitebot/internal/domain"
)

// Normalize returns the canonical form of an absolute http(s) URL: lowercase
// scheme and host, no default port, no fragment, no user info and no trailing
// slash. The query is kept.
func Normalize(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: invalid url %q: %v", domain.ErrInvalidRequest, raw, err)
	}
	return normalizeURL(u)
}

func normalizeURL(u *url.URL) (string, error) {
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: unsupported url scheme %q", domain.ErrInvalidRequest, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("%w: url %q has no host", domain.ErrInvalidRequest, u.String())
	}

	n := *u
	n.Scheme = scheme
	n.User = nil
	n.Fragment = ""
	n.RawFragment = ""

	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	switch {
	case port != "":
		n.Host = net.JoinHostPort(host, port)
	case strings.Contains(host, ":"):
		n.Host = "[" + host + "]"
	default:
		n.Host = host
	}

	n.Path = strings.TrimRight(n.Path, "/")
	n.RawPath = strings.TrimRight(n.RawPath, "/")
	return n.String(), nil
}

// SameSite reports whether two URLs belong to the same registered domain
// (eTLD+1), so www.example.com and blog.example.com match. IP addresses and
// hosts without a public suffix only match themselves.
func SameSite(a, b *url.URL) bool {
	ha, hb := strings.ToLower(a.Hostname()), strings.ToLower(b.Hostname())
	if ha == hb {
		return true
	}
	ra, okA := registeredDomain(ha)
	rb, okB := registeredDomain(hb)
	return okA && okB && ra == rb
}

func registeredDomain(host string) (string, bool) {
	if net.ParseIP(host) != nil {
		return "", false
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return "", false
	}
	return d, true
}
