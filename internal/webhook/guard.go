package webhook

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// lookupIP is swapped in tests to avoid real DNS.
var lookupIP = net.LookupIP

// ValidateURL rejects webhook destinations the server must not call: the URL
// is caller-supplied and the server makes outbound requests to it, so this is
// the SSRF guard. Non-HTTPS schemes, *.internal hostnames, and hosts that are
// (or resolve to) loopback, link-local, or private addresses are all refused
// before any delivery attempt.
func ValidateURL(raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("unparseable webhook URL: %w", err)
	}
	if parsed.Scheme != "https" {
		return fmt.Errorf("webhook URL must use https, got %q", parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("webhook URL has no host")
	}
	if strings.HasSuffix(strings.ToLower(host), ".internal") {
		return fmt.Errorf("webhook host %q is on an internal domain", host)
	}

	if ip := net.ParseIP(host); ip != nil {
		return blockedIP(host, ip)
	}

	ips, err := lookupIP(host)
	if err != nil {
		return fmt.Errorf("webhook host %q did not resolve: %w", host, err)
	}
	for _, ip := range ips {
		if err := blockedIP(host, ip); err != nil {
			return err
		}
	}
	return nil
}

func blockedIP(host string, ip net.IP) error {
	switch {
	case ip.IsLoopback():
		return fmt.Errorf("webhook host %q resolves to a loopback address", host)
	case ip.IsPrivate():
		return fmt.Errorf("webhook host %q resolves to a private address", host)
	case ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast():
		return fmt.Errorf("webhook host %q resolves to a link-local address", host)
	case ip.IsUnspecified():
		return fmt.Errorf("webhook host %q resolves to an unspecified address", host)
	}
	return nil
}
