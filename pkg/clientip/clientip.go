package clientip

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Header names checked by GetForwardedIP, in priority order.
const (
	HeaderCFConnectingIP = "CF-Connecting-IP"
	HeaderDOConnectingIP = "DO-Connecting-IP"
	HeaderXForwardedFor  = "X-Forwarded-For"
	HeaderXRealIP        = "X-Real-IP"
)

// GetIP returns the address of the directly connected peer. Forwarding
// headers are ignored since any client can set them.
func GetIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := normalize(host); ip != "" {
		return ip
	}

	return r.RemoteAddr
}

// GetForwardedIP returns the client address reported by the proxy headers,
// falling back to GetIP. Call it only for requests that arrived through a
// proxy that overwrites those headers.
func GetForwardedIP(r *http.Request) string {
	for _, h := range []string{HeaderCFConnectingIP, HeaderDOConnectingIP} {
		if ip := normalize(r.Header.Get(h)); ip != "" {
			return ip
		}
	}

	if xff := r.Header.Get(HeaderXForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := normalize(first); ip != "" {
			return ip
		}
	}

	if ip := normalize(r.Header.Get(HeaderXRealIP)); ip != "" {
		return ip
	}

	return GetIP(r)
}

// FromTrustedProxy reports whether the peer address of r falls inside one of
// the given prefixes.
func FromTrustedProxy(r *http.Request, proxies []netip.Prefix) bool {
	if len(proxies) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(GetIP(r))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range proxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ParsePrefixes parses a comma separated list of CIDR blocks or bare
// addresses. Empty entries are skipped.
func ParsePrefixes(list string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, s := range strings.Split(list, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if !strings.Contains(s, "/") {
			addr, err := netip.ParseAddr(s)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", s, err)
			}
			addr = addr.Unmap()
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", s, err)
		}
		out = append(out, p.Masked())
	}
	return out, nil
}

// normalize parses s and returns its canonical form, or "" when s is not a usable address.
func normalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	ip := net.ParseIP(s)
	if ip == nil || ip.IsUnspecified() {
		return ""
	}
	return ip.String()
}
