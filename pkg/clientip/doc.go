// Package clientip extracts client IP addresses from HTTP requests.
//
// GetIP returns the directly connected peer taken from RemoteAddr. It is the
// only safe choice when the server is reachable without a proxy, because the
// forwarding headers are plain client input.
//
// GetForwardedIP honors proxy headers in this order:
//  1. CF-Connecting-IP (Cloudflare)
//  2. DO-Connecting-IP (DigitalOcean)
//  3. X-Forwarded-For (leftmost entry)
//  4. X-Real-IP (nginx and other proxies)
//  5. RemoteAddr (direct connection)
//
// Every candidate is parsed and normalized with net.ParseIP. Invalid values
// and the unspecified address 0.0.0.0 are skipped. When nothing valid is
// found, the raw RemoteAddr is returned.
//
// Pick GetForwardedIP only for requests coming from a known proxy:
//
//	proxies, err := clientip.ParsePrefixes("10.0.0.0/8, 192.168.1.5")
//	key := clientip.GetIP(r)
//	if clientip.FromTrustedProxy(r, proxies) {
//		key = clientip.GetForwardedIP(r)
//	}
//	res, err := limiter.Check(r.Context(), key, r.URL.Path)
package clientip
