package security

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIPResolver picks the address a request is attributed to. Forwarding
// headers are honoured only when the peer is a trusted proxy.
type ClientIPResolver struct {
	trusted []netip.Prefix
}

// NewClientIPResolver accepts IP addresses and CIDR ranges
func NewClientIPResolver(proxies []string) (*ClientIPResolver, error) {
	r := &ClientIPResolver{trusted: make([]netip.Prefix, 0, len(proxies))}
	for _, proxy := range proxies {
		proxy = strings.TrimSpace(proxy)
		if proxy == "" {
			continue
		}
		if strings.Contains(proxy, "/") {
			prefix, err := netip.ParsePrefix(proxy)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", proxy, err)
			}
			r.trusted = append(r.trusted, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", proxy, err)
		}
		addr = addr.Unmap()
		r.trusted = append(r.trusted, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return r, nil
}

// ClientIP returns the peer host, or for a trusted peer the nearest
// untrusted X-Forwarded-For hop (falling back to X-Real-IP)
func (r *ClientIPResolver) ClientIP(req *http.Request) string {
	peer, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		peer = req.RemoteAddr
	}
	if r == nil || !r.Trusted(peer) {
		return peer
	}

	if xff := req.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if i == 0 || !r.Trusted(hop) {
				return hop
			}
		}
	}
	if xri := strings.TrimSpace(req.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return peer
}

// Trusted reports whether ip falls inside a trusted proxy range
func (r *ClientIPResolver) Trusted(ip string) bool {
	if r == nil || len(r.trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range r.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
