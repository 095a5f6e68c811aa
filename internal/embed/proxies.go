package embed

import (
	"fmt"
	"net"
	"net/netip"
	"strings"
)

// Proxies is the set of peers whose X-Forwarded-* headers are believed.
// The zero value trusts nobody.
type Proxies struct {
	prefixes []netip.Prefix
}

// ParseProxies accepts CIDRs and bare IPs.
func ParseProxies(entries []string) (Proxies, error) {
	var p Proxies
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if strings.Contains(e, "/") {
			prefix, err := netip.ParsePrefix(e)
			if err != nil {
				return Proxies{}, fmt.Errorf("trusted proxy %q: %w", e, err)
			}
			p.prefixes = append(p.prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			return Proxies{}, fmt.Errorf("trusted proxy %q: %w", e, err)
		}
		p.prefixes = append(p.prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return p, nil
}

// Trusts reports whether remoteAddr (host:port or a bare IP) is a trusted proxy.
func (p Proxies) Trusts(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range p.prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// Strings returns the CIDRs, in the form gin's SetTrustedProxies takes.
func (p Proxies) Strings() []string {
	out := make([]string, 0, len(p.prefixes))
	for _, prefix := range p.prefixes {
		out = append(out, prefix.String())
	}
	return out
}
