package util

import "net/netip"

// IsPrivateIP reports whether addr is a loopback, RFC 1918, or link-local
// address. The peer transport layered on top of the core uses this to prefer
// direct connections over relayed ones for same-network peers. Unparseable
// input is treated as not private.
func IsPrivateIP(addr string) bool {
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast()
}
