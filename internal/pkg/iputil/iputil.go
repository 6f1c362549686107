package iputil

import "net/netip"

// IsPrivateOrLoopback reports whether ip is a private, loopback or link-local
// address. Throttling is skipped for such addresses so local development and
// in-cluster health checks never accumulate rate-limit state.
//
// A string that does not parse as an IP address (e.g. an email used as a
// throttle identifier) is not an exempt address.
func IsPrivateOrLoopback(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	return addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast()
}
