// Package privacy provides helpers for keeping personal data out of logs.
package privacy

import (
	"fmt"
	"net/netip"
	"strings"
)

// AnonymizeIP truncates an IP address for logging: IPv4 addresses lose the
// last octet, IPv6 addresses are cut down to their /48 prefix. Anything that
// does not parse as an IP is returned as "invalid" rather than echoed back,
// so malformed attacker-controlled strings never reach the logs verbatim.
func AnonymizeIP(ip string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return "invalid"
	}
	if addr.Is4() || addr.Is4In6() {
		b := addr.As4()
		return fmt.Sprintf("%d.%d.%d.x", b[0], b[1], b[2])
	}
	prefix, err := addr.Prefix(48)
	if err != nil {
		return "invalid"
	}
	return prefix.Addr().String()
}
