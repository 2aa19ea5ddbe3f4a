// Package privacy masks caller network identity before it reaches logs.
package privacy

import (
	"net"
	"net/netip"
)

// ClientNetwork reduces a RemoteAddr ("host:port" or bare host) to its /24
// (IPv4) or /48 (IPv6) network. Unparseable input yields "unknown".
func ClientNetwork(remoteAddr string) string {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return "unknown"
	}
	addr = addr.Unmap()

	bits := 48
	if addr.Is4() {
		bits = 24
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return "unknown"
	}
	return prefix.String()
}
