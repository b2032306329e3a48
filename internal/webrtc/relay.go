package webrtc

import (
	"net"
	"strings"
)

var cgnatBlock = &net.IPNet{
	IP:   net.IPv4(100, 64, 0, 0),
	Mask: net.CIDRMask(10, 32),
}

// vpnMarkers are interface name fragments of tunnels that rarely let direct
// traffic through: OpenVPN, tap adapters, WireGuard, PPP and WARP.
var vpnMarkers = []string{"tun", "tap", "wg", "ppp", "warp"}

// iface is the part of a network interface the relay heuristic looks at.
type iface struct {
	name  string
	flags net.Flags
	addrs []net.Addr
}

// ShouldForceRelay reports whether this host is likely behind a VPN or
// carrier-grade NAT, where direct candidates seldom connect and TURN should
// be used from the start.
func ShouldForceRelay() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}

	list := make([]iface, 0, len(ifaces))
	for _, i := range ifaces {
		addrs, _ := i.Addrs()
		list = append(list, iface{name: i.Name, flags: i.Flags, addrs: addrs})
	}
	return needsRelay(list)
}

func needsRelay(ifaces []iface) bool {
	for _, i := range ifaces {
		if i.flags&net.FlagUp == 0 || i.flags&net.FlagLoopback != 0 {
			continue
		}

		name := strings.ToLower(i.name)
		for _, marker := range vpnMarkers {
			if strings.Contains(name, marker) {
				return true
			}
		}

		for _, addr := range i.addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip != nil && cgnatBlock.Contains(ip) {
				return true
			}
		}
	}
	return false
}
