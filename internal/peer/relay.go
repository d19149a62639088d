package peer

import (
	"net"
	"strings"
)

// Carrier-grade NAT range, also used by WARP and Tailscale.
var cgnatBlock = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

type netInterface struct {
	name  string
	flags net.Flags
	addrs []net.Addr
}

// ShouldForceRelay reports whether this host is likely behind a VPN or CGNAT,
// where direct paths usually fail and the TURN relay is the only option.
func ShouldForceRelay() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	list := make([]netInterface, 0, len(ifaces))
	for _, iface := range ifaces {
		addrs, _ := iface.Addrs()
		list = append(list, netInterface{name: iface.Name, flags: iface.Flags, addrs: addrs})
	}
	return relayHeuristic(list)
}

func relayHeuristic(ifaces []netInterface) bool {
	for _, iface := range ifaces {
		if iface.flags&net.FlagUp == 0 || iface.flags&net.FlagLoopback != 0 {
			continue
		}

		name := strings.ToLower(iface.name)
		for _, marker := range []string{"tun", "tap", "wg", "ppp", "warp"} {
			if strings.Contains(name, marker) {
				return true
			}
		}

		for _, addr := range iface.addrs {
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
