package config

import (
	"net"
	"strings"
)

// cgnatBlock is the shared address space (100.64.0.0/10) used by carrier
// grade NATs, Cloudflare WARP and Tailscale.
var cgnatBlock = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

// tunnelMarkers appear in the names of VPN and virtual adapters.
var tunnelMarkers = []string{"tun", "tap", "wg", "ppp", "warp"}

type hostInterface struct {
	Name  string
	Flags net.Flags
	Addrs []net.Addr
}

var listInterfaces = func() ([]hostInterface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	out := make([]hostInterface, 0, len(ifaces))
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			addrs = nil
		}
		out = append(out, hostInterface{Name: iface.Name, Flags: iface.Flags, Addrs: addrs})
	}
	return out, nil
}

// RestrictedNetwork reports whether the host is likely behind a VPN or CGNAT,
// where a direct path between peers rarely works.
func RestrictedNetwork() bool {
	ifaces, err := listInterfaces()
	if err != nil {
		return false
	}
	return restricted(ifaces)
}

func restricted(ifaces []hostInterface) bool {
	for _, iface := range ifaces {
		// Ignore loopback and down interfaces
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		name := strings.ToLower(iface.Name)
		for _, marker := range tunnelMarkers {
			if strings.Contains(name, marker) {
				return true
			}
		}

		for _, addr := range iface.Addrs {
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
