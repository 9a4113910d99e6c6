package webrtc

import (
	"net"
	"strings"

	pion "github.com/pion/webrtc/v4"
)

// ICEConfig holds the STUN/TURN settings for a peer connection.
type ICEConfig struct {
	STUN       []string
	TURN       []string
	TURNUser   string
	TURNPass   string
	ForceRelay bool

	// DetectRelay enables the VPN/CGNAT interface heuristic.
	DetectRelay bool
}

// Configuration builds the pion configuration. Relay-only ICE is used when it
// is forced, or when a VPN/CGNAT interface is detected, and only if TURN is set.
func (c ICEConfig) Configuration() pion.Configuration {
	var servers []pion.ICEServer
	if len(c.STUN) > 0 {
		servers = append(servers, pion.ICEServer{URLs: c.STUN})
	}
	if len(c.TURN) > 0 {
		servers = append(servers, pion.ICEServer{
			URLs:       c.TURN,
			Username:   c.TURNUser,
			Credential: c.TURNPass,
		})
	}

	policy := pion.ICETransportPolicyAll
	if c.relayOnly(ShouldForceRelay) {
		policy = pion.ICETransportPolicyRelay
	}

	return pion.Configuration{
		ICEServers:         servers,
		ICETransportPolicy: policy,
	}
}

func (c ICEConfig) relayOnly(detect func() bool) bool {
	if len(c.TURN) == 0 {
		return false
	}
	return c.ForceRelay || (c.DetectRelay && detect())
}

var cgnatBlock = &net.IPNet{
	IP:   net.IPv4(100, 64, 0, 0),
	Mask: net.CIDRMask(10, 32),
}

var tunnelNameHints = []string{"tun", "tap", "wg", "ppp", "warp"}

// ShouldForceRelay reports whether an active interface looks like a VPN tunnel
// or carries a CGNAT (100.64.0.0/10) address. Direct paths rarely work there.
func ShouldForceRelay() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if looksLikeTunnel(iface.Name) {
			return true
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && cgnatBlock.Contains(ipnet.IP) {
				return true
			}
		}
	}
	return false
}

func looksLikeTunnel(name string) bool {
	name = strings.ToLower(name)
	for _, hint := range tunnelNameHints {
		if strings.Contains(name, hint) {
			return true
		}
	}
	return false
}
