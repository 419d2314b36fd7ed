package neuron

import (
	"fmt"
	"strconv"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/parall4x/bittensor/wire"
)

// Multiaddr renders n's endpoint as /ip4|ip6/<addr>/tcp/<port>.
func Multiaddr(n *wire.Neuron) (ma.Multiaddr, error) {
	var proto string
	switch n.IPType {
	case wire.IPv4:
		proto = "ip4"
	case wire.IPv6:
		proto = "ip6"
	default:
		return nil, fmt.Errorf("unknown ip_type %d", n.IPType)
	}
	return ma.NewMultiaddr(fmt.Sprintf("/%s/%s/tcp/%d", proto, n.Address, n.Port))
}

// FromMultiaddr extracts address, port and ip_type from a TCP multiaddr.
func FromMultiaddr(s string) (address string, port int32, ipType int32, err error) {
	m, err := ma.NewMultiaddr(s)
	if err != nil {
		return "", 0, 0, err
	}
	if v, err := m.ValueForProtocol(ma.P_IP4); err == nil {
		address, ipType = v, wire.IPv4
	} else if v, err := m.ValueForProtocol(ma.P_IP6); err == nil {
		address, ipType = v, wire.IPv6
	} else {
		return "", 0, 0, fmt.Errorf("multiaddr %s has no ip4/ip6 component", s)
	}
	p, err := m.ValueForProtocol(ma.P_TCP)
	if err != nil {
		return "", 0, 0, fmt.Errorf("multiaddr %s has no tcp component", s)
	}
	n, err := strconv.ParseUint(p, 10, 16)
	if err != nil || n == 0 {
		return "", 0, 0, fmt.Errorf("multiaddr %s has invalid tcp port %q", s, p)
	}
	return address, int32(n), ipType, nil
}
