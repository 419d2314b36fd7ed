// Package neuron validates peer endpoint descriptors and keeps the directory of
// known peers.
package neuron

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"

	"github.com/parall4x/bittensor/keys"
	"github.com/parall4x/bittensor/wire"
)

// Validate checks that n is dialable and names a well-formed identity for scheme.
func Validate(n *wire.Neuron, scheme keys.Scheme) error {
	if n == nil {
		return wire.Errorf(wire.InvalidRequest, "missing neuron")
	}
	if _, err := keys.DecodePublicKey(scheme, n.PublicKey); err != nil {
		return wire.Wrap(wire.InvalidRequest, "invalid neuron public key", err)
	}
	if _, err := parseAddr(n.Address, n.IPType); err != nil {
		return wire.Wrap(wire.InvalidRequest, "invalid neuron address", err)
	}
	if n.Port < 1 || n.Port > 65535 {
		return wire.Errorf(wire.InvalidRequest, "port %d out of range", n.Port)
	}
	if n.UID < 0 {
		return wire.Errorf(wire.InvalidRequest, "negative uid %d", n.UID)
	}
	if !n.Modality.Valid() {
		return wire.Errorf(wire.InvalidRequest, "unknown modality %d", int32(n.Modality))
	}
	return nil
}

func parseAddr(address string, ipType int32) (netip.Addr, error) {
	addr, err := netip.ParseAddr(address)
	if err != nil {
		return netip.Addr{}, err
	}
	switch ipType {
	case wire.IPv4:
		if !addr.Is4() {
			return netip.Addr{}, fmt.Errorf("%s is not an IPv4 address", address)
		}
	case wire.IPv6:
		if !addr.Is6() {
			return netip.Addr{}, fmt.Errorf("%s is not an IPv6 address", address)
		}
	default:
		return netip.Addr{}, fmt.Errorf("unknown ip_type %d", ipType)
	}
	return addr, nil
}

// Endpoint returns the host:port dial target for n.
func Endpoint(n *wire.Neuron) string {
	return net.JoinHostPort(n.Address, strconv.Itoa(int(n.Port)))
}

// Label is a short human-readable handle for logs.
func Label(n *wire.Neuron) string {
	if n == nil {
		return "<nil>"
	}
	key := strings.TrimPrefix(strings.ToLower(n.PublicKey), "0x")
	if len(key) > 12 {
		key = key[:12]
	}
	return fmt.Sprintf("uid=%d/%s@%s", n.UID, key, Endpoint(n))
}
