package auth

import (
	"strings"

	"github.com/parall4x/bittensor/keys"
	"github.com/parall4x/bittensor/wire"
)

// Registry reports whether a public key belongs to a registered identity.
// neuron.Directory is the usual implementation.
type Registry interface {
	Known(publicKey string) bool
}

// Authenticator verifies the (public_key, nounce, signature) triple of inbound
// messages and keeps the per-sender nounce table.
type Authenticator struct {
	Scheme  keys.Scheme
	HashAlg string
	Policy  Policy
	// Registry restricts senders to known identities. Nil admits any key that
	// signs correctly.
	Registry Registry

	table *NounceTable
}

func NewAuthenticator(scheme keys.Scheme, hashAlg string, policy Policy, registry Registry) *Authenticator {
	if scheme == "" {
		scheme = keys.Ed25519
	}
	return &Authenticator{
		Scheme:   scheme,
		HashAlg:  hashAlg,
		Policy:   policy,
		Registry: registry,
		table:    NewNounceTable(),
	}
}

// Table exposes the nounce table, mostly for inspection.
func (a *Authenticator) Table() *NounceTable { return a.table }

func normalizeKey(publicKeyHex string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(publicKeyHex), "0x"))
}

// Verify authenticates one message. Any failure is a SenderUnknown *wire.Error.
//
// The signature is checked before the nounce table is touched, so a forged
// message cannot advance a sender's nounce. A valid signature never rescues a
// stale nounce.
func (a *Authenticator) Verify(publicKeyHex string, nounce uint64, sig []byte) error {
	key := normalizeKey(publicKeyHex)
	if key == "" {
		return wire.Errorf(wire.SenderUnknown, "missing sender public key")
	}
	if a.Registry != nil && !a.Registry.Known(key) {
		return wire.Errorf(wire.SenderUnknown, "sender %s is not registered", shortKey(key))
	}
	if _, err := VerifySignature(a.Scheme, a.HashAlg, key, nounce, sig); err != nil {
		return err
	}
	ok, last := a.table.Advance(key, nounce, a.Policy)
	if !ok {
		return wire.Errorf(wire.SenderUnknown, "stale nounce %d from %s (last accepted %d)", nounce, shortKey(key), last)
	}
	return nil
}

func shortKey(key string) string {
	if len(key) <= 12 {
		return key
	}
	return key[:12]
}
