// Package auth authenticates TensorMessage senders and rejects replays.
//
// A sender signs H(public_key || uint64_be(nounce)). The payload is deliberately
// not covered: one signature can be reused while the nounce allows it, and
// payload integrity is left to the transport.
package auth

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/sha3"

	"github.com/parall4x/bittensor/keys"
	"github.com/parall4x/bittensor/wire"
)

// Supported digest algorithms.
const (
	SHA256  = "sha256"
	SHA512  = "sha512"
	SHA3256 = "sha3-256"
)

// CheckHashAlg validates a configured digest name. Empty means SHA256.
func CheckHashAlg(hashAlg string) error {
	switch hashAlg {
	case "", SHA256, SHA512, SHA3256:
		return nil
	default:
		return fmt.Errorf("unsupported hash algorithm: %q", hashAlg)
	}
}

func digestFor(hashAlg string, message []byte) ([]byte, error) {
	switch hashAlg {
	case "", SHA256:
		s := sha256.Sum256(message)
		return s[:], nil
	case SHA512:
		s := sha512.Sum512(message)
		return s[:], nil
	case SHA3256:
		s := sha3.Sum256(message)
		return s[:], nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %q", hashAlg)
	}
}

// Digest returns the bytes that are signed for (publicKey, nounce).
func Digest(hashAlg string, publicKey []byte, nounce uint64) ([]byte, error) {
	msg := make([]byte, 0, len(publicKey)+8)
	msg = append(msg, publicKey...)
	msg = binary.BigEndian.AppendUint64(msg, nounce)
	return digestFor(hashAlg, msg)
}

// Sign signs (kp.PublicKey(), nounce).
func Sign(kp keys.Keypair, nounce uint64, hashAlg string) ([]byte, error) {
	if kp == nil {
		return nil, fmt.Errorf("missing keypair")
	}
	digest, err := Digest(hashAlg, kp.PublicKey(), nounce)
	if err != nil {
		return nil, err
	}
	return kp.Sign(digest), nil
}

// VerifySignature checks a signature without consulting any nounce state.
// Failures are SenderUnknown errors.
func VerifySignature(scheme keys.Scheme, hashAlg, publicKeyHex string, nounce uint64, sig []byte) ([]byte, error) {
	pub, err := keys.DecodePublicKey(scheme, publicKeyHex)
	if err != nil {
		return nil, wire.Wrap(wire.SenderUnknown, "invalid sender public key", err)
	}
	digest, err := Digest(hashAlg, pub, nounce)
	if err != nil {
		return nil, wire.Wrap(wire.SenderUnknown, "cannot compute signature digest", err)
	}
	if !keys.Verify(scheme, pub, digest, sig) {
		return nil, wire.Errorf(wire.SenderUnknown, "signature invalid")
	}
	return pub, nil
}
