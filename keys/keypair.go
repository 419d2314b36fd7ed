package keys

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

// Scheme names a signature scheme used for neuron identities.
type Scheme string

const (
	Ed25519    Scheme = "ed25519"
	Dilithium3 Scheme = "dilithium3"
)

// SeedSize is the seed length accepted by FromSeed for every scheme.
const SeedSize = 32

// ParseScheme maps a config value onto a Scheme. The empty string selects Ed25519.
func ParseScheme(s string) (Scheme, error) {
	switch Scheme(strings.ToLower(strings.TrimSpace(s))) {
	case "", Ed25519:
		return Ed25519, nil
	case Dilithium3:
		return Dilithium3, nil
	default:
		return "", fmt.Errorf("unsupported key scheme %q", s)
	}
}

// PublicKeySize returns the identity length in bytes for scheme, or 0 if unknown.
func PublicKeySize(scheme Scheme) int {
	switch scheme {
	case Ed25519:
		return ed25519.PublicKeySize
	case Dilithium3:
		return mode3.PublicKeySize
	default:
		return 0
	}
}

// Keypair signs digests on behalf of one identity.
type Keypair interface {
	Scheme() Scheme
	PublicKey() []byte
	// Sign returns a signature over digest. The caller chooses the digest.
	Sign(digest []byte) []byte
}

// PublicKeyHex is the encoding used in Neuron.PublicKey and TensorMessage.PublicKey.
func PublicKeyHex(kp Keypair) string {
	return hex.EncodeToString(kp.PublicKey())
}

// DecodePublicKey parses a hex identity (an optional 0x prefix is accepted) and
// checks its length against scheme.
func DecodePublicKey(scheme Scheme, s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	pub, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("public key is not hex: %w", err)
	}
	want := PublicKeySize(scheme)
	if want == 0 {
		return nil, fmt.Errorf("unsupported key scheme %q", scheme)
	}
	if len(pub) != want {
		return nil, fmt.Errorf("%s public key must be %d bytes, got %d", scheme, want, len(pub))
	}
	return pub, nil
}

type ed25519Keypair struct {
	priv ed25519.PrivateKey
}

func (k ed25519Keypair) Scheme() Scheme { return Ed25519 }

func (k ed25519Keypair) PublicKey() []byte {
	return append([]byte(nil), k.priv.Public().(ed25519.PublicKey)...)
}

func (k ed25519Keypair) Sign(digest []byte) []byte { return ed25519.Sign(k.priv, digest) }

type dilithium3Keypair struct {
	pub  *mode3.PublicKey
	priv *mode3.PrivateKey
}

func (k dilithium3Keypair) Scheme() Scheme { return Dilithium3 }

func (k dilithium3Keypair) PublicKey() []byte { return k.pub.Bytes() }

func (k dilithium3Keypair) Sign(digest []byte) []byte {
	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(k.priv, digest, sig)
	return sig
}

// FromSeed deterministically derives a keypair from a 32-byte seed.
func FromSeed(scheme Scheme, seed []byte) (Keypair, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	switch scheme {
	case Ed25519:
		return ed25519Keypair{priv: ed25519.NewKeyFromSeed(seed)}, nil
	case Dilithium3:
		var s [mode3.SeedSize]byte
		copy(s[:], seed)
		pub, priv := mode3.NewKeyFromSeed(&s)
		return dilithium3Keypair{pub: pub, priv: priv}, nil
	default:
		return nil, fmt.Errorf("unsupported key scheme %q", scheme)
	}
}

// Generate draws a fresh seed from rand and derives a keypair from it.
func Generate(scheme Scheme, rand io.Reader) (Keypair, []byte, error) {
	seed := make([]byte, SeedSize)
	if _, err := io.ReadFull(rand, seed); err != nil {
		return nil, nil, err
	}
	kp, err := FromSeed(scheme, seed)
	if err != nil {
		return nil, nil, err
	}
	return kp, seed, nil
}

// Verify checks sig over digest for the raw public key pub.
func Verify(scheme Scheme, pub, digest, sig []byte) bool {
	switch scheme {
	case Ed25519:
		if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
			return false
		}
		return ed25519.Verify(ed25519.PublicKey(pub), digest, sig)
	case Dilithium3:
		if len(sig) != mode3.SignatureSize {
			return false
		}
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(pub); err != nil {
			return false
		}
		return mode3.Verify(&pk, digest, sig)
	default:
		return false
	}
}
