package keys

import (
	"crypto/sha256"
	"fmt"
)

// DeriveHotkeySeed deterministically derives a named hotkey seed from a coldkey seed.
//
// The derivation is sha256(coldkey || 0 || "bittensor-hotkey-v1" || 0 || "hotkey:" || name).
// Changing it changes every derived identity.
func DeriveHotkeySeed(coldkeySeed []byte, name string) ([]byte, error) {
	if len(coldkeySeed) != SeedSize {
		return nil, fmt.Errorf("coldkey seed must be %d bytes", SeedSize)
	}
	if err := CheckName(name); err != nil {
		return nil, err
	}

	h := sha256.New()
	_, _ = h.Write(coldkeySeed)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte("bittensor-hotkey-v1"))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte("hotkey:"))
	_, _ = h.Write([]byte(name))
	sum := h.Sum(nil)
	out := make([]byte, SeedSize)
	copy(out, sum[:SeedSize])
	return out, nil
}
