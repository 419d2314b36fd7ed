package neuron

import (
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"github.com/parall4x/bittensor/keys"
)

// ID returns a CIDv1 (raw codec, sha2-256 multihash) derived from the public
// key bytes. It is stable across address changes.
func ID(scheme keys.Scheme, publicKeyHex string) (cid.Cid, error) {
	pub, err := keys.DecodePublicKey(scheme, publicKeyHex)
	if err != nil {
		return cid.Undef, err
	}
	sum, err := multihash.Sum(pub, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}
