// Package keys provides the identity keys neurons sign with.
//
// API stability:
//
// Stable:
//   - Scheme, Keypair, FromSeed, Verify and DeriveHotkeySeed. These define the
//     identity bytes that appear in Neuron.PublicKey and TensorMessage.PublicKey.
//
// Experimental:
//   - The filesystem-backed wallet store (KeyStore). It is a local-first helper
//     for the binaries and not part of the protocol contract.
package keys
