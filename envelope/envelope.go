// Package envelope builds, parses and checks TensorMessage envelopes.
//
// Version and identity are always validated before any tensor is decoded.
package envelope

import (
	"strings"

	"github.com/parall4x/bittensor/auth"
	"github.com/parall4x/bittensor/keys"
	"github.com/parall4x/bittensor/wire"
)

type buildOptions struct {
	code    wire.ReturnCode
	message string
}

// Option customizes Build.
type Option func(*buildOptions)

// WithReturnCode sets the envelope's return code. Requests normally leave it
// at Success.
func WithReturnCode(code wire.ReturnCode) Option {
	return func(o *buildOptions) { o.code = code }
}

func WithMessage(msg string) Option {
	return func(o *buildOptions) { o.message = msg }
}

// WithError sets both code and message from err.
func WithError(err error) Option {
	return func(o *buildOptions) {
		o.code = wire.CodeOf(err)
		o.message = wire.MessageOf(err)
	}
}

// Build assembles and signs an envelope around already-encoded tensors.
func Build(kp keys.Keypair, nounce uint64, hashAlg string, tensors []*wire.Tensor, dir wire.Direction, opts ...Option) (*wire.TensorMessage, error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}
	if len(tensors) == 0 {
		if dir == wire.Request {
			return nil, wire.Errorf(wire.EmptyRequest, "request carries no tensors")
		}
		if o.code == wire.Success {
			return nil, wire.Errorf(wire.EmptyResponse, "successful response carries no tensors")
		}
	}
	if kp == nil {
		return nil, wire.Errorf(dir.InvalidCode(), "missing keypair")
	}
	sig, err := auth.Sign(kp, nounce, hashAlg)
	if err != nil {
		return nil, wire.Wrap(dir.InvalidCode(), "cannot sign envelope", err)
	}
	return &wire.TensorMessage{
		Version:    wire.ProtocolVersion,
		PublicKey:  keys.PublicKeyHex(kp),
		Nounce:     nounce,
		Signature:  sig,
		ReturnCode: o.code,
		Message:    o.message,
		Tensors:    tensors,
	}, nil
}

// Parse decodes b and runs Check on the result.
func Parse(b []byte, dir wire.Direction) (*wire.TensorMessage, error) {
	var msg wire.TensorMessage
	if err := msg.UnmarshalBinary(b); err != nil {
		return nil, wire.Wrap(dir.InvalidCode(), "malformed envelope", err)
	}
	if err := Check(&msg, dir); err != nil {
		return &msg, err
	}
	return &msg, nil
}

// Check validates the envelope fields that precede tensor decoding.
//
// Version is checked first. A response that reports a failure may carry no
// tensors; every other envelope must carry at least one.
func Check(msg *wire.TensorMessage, dir wire.Direction) error {
	if msg == nil {
		return wire.Errorf(dir.InvalidCode(), "missing envelope")
	}
	if !wire.Compatible(wire.ProtocolVersion, msg.Version) {
		return wire.Errorf(dir.VersionCode(), "peer version %q is incompatible with %s", msg.Version, wire.ProtocolVersion)
	}
	if len(msg.Tensors) == 0 {
		if dir == wire.Response && msg.ReturnCode != wire.Success {
			return nil
		}
		return wire.Errorf(dir.EmptyCode(), "envelope carries no tensors")
	}
	for i, t := range msg.Tensors {
		if t == nil {
			return wire.Errorf(dir.InvalidCode(), "tensor %d is missing", i)
		}
	}
	return nil
}

// VerifySender checks that msg was signed by expectedKey. Unlike
// auth.Authenticator it keeps no nounce state. An empty expectedKey accepts
// any signer.
func VerifySender(msg *wire.TensorMessage, scheme keys.Scheme, hashAlg, expectedKey string, dir wire.Direction) error {
	if msg == nil {
		return wire.Errorf(dir.InvalidCode(), "missing envelope")
	}
	if expectedKey != "" && normalize(expectedKey) != normalize(msg.PublicKey) {
		return wire.Errorf(dir.InvalidCode(), "envelope signed by an unexpected key")
	}
	if _, err := auth.VerifySignature(scheme, hashAlg, msg.PublicKey, msg.Nounce, msg.Signature); err != nil {
		return wire.Wrap(dir.InvalidCode(), "envelope signature rejected", err)
	}
	return nil
}

func normalize(key string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(key), "0x"))
}

// Modality returns the modality shared by every tensor in msg.
func Modality(msg *wire.TensorMessage) (wire.Modality, error) {
	tensors := msg.GetTensors()
	if len(tensors) == 0 {
		return 0, wire.Errorf(wire.EmptyRequest, "envelope carries no tensors")
	}
	m := tensors[0].Modality
	if !m.Valid() {
		return 0, wire.Errorf(wire.InvalidRequest, "unknown modality %d", int32(m))
	}
	for i, t := range tensors[1:] {
		if t.Modality != m {
			return 0, wire.Errorf(wire.InvalidRequest, "tensor %d has modality %s, expected %s", i+1, t.Modality, m)
		}
	}
	return m, nil
}

// SplitBackward splits a backward payload [in_1..in_n, grad_1..grad_n].
func SplitBackward[T any](tensors []T) (inputs, grads []T, err error) {
	if len(tensors) == 0 || len(tensors)%2 != 0 {
		return nil, nil, wire.Errorf(wire.RequestShapeException, "backward expects inputs and gradients in equal number, got %d tensors", len(tensors))
	}
	n := len(tensors) / 2
	return tensors[:n], tensors[n:], nil
}
