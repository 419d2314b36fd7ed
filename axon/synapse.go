package axon

import (
	"context"

	"github.com/parall4x/bittensor/tensor"
)

// Synapse is the local computation an axon exposes for one modality.
//
// Returning a *wire.Error sets the response code; any other error is reported
// as UnknownException.
type Synapse interface {
	Forward(ctx context.Context, inputs []*tensor.Tensor) ([]*tensor.Tensor, error)
}

// BackwardSynapse is a Synapse that also accepts gradients. grads[i] belongs
// to inputs[i].
type BackwardSynapse interface {
	Synapse
	Backward(ctx context.Context, inputs, grads []*tensor.Tensor) ([]*tensor.Tensor, error)
}

// SynapseFunc adapts a function to a forward-only Synapse.
type SynapseFunc func(ctx context.Context, inputs []*tensor.Tensor) ([]*tensor.Tensor, error)

func (f SynapseFunc) Forward(ctx context.Context, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	return f(ctx, inputs)
}
