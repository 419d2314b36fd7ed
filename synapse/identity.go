package synapse

import (
	"context"

	"github.com/parall4x/bittensor/axon"
	"github.com/parall4x/bittensor/tensor"
)

func init() {
	MustRegister(Builtin{
		Name:        "identity",
		Description: "echoes inputs on forward and gradients on backward",
		Backward:    true,
		Open: func(Options) (axon.Synapse, error) {
			return Identity{}, nil
		},
	})
}

// Identity returns its inputs unchanged.
type Identity struct{}

func (Identity) Forward(ctx context.Context, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	return inputs, ctx.Err()
}

func (Identity) Backward(ctx context.Context, inputs, grads []*tensor.Tensor) ([]*tensor.Tensor, error) {
	return grads, ctx.Err()
}
