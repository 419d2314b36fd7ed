package synapse

import (
	"context"

	"github.com/parall4x/bittensor/axon"
	"github.com/parall4x/bittensor/tensor"
	"github.com/parall4x/bittensor/wire"
)

func init() {
	MustRegister(Builtin{
		Name:        "zeros",
		Description: "answers [batch, seq, network_dim] zeros for any [batch, seq, ...] input",
		Backward:    true,
		Open: func(opts Options) (axon.Synapse, error) {
			return Zeros{NetworkDim: opts.NetworkDim}, nil
		},
	})
}

// Zeros answers every input with FLOAT32 zeros shaped [batch, seq, NetworkDim].
type Zeros struct {
	NetworkDim int
}

func (z Zeros) Forward(ctx context.Context, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	out := make([]*tensor.Tensor, 0, len(inputs))
	for i, x := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(x.Shape) < 2 {
			return nil, wire.Errorf(wire.RequestShapeException, "input %d must be at least [batch, seq], got %v", i, x.Shape)
		}
		t, err := tensor.Zeros(wire.FLOAT32, []int64{x.Shape[0], x.Shape[1], int64(z.NetworkDim)})
		if err != nil {
			return nil, wire.Wrap(wire.RequestShapeException, "cannot shape output", err)
		}
		out = append(out, t)
	}
	return out, nil
}

// Backward returns zero gradients shaped and typed like the inputs.
func (z Zeros) Backward(ctx context.Context, inputs, _ []*tensor.Tensor) ([]*tensor.Tensor, error) {
	out := make([]*tensor.Tensor, 0, len(inputs))
	for _, x := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t, err := tensor.Zeros(x.ElementType(), x.Shape)
		if err != nil {
			return nil, wire.Wrap(wire.RequestShapeException, "cannot shape gradient", err)
		}
		out = append(out, t)
	}
	return out, nil
}
