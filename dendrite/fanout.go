package dendrite

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/parall4x/bittensor/neuron"
	"github.com/parall4x/bittensor/tensor"
	"github.com/parall4x/bittensor/wire"
)

// ForwardText queries each neuron with its own token batch, inputs[i] going
// to neurons[i]. Every input must be INT64 shaped [batch, seq].
//
// codes[i] and outputs[i] line up with neurons[i]. A failed call, or a reply
// not shaped [batch, seq, network_dim] (ResponseShapeException), yields zeros
// of that shape so results can be joined positionally.
func (d *Dendrite) ForwardText(ctx context.Context, neurons []*wire.Neuron, inputs []*tensor.Tensor) ([]*tensor.Tensor, []wire.ReturnCode, error) {
	return d.fanOut(ctx, neurons, inputs, wire.TEXT, checkText)
}

// ForwardImage is ForwardText for inputs shaped [batch, seq, channels, rows, cols].
func (d *Dendrite) ForwardImage(ctx context.Context, neurons []*wire.Neuron, inputs []*tensor.Tensor) ([]*tensor.Tensor, []wire.ReturnCode, error) {
	return d.fanOut(ctx, neurons, inputs, wire.IMAGE, checkImage)
}

// ForwardTensor is ForwardText for FLOAT32 inputs shaped [batch, seq, network_dim].
func (d *Dendrite) ForwardTensor(ctx context.Context, neurons []*wire.Neuron, inputs []*tensor.Tensor) ([]*tensor.Tensor, []wire.ReturnCode, error) {
	return d.fanOut(ctx, neurons, inputs, wire.TENSOR, d.checkTensor)
}

func checkText(i int, t *tensor.Tensor) error {
	if len(t.Shape) != 2 {
		return wire.Errorf(wire.RequestShapeException, "text input %d must have shape [batch, seq], got %v", i, t.Shape)
	}
	if t.ElementType() != wire.INT64 {
		return wire.Errorf(wire.RequestShapeException, "text input %d must be INT64, got %s", i, t.ElementType())
	}
	return nil
}

func checkImage(i int, t *tensor.Tensor) error {
	if len(t.Shape) != 5 {
		return wire.Errorf(wire.RequestShapeException, "image input %d must have shape [batch, seq, channels, rows, cols], got %v", i, t.Shape)
	}
	return nil
}

func (d *Dendrite) checkTensor(i int, t *tensor.Tensor) error {
	if len(t.Shape) != 3 || t.Shape[2] != int64(d.cfg.NetworkDim) {
		return wire.Errorf(wire.RequestShapeException, "tensor input %d must have shape [batch, seq, %d], got %v", i, d.cfg.NetworkDim, t.Shape)
	}
	if t.ElementType() != wire.FLOAT32 {
		return wire.Errorf(wire.RequestShapeException, "tensor input %d must be FLOAT32, got %s", i, t.ElementType())
	}
	return nil
}

func (d *Dendrite) fanOut(ctx context.Context, neurons []*wire.Neuron, inputs []*tensor.Tensor, modality wire.Modality, check func(int, *tensor.Tensor) error) ([]*tensor.Tensor, []wire.ReturnCode, error) {
	if len(neurons) != len(inputs) {
		return nil, nil, wire.Errorf(wire.RequestShapeException, "%d neurons but %d inputs", len(neurons), len(inputs))
	}
	for i, x := range inputs {
		if x == nil {
			return nil, nil, wire.Errorf(wire.RequestShapeException, "input %d is missing", i)
		}
		if err := check(i, x); err != nil {
			return nil, nil, err
		}
		for _, dim := range x.Shape[:2] {
			if dim < 0 {
				return nil, nil, wire.Errorf(wire.RequestShapeException, "input %d must have bound batch and sequence dimensions, got %v", i, x.Shape)
			}
		}
	}

	outputs := make([]*tensor.Tensor, len(neurons))
	codes := make([]wire.ReturnCode, len(neurons))
	var g errgroup.Group
	for i := range neurons {
		i := i
		g.Go(func() error {
			resp, err := d.Forward(ctx, neurons[i], []*tensor.Tensor{inputs[i]}, modality)
			code := resp.Code
			if err != nil {
				code = wire.Unavailable
			}
			if code == wire.Success {
				code = d.checkOutput(inputs[i], resp)
			}
			if code == wire.Success {
				outputs[i] = resp.Tensors[0]
			} else {
				z, zerr := d.zerosFor(inputs[i])
				if zerr != nil {
					return zerr
				}
				outputs[i] = z
			}
			codes[i] = code
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return outputs, codes, nil
}

// checkOutput requires a successful reply to carry a FLOAT32 tensor shaped
// [batch, seq, network_dim] for input x.
func (d *Dendrite) checkOutput(x *tensor.Tensor, resp *Response) wire.ReturnCode {
	if len(resp.Tensors) == 0 || resp.Tensors[0] == nil {
		return wire.EmptyResponse
	}
	y := resp.Tensors[0]
	want := []int64{x.Shape[0], x.Shape[1], int64(d.cfg.NetworkDim)}
	if y.ElementType() != wire.FLOAT32 || !slices.Equal(y.Shape, want) {
		d.log.Info().
			Str("peer", neuron.Label(resp.Neuron)).
			Interface("shape", y.Shape).
			Str("dtype", y.ElementType().String()).
			Msg("discarding output with unexpected shape")
		return wire.ResponseShapeException
	}
	return wire.Success
}

func (d *Dendrite) zerosFor(x *tensor.Tensor) (*tensor.Tensor, error) {
	z, err := tensor.Zeros(wire.FLOAT32, []int64{x.Shape[0], x.Shape[1], int64(d.cfg.NetworkDim)})
	if err != nil {
		return nil, fmt.Errorf("dendrite: cannot build placeholder output: %w", err)
	}
	z.Framework = d.cfg.Framework
	return z, nil
}
