package tensor

import (
	"errors"

	"github.com/parall4x/bittensor/wire"
)

// Encode serializes t for the wire. framework is recorded as TensorType.
//
// dir selects the directional return code used on failure: a client encoding a
// request passes wire.Request, a server encoding its reply wire.Response.
func Encode(t *Tensor, framework wire.TensorType, modality wire.Modality, dir wire.Direction) (*wire.Tensor, error) {
	if t == nil {
		return nil, wire.Errorf(dir.SerializationCode(), "nil tensor")
	}
	dt, n := dtypeOf(t.Data)
	if dt == wire.UNKNOWN {
		return nil, wire.Errorf(dir.SerializationCode(), "unsupported element type %T", t.Data)
	}
	if t.DType != wire.UNKNOWN && t.DType != dt {
		return nil, wire.Errorf(dir.SerializationCode(), "declared dtype %s does not match %s data", t.DType, dt)
	}
	if _, err := resolveShape(t.Shape, n); err != nil {
		return nil, wire.Wrap(dir.ShapeCode(), "invalid tensor shape", err)
	}
	buf, err := appendElements(nil, t.Data)
	if err != nil {
		return nil, wire.Wrap(dir.SerializationCode(), "msgpack encode failed", err)
	}
	return &wire.Tensor{
		Version:      wire.ProtocolVersion,
		Buffer:       buf,
		Shape:        append([]int64(nil), t.Shape...),
		Serializer:   wire.MSGPACK,
		TensorType:   framework,
		DType:        dt,
		Modality:     modality,
		RequiresGrad: t.RequiresGrad,
	}, nil
}

// Decode reconstructs a tensor for target from its wire form.
//
// Only Serializer, DType and Shape are consulted; TensorType is ignored.
func Decode(w *wire.Tensor, target wire.TensorType, dir wire.Direction) (*Tensor, error) {
	if w == nil {
		return nil, wire.Errorf(dir.DeserializationCode(), "nil tensor")
	}
	if !w.Serializer.Supported() {
		return nil, wire.Errorf(dir.DeserializationCode(), "unsupported serializer %s", w.Serializer)
	}
	if !w.DType.Supported() {
		return nil, wire.Errorf(dir.DeserializationCode(), "unsupported dtype %s", w.DType)
	}
	if _, _, err := checkShape(w.Shape); err != nil {
		return nil, wire.Wrap(dir.ShapeCode(), "invalid tensor shape", err)
	}
	data, err := readElements(w.Buffer, w.DType)
	if err != nil {
		return nil, wire.Wrap(dir.DeserializationCode(), "msgpack decode failed", err)
	}
	_, n := dtypeOf(data)
	shape, err := resolveShape(w.Shape, n)
	if err != nil {
		if errors.Is(err, errAmbiguousShape) || errors.Is(err, errIndivisible) || errors.Is(err, errShapeOverflow) {
			return nil, wire.Wrap(dir.ShapeCode(), "invalid tensor shape", err)
		}
		return nil, wire.Wrap(dir.DeserializationCode(), "buffer does not match shape", err)
	}
	return &Tensor{
		Shape:        shape,
		DType:        w.DType,
		Data:         data,
		RequiresGrad: w.RequiresGrad,
		Framework:    target,
	}, nil
}

// EncodeAll encodes ts in order, stopping at the first failure.
func EncodeAll(ts []*Tensor, framework wire.TensorType, modality wire.Modality, dir wire.Direction) ([]*wire.Tensor, error) {
	out := make([]*wire.Tensor, 0, len(ts))
	for _, t := range ts {
		w, err := Encode(t, framework, modality, dir)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

// DecodeAll decodes ws in order, stopping at the first failure.
func DecodeAll(ws []*wire.Tensor, target wire.TensorType, dir wire.Direction) ([]*Tensor, error) {
	out := make([]*Tensor, 0, len(ws))
	for _, w := range ws {
		t, err := Decode(w, target, dir)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
