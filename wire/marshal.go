package wire

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers, mirrored in bittensor.proto.
const (
	neuronVersion   protowire.Number = 1
	neuronPublicKey protowire.Number = 2
	neuronAddress   protowire.Number = 3
	neuronPort      protowire.Number = 4
	neuronIPType    protowire.Number = 5
	neuronModality  protowire.Number = 6
	neuronUID       protowire.Number = 7

	tensorVersion      protowire.Number = 1
	tensorBuffer       protowire.Number = 2
	tensorShape        protowire.Number = 3
	tensorSerializer   protowire.Number = 4
	tensorType         protowire.Number = 5
	tensorDType        protowire.Number = 6
	tensorModality     protowire.Number = 7
	tensorRequiresGrad protowire.Number = 8

	msgVersion    protowire.Number = 1
	msgPublicKey  protowire.Number = 2
	msgNounce     protowire.Number = 3
	msgSignature  protowire.Number = 4
	msgReturnCode protowire.Number = 5
	msgMessage    protowire.Number = 6
	msgTensors    protowire.Number = 7
)

var errTruncated = errors.New("wire: truncated message")

// Proto3 semantics: zero values are not emitted.

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// int32 and enum fields are sign-extended to 64 bits on the wire.
func appendInt32(b []byte, num protowire.Number, v int32) []byte {
	return appendVarint(b, num, uint64(int64(v)))
}

func (n *Neuron) MarshalBinary() ([]byte, error) {
	if n == nil {
		return nil, nil
	}
	return n.appendTo(nil), nil
}

func (n *Neuron) appendTo(b []byte) []byte {
	b = appendString(b, neuronVersion, n.Version)
	b = appendString(b, neuronPublicKey, n.PublicKey)
	b = appendString(b, neuronAddress, n.Address)
	b = appendInt32(b, neuronPort, n.Port)
	b = appendInt32(b, neuronIPType, n.IPType)
	b = appendInt32(b, neuronModality, int32(n.Modality))
	b = appendVarint(b, neuronUID, uint64(n.UID))
	return b
}

func (t *Tensor) MarshalBinary() ([]byte, error) {
	if t == nil {
		return nil, nil
	}
	return t.appendTo(nil), nil
}

func (t *Tensor) appendTo(b []byte) []byte {
	b = appendString(b, tensorVersion, t.Version)
	b = appendBytes(b, tensorBuffer, t.Buffer)
	if len(t.Shape) > 0 {
		var packed []byte
		for _, d := range t.Shape {
			packed = protowire.AppendVarint(packed, uint64(d))
		}
		b = protowire.AppendTag(b, tensorShape, protowire.BytesType)
		b = protowire.AppendBytes(b, packed)
	}
	b = appendInt32(b, tensorSerializer, int32(t.Serializer))
	b = appendInt32(b, tensorType, int32(t.TensorType))
	b = appendInt32(b, tensorDType, int32(t.DType))
	b = appendInt32(b, tensorModality, int32(t.Modality))
	b = appendVarint(b, tensorRequiresGrad, protowire.EncodeBool(t.RequiresGrad))
	return b
}

func (m *TensorMessage) MarshalBinary() ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	var b []byte
	b = appendString(b, msgVersion, m.Version)
	b = appendString(b, msgPublicKey, m.PublicKey)
	b = appendVarint(b, msgNounce, m.Nounce)
	b = appendBytes(b, msgSignature, m.Signature)
	b = appendInt32(b, msgReturnCode, int32(m.ReturnCode))
	b = appendString(b, msgMessage, m.Message)
	for i, t := range m.Tensors {
		if t == nil {
			return nil, fmt.Errorf("wire: nil tensor at index %d", i)
		}
		b = protowire.AppendTag(b, msgTensors, protowire.BytesType)
		b = protowire.AppendBytes(b, t.appendTo(nil))
	}
	return b, nil
}

// fieldFunc handles one field; it returns the number of bytes consumed from b
// (the field value only), or -1 to let the caller skip an unknown field.
type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

func walk(b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		used, err := fn(num, typ, b)
		if err != nil {
			return fmt.Errorf("wire: field %d: %w", num, err)
		}
		if used < 0 {
			used = protowire.ConsumeFieldValue(num, typ, b)
			if used < 0 {
				return protowire.ParseError(used)
			}
		}
		b = b[used:]
	}
	return nil
}

func consumeString(typ protowire.Type, b []byte, dst *string) (int, error) {
	if typ != protowire.BytesType {
		return -1, nil
	}
	v, n := protowire.ConsumeString(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*dst = v
	return n, nil
}

func consumeBytes(typ protowire.Type, b []byte, dst *[]byte) (int, error) {
	if typ != protowire.BytesType {
		return -1, nil
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*dst = append([]byte(nil), v...)
	return n, nil
}

func consumeVarint(typ protowire.Type, b []byte, dst *uint64) (int, error) {
	if typ != protowire.VarintType {
		return -1, nil
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*dst = v
	return n, nil
}

func consumeInt32(typ protowire.Type, b []byte, dst *int32) (int, error) {
	var v uint64
	n, err := consumeVarint(typ, b, &v)
	if n > 0 {
		*dst = int32(v)
	}
	return n, err
}

func (n *Neuron) UnmarshalBinary(b []byte) error {
	*n = Neuron{}
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case neuronVersion:
			return consumeString(typ, b, &n.Version)
		case neuronPublicKey:
			return consumeString(typ, b, &n.PublicKey)
		case neuronAddress:
			return consumeString(typ, b, &n.Address)
		case neuronPort:
			return consumeInt32(typ, b, &n.Port)
		case neuronIPType:
			return consumeInt32(typ, b, &n.IPType)
		case neuronModality:
			return consumeInt32(typ, b, (*int32)(&n.Modality))
		case neuronUID:
			var v uint64
			used, err := consumeVarint(typ, b, &v)
			if used > 0 {
				n.UID = int64(v)
			}
			return used, err
		}
		return -1, nil
	})
}

func (t *Tensor) UnmarshalBinary(b []byte) error {
	*t = Tensor{}
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case tensorVersion:
			return consumeString(typ, b, &t.Version)
		case tensorBuffer:
			return consumeBytes(typ, b, &t.Buffer)
		case tensorShape:
			return t.consumeShape(typ, b)
		case tensorSerializer:
			return consumeInt32(typ, b, (*int32)(&t.Serializer))
		case tensorType:
			return consumeInt32(typ, b, (*int32)(&t.TensorType))
		case tensorDType:
			return consumeInt32(typ, b, (*int32)(&t.DType))
		case tensorModality:
			return consumeInt32(typ, b, (*int32)(&t.Modality))
		case tensorRequiresGrad:
			var v uint64
			used, err := consumeVarint(typ, b, &v)
			if used > 0 {
				t.RequiresGrad = protowire.DecodeBool(v)
			}
			return used, err
		}
		return -1, nil
	})
}

// consumeShape accepts both packed and unpacked encodings of the repeated field.
func (t *Tensor) consumeShape(typ protowire.Type, b []byte) (int, error) {
	switch typ {
	case protowire.VarintType:
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return 0, protowire.ParseError(n)
		}
		t.Shape = append(t.Shape, int64(v))
		return n, nil
	case protowire.BytesType:
		packed, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return 0, protowire.ParseError(n)
		}
		for len(packed) > 0 {
			v, m := protowire.ConsumeVarint(packed)
			if m < 0 {
				return 0, errTruncated
			}
			t.Shape = append(t.Shape, int64(v))
			packed = packed[m:]
		}
		return n, nil
	}
	return -1, nil
}

func (m *TensorMessage) UnmarshalBinary(b []byte) error {
	*m = TensorMessage{}
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case msgVersion:
			return consumeString(typ, b, &m.Version)
		case msgPublicKey:
			return consumeString(typ, b, &m.PublicKey)
		case msgNounce:
			return consumeVarint(typ, b, &m.Nounce)
		case msgSignature:
			return consumeBytes(typ, b, &m.Signature)
		case msgReturnCode:
			return consumeInt32(typ, b, (*int32)(&m.ReturnCode))
		case msgMessage:
			return consumeString(typ, b, &m.Message)
		case msgTensors:
			if typ != protowire.BytesType {
				return -1, nil
			}
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			t := new(Tensor)
			if err := t.UnmarshalBinary(raw); err != nil {
				return 0, err
			}
			m.Tensors = append(m.Tensors, t)
			return n, nil
		}
		return -1, nil
	})
}
