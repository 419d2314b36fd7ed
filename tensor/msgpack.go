package tensor

import (
	"fmt"

	"github.com/tinylib/msgp/msgp"

	"github.com/parall4x/bittensor/wire"
)

// Buffers are a single msgpack array holding every element in row-major order.

func appendElements(b []byte, data any) ([]byte, error) {
	switch v := data.(type) {
	case []float32:
		b = msgp.AppendArrayHeader(b, uint32(len(v)))
		for _, x := range v {
			b = msgp.AppendFloat32(b, x)
		}
	case []float64:
		b = msgp.AppendArrayHeader(b, uint32(len(v)))
		for _, x := range v {
			b = msgp.AppendFloat64(b, x)
		}
	case []int32:
		b = msgp.AppendArrayHeader(b, uint32(len(v)))
		for _, x := range v {
			b = msgp.AppendInt32(b, x)
		}
	case []int64:
		b = msgp.AppendArrayHeader(b, uint32(len(v)))
		for _, x := range v {
			b = msgp.AppendInt64(b, x)
		}
	case []string:
		b = msgp.AppendArrayHeader(b, uint32(len(v)))
		for _, x := range v {
			b = msgp.AppendString(b, x)
		}
	default:
		return nil, fmt.Errorf("unsupported element type %T", data)
	}
	return b, nil
}

func readElements(b []byte, dtype wire.DataType) (any, error) {
	n, rest, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, err
	}
	// Every element takes at least one byte.
	if int(n) > len(rest) {
		return nil, fmt.Errorf("array header claims %d elements, only %d bytes follow", n, len(rest))
	}
	var out any
	switch dtype {
	case wire.FLOAT32:
		v := make([]float32, n)
		for i := range v {
			if v[i], rest, err = msgp.ReadFloat32Bytes(rest); err != nil {
				return nil, err
			}
		}
		out = v
	case wire.FLOAT64:
		v := make([]float64, n)
		for i := range v {
			if v[i], rest, err = msgp.ReadFloat64Bytes(rest); err != nil {
				return nil, err
			}
		}
		out = v
	case wire.INT32:
		v := make([]int32, n)
		for i := range v {
			if v[i], rest, err = msgp.ReadInt32Bytes(rest); err != nil {
				return nil, err
			}
		}
		out = v
	case wire.INT64:
		v := make([]int64, n)
		for i := range v {
			if v[i], rest, err = msgp.ReadInt64Bytes(rest); err != nil {
				return nil, err
			}
		}
		out = v
	case wire.UTF8:
		v := make([]string, n)
		for i := range v {
			if v[i], rest, err = msgp.ReadStringBytes(rest); err != nil {
				return nil, err
			}
		}
		out = v
	default:
		return nil, fmt.Errorf("unsupported dtype %s", dtype)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%d trailing bytes after array", len(rest))
	}
	return out, nil
}
