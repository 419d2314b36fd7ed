package wire

import (
	"strconv"
	"strings"
)

// Serializer names the method used to encode Tensor.Buffer.
//
// Value 0 belonged to a pickle-based serializer that was removed for security
// reasons. It is kept reserved so that old payloads are rejected, not reinterpreted.
type Serializer int32

const (
	SerializerRemoved Serializer = 0
	MSGPACK           Serializer = 1
)

func (s Serializer) String() string {
	switch s {
	case SerializerRemoved:
		return "REMOVED"
	case MSGPACK:
		return "MSGPACK"
	default:
		return "Serializer(" + strconv.Itoa(int(s)) + ")"
	}
}

// Supported reports whether s may be used to encode or decode a buffer.
func (s Serializer) Supported() bool { return s == MSGPACK }

// TensorType declares the framework that produced a tensor. It is documentation
// only and must never drive decoding.
type TensorType int32

const (
	TORCH      TensorType = 0
	TENSORFLOW TensorType = 1
	NUMPY      TensorType = 2
)

func (t TensorType) String() string {
	switch t {
	case TORCH:
		return "TORCH"
	case TENSORFLOW:
		return "TENSORFLOW"
	case NUMPY:
		return "NUMPY"
	default:
		return "TensorType(" + strconv.Itoa(int(t)) + ")"
	}
}

// DataType is the element type of a tensor buffer.
type DataType int32

const (
	UNKNOWN DataType = 0
	FLOAT32 DataType = 1
	FLOAT64 DataType = 2
	INT32   DataType = 3
	INT64   DataType = 4
	UTF8    DataType = 5
)

func (d DataType) String() string {
	switch d {
	case UNKNOWN:
		return "UNKNOWN"
	case FLOAT32:
		return "FLOAT32"
	case FLOAT64:
		return "FLOAT64"
	case INT32:
		return "INT32"
	case INT64:
		return "INT64"
	case UTF8:
		return "UTF8"
	default:
		return "DataType(" + strconv.Itoa(int(d)) + ")"
	}
}

// Supported reports whether d can be carried in a buffer.
func (d DataType) Supported() bool { return d >= FLOAT32 && d <= UTF8 }

// Modality is the data domain of an exchange.
type Modality int32

const (
	TEXT   Modality = 0
	IMAGE  Modality = 1
	TENSOR Modality = 2
)

func (m Modality) String() string {
	switch m {
	case TEXT:
		return "TEXT"
	case IMAGE:
		return "IMAGE"
	case TENSOR:
		return "TENSOR"
	default:
		return "Modality(" + strconv.Itoa(int(m)) + ")"
	}
}

func (m Modality) Valid() bool { return m >= TEXT && m <= TENSOR }

// ParseModality accepts the enum names case-insensitively.
func ParseModality(s string) (Modality, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TEXT":
		return TEXT, true
	case "IMAGE":
		return IMAGE, true
	case "TENSOR":
		return TENSOR, true
	default:
		return 0, false
	}
}

// IP address family tags carried in Neuron.IPType.
const (
	IPv4 int32 = 4
	IPv6 int32 = 6
)
