package wire

// Neuron describes how to address a peer. Records are produced by the
// discovery/membership layer and are read-only to this module.
type Neuron struct {
	Version   string
	PublicKey string
	Address   string
	Port      int32
	IPType    int32
	Modality  Modality
	UID       int64
}

// Tensor is a self-describing numeric payload.
type Tensor struct {
	Version      string
	Buffer       []byte
	Shape        []int64
	Serializer   Serializer
	TensorType   TensorType
	DType        DataType
	Modality     Modality
	RequiresGrad bool
}

// TensorMessage is the envelope carried by Forward and Backward in both directions.
//
// For Backward requests Tensors holds [input_1..input_n, grad_1..grad_n].
type TensorMessage struct {
	Version    string
	PublicKey  string
	Nounce     uint64
	Signature  []byte
	ReturnCode ReturnCode
	Message    string
	Tensors    []*Tensor
}

func (m *TensorMessage) GetTensors() []*Tensor {
	if m == nil {
		return nil
	}
	return m.Tensors
}

func (m *TensorMessage) GetReturnCode() ReturnCode {
	if m == nil {
		return UnknownException
	}
	return m.ReturnCode
}
