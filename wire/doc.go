// Package wire defines the messages exchanged between neurons.
//
// Types in this package are the on-the-wire schema: Neuron endpoint descriptors,
// Tensor payloads and the TensorMessage envelope, plus the closed enumerations
// (ReturnCode, Serializer, TensorType, DataType, Modality) that accompany them.
//
// Messages are encoded with protobuf field numbering (see bittensor.proto) by hand
// on top of protowire, so this package does not require a protoc/codegen toolchain.
// Unknown fields are skipped on decode to keep peers forward compatible.
package wire
