package axon

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/parall4x/bittensor/envelope"
	"github.com/parall4x/bittensor/keys"
	"github.com/parall4x/bittensor/neuron"
	"github.com/parall4x/bittensor/rpc"
	"github.com/parall4x/bittensor/tensor"
	"github.com/parall4x/bittensor/wire"
)

type harness struct {
	axon   *Axon
	cc     *grpc.ClientConn
	client rpc.BittensorClient
	sender keys.Keypair
}

func seedKeypair(t *testing.T, b byte) keys.Keypair {
	t.Helper()
	kp, err := keys.FromSeed(keys.Ed25519, bytes.Repeat([]byte{b}, keys.SeedSize))
	require.NoError(t, err)
	return kp
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	if cfg.Keypair == nil {
		cfg.Keypair = seedKeypair(t, 0xa0)
	}
	a, err := New(cfg)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	require.NoError(t, a.Start(lis))
	t.Cleanup(a.Stop)

	dialer := func(ctx context.Context, s string) (net.Conn, error) { return lis.Dial() }
	cc, err := grpc.DialContext(
		context.Background(),
		"bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc.Close() })

	return &harness{axon: a, cc: cc, client: rpc.NewBittensorClient(cc), sender: seedKeypair(t, 0x01)}
}

func textInput() *tensor.Tensor {
	return tensor.FromInt64([]int64{1, 3}, []int64{11, 12, 13})
}

func (h *harness) request(t *testing.T, nounce uint64, modality wire.Modality, ts ...*tensor.Tensor) *wire.TensorMessage {
	t.Helper()
	ws, err := tensor.EncodeAll(ts, wire.TORCH, modality, wire.Request)
	require.NoError(t, err)
	msg, err := envelope.Build(h.sender, nounce, "", ws, wire.Request)
	require.NoError(t, err)
	return msg
}

func (h *harness) forward(t *testing.T, msg *wire.TensorMessage) *wire.TensorMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := h.client.Forward(ctx, msg)
	require.NoError(t, err)
	return resp
}

func (h *harness) backward(t *testing.T, msg *wire.TensorMessage) *wire.TensorMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := h.client.Backward(ctx, msg)
	require.NoError(t, err)
	return resp
}

type echo struct{}

func (echo) Forward(ctx context.Context, in []*tensor.Tensor) ([]*tensor.Tensor, error) {
	return in, nil
}

func (echo) Backward(ctx context.Context, in, grads []*tensor.Tensor) ([]*tensor.Tensor, error) {
	return grads, nil
}

func TestForward_Success(t *testing.T) {
	h := newHarness(t, Config{})
	h.axon.Serve(wire.TEXT, echo{})

	resp := h.forward(t, h.request(t, 1, wire.TEXT, textInput()))
	require.Equal(t, wire.Success, resp.ReturnCode, resp.Message)
	require.Equal(t, wire.ProtocolVersion, resp.Version)
	require.NoError(t, envelope.VerifySender(resp, keys.Ed25519, "", keys.PublicKeyHex(h.axon.cfg.Keypair), wire.Response))

	out, err := tensor.DecodeAll(resp.Tensors, wire.NUMPY, wire.Response)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.True(t, tensor.Equal(textInput(), out[0]))
	require.Equal(t, wire.TEXT, resp.Tensors[0].Modality)
}

func TestForward_ReplayRejected(t *testing.T) {
	h := newHarness(t, Config{})
	h.axon.Serve(wire.TEXT, echo{})

	require.Equal(t, wire.Success, h.forward(t, h.request(t, 1, wire.TEXT, textInput())).ReturnCode)
	replay := h.forward(t, h.request(t, 1, wire.TEXT, textInput()))
	require.Equal(t, wire.SenderUnknown, replay.ReturnCode)
	require.Equal(t, wire.Success, h.forward(t, h.request(t, 2, wire.TEXT, textInput())).ReturnCode)
}

func TestForward_VersionCheckedBeforeAuth(t *testing.T) {
	h := newHarness(t, Config{})
	h.axon.Serve(wire.TEXT, echo{})

	msg := h.request(t, 1, wire.TEXT, textInput())
	msg.Version = "7.0.0"
	msg.Signature = []byte("garbage")
	resp := h.forward(t, msg)
	require.Equal(t, wire.RequestIncompatibleVersion, resp.ReturnCode)

	// The rejected call must not have consumed nounce 1.
	require.Equal(t, wire.Success, h.forward(t, h.request(t, 1, wire.TEXT, textInput())).ReturnCode)
}

func TestForward_NotServingSynapse(t *testing.T) {
	var called atomic.Bool
	h := newHarness(t, Config{})
	h.axon.Serve(wire.TEXT, SynapseFunc(func(ctx context.Context, in []*tensor.Tensor) ([]*tensor.Tensor, error) {
		called.Store(true)
		return in, nil
	}))

	img := tensor.FromFloat32([]int64{1, 1, 1, 1, 1}, []float32{0.5})
	resp := h.forward(t, h.request(t, 1, wire.IMAGE, img))
	require.Equal(t, wire.NotServingSynapse, resp.ReturnCode)
	require.Empty(t, resp.Tensors)
	require.False(t, called.Load())
}

func TestForward_EmptyRequest(t *testing.T) {
	h := newHarness(t, Config{})
	h.axon.Serve(wire.TEXT, echo{})

	msg := h.request(t, 1, wire.TEXT, textInput())
	msg.Tensors = nil
	require.Equal(t, wire.EmptyRequest, h.forward(t, msg).ReturnCode)
}

func TestForward_BadSignature(t *testing.T) {
	h := newHarness(t, Config{})
	h.axon.Serve(wire.TEXT, echo{})

	msg := h.request(t, 5, wire.TEXT, textInput())
	msg.Signature[0] ^= 0xff
	require.Equal(t, wire.SenderUnknown, h.forward(t, msg).ReturnCode)
	// A forged message does not advance the sender's nounce.
	require.Equal(t, wire.Success, h.forward(t, h.request(t, 5, wire.TEXT, textInput())).ReturnCode)
}

func TestForward_UnregisteredSender(t *testing.T) {
	dir := neuron.NewDirectory(keys.Ed25519)
	h := newHarness(t, Config{Registry: dir})
	h.axon.Serve(wire.TEXT, echo{})

	require.Equal(t, wire.SenderUnknown, h.forward(t, h.request(t, 1, wire.TEXT, textInput())).ReturnCode)

	require.NoError(t, dir.Put(&wire.Neuron{
		Version:   wire.ProtocolVersion,
		PublicKey: keys.PublicKeyHex(h.sender),
		Address:   "127.0.0.1",
		Port:      9000,
		IPType:    wire.IPv4,
		Modality:  wire.TEXT,
	}))
	require.Equal(t, wire.Success, h.forward(t, h.request(t, 2, wire.TEXT, textInput())).ReturnCode)
}

func TestForward_MixedModalities(t *testing.T) {
	h := newHarness(t, Config{})
	h.axon.Serve(wire.TEXT, echo{})

	msg := h.request(t, 1, wire.TEXT, textInput(), textInput())
	msg.Tensors[1].Modality = wire.TENSOR
	require.Equal(t, wire.InvalidRequest, h.forward(t, msg).ReturnCode)
}

func TestForward_DecodeFailure(t *testing.T) {
	h := newHarness(t, Config{})
	h.axon.Serve(wire.TEXT, echo{})

	msg := h.request(t, 1, wire.TEXT, textInput())
	msg.Tensors[0].Shape = []int64{-1, -1}
	require.Equal(t, wire.RequestShapeException, h.forward(t, msg).ReturnCode)

	msg = h.request(t, 2, wire.TEXT, textInput())
	msg.Tensors[0].Serializer = wire.SerializerRemoved
	require.Equal(t, wire.RequestDeserializationException, h.forward(t, msg).ReturnCode)
	require.Equal(t, 0, h.axon.InFlight())
}

func TestBackward(t *testing.T) {
	h := newHarness(t, Config{})
	h.axon.Serve(wire.TEXT, echo{})
	h.axon.Serve(wire.TENSOR, SynapseFunc(func(ctx context.Context, in []*tensor.Tensor) ([]*tensor.Tensor, error) {
		return in, nil
	}))

	grad := tensor.FromInt64([]int64{1, 3}, []int64{1, 1, 1})
	resp := h.backward(t, h.request(t, 1, wire.TEXT, textInput(), grad))
	require.Equal(t, wire.Success, resp.ReturnCode, resp.Message)
	out, err := tensor.DecodeAll(resp.Tensors, wire.TORCH, wire.Response)
	require.NoError(t, err)
	require.True(t, tensor.Equal(grad, out[0]))

	odd := h.backward(t, h.request(t, 2, wire.TEXT, textInput(), grad, grad))
	require.Equal(t, wire.RequestShapeException, odd.ReturnCode)

	x := tensor.FromFloat32([]int64{1, 1, 2}, []float32{1, 2})
	forwardOnly := h.backward(t, h.request(t, 3, wire.TENSOR, x, x))
	require.Equal(t, wire.NotImplemented, forwardOnly.ReturnCode)
}

func TestForward_NucleusTimeout(t *testing.T) {
	release := make(chan struct{})
	h := newHarness(t, Config{Timeout: 50 * time.Millisecond})
	h.axon.Serve(wire.TEXT, SynapseFunc(func(ctx context.Context, in []*tensor.Tensor) ([]*tensor.Tensor, error) {
		<-release
		return in, nil
	}))

	start := time.Now()
	resp := h.forward(t, h.request(t, 1, wire.TEXT, textInput()))
	require.Equal(t, wire.NucleusTimeout, resp.ReturnCode)
	require.Less(t, time.Since(start), 2*time.Second)

	// The slot stays held until the synapse really returns.
	require.Equal(t, 1, h.axon.InFlight())
	close(release)
	require.Eventually(t, func() bool { return h.axon.InFlight() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestForward_NucleusFull(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	h := newHarness(t, Config{QueueSize: 1})
	h.axon.Serve(wire.TEXT, SynapseFunc(func(ctx context.Context, in []*tensor.Tensor) ([]*tensor.Tensor, error) {
		close(entered)
		<-release
		return in, nil
	}))

	first := make(chan *wire.TensorMessage, 1)
	msg := h.request(t, 1, wire.TEXT, textInput())
	go func() {
		resp, err := h.client.Forward(context.Background(), msg)
		if err != nil {
			resp = &wire.TensorMessage{ReturnCode: wire.UnknownException, Message: err.Error()}
		}
		first <- resp
	}()
	<-entered

	resp := h.forward(t, h.request(t, 2, wire.TEXT, textInput()))
	require.Equal(t, wire.NucleusFull, resp.ReturnCode)

	close(release)
	require.Equal(t, wire.Success, (<-first).ReturnCode)
}

func TestForward_SynapseErrors(t *testing.T) {
	h := newHarness(t, Config{})
	var mode atomic.Value
	h.axon.Serve(wire.TEXT, SynapseFunc(func(ctx context.Context, in []*tensor.Tensor) ([]*tensor.Tensor, error) {
		switch mode.Load() {
		case "plain":
			return nil, errors.New("model exploded")
		case "coded":
			return nil, wire.Errorf(wire.Backoff, "warming up")
		case "panic":
			panic("boom")
		default:
			return nil, nil
		}
	}))

	cases := []struct {
		mode string
		code wire.ReturnCode
	}{
		{"plain", wire.UnknownException},
		{"coded", wire.Backoff},
		{"panic", wire.UnknownException},
		{"empty", wire.EmptyResponse},
	}
	for i, c := range cases {
		mode.Store(c.mode)
		resp := h.forward(t, h.request(t, uint64(i+1), wire.TEXT, textInput()))
		require.Equal(t, c.code, resp.ReturnCode, "mode %s: %s", c.mode, resp.Message)
		require.NoError(t, envelope.Check(resp, wire.Response))
	}
	require.Equal(t, 0, h.axon.InFlight())
}

func TestForward_RateLimited(t *testing.T) {
	h := newHarness(t, Config{RatePerSecond: 1, RateBurst: 1})
	h.axon.Serve(wire.TEXT, echo{})

	require.Equal(t, wire.Success, h.forward(t, h.request(t, 1, wire.TEXT, textInput())).ReturnCode)
	require.Equal(t, wire.Backoff, h.forward(t, h.request(t, 2, wire.TEXT, textInput())).ReturnCode)
}

func TestForward_RateLimitIgnoresForgedTraffic(t *testing.T) {
	h := newHarness(t, Config{RatePerSecond: 1, RateBurst: 2})
	h.axon.Serve(wire.TEXT, echo{})

	// Unsigned traffic under the sender's key must not drain its bucket.
	for n := uint64(1); n <= 5; n++ {
		forged := h.request(t, n, wire.TEXT, textInput())
		forged.Signature = make([]byte, len(forged.Signature))
		require.Equal(t, wire.SenderUnknown, h.forward(t, forged).ReturnCode)
	}
	resp := h.forward(t, h.request(t, 1000, wire.TEXT, textInput()))
	require.Equal(t, wire.Success, resp.ReturnCode, resp.Message)
}

func TestRespond_UnsignedFallbackWhenSigningFails(t *testing.T) {
	h := newHarness(t, Config{})
	h.axon.cfg.HashAlg = "md5"

	resp := h.axon.respond(nil, wire.TENSOR, wire.Errorf(wire.NotServingSynapse, "no synapse"))
	require.Equal(t, wire.UnknownException, resp.ReturnCode)
	require.Empty(t, resp.Signature)
	require.Empty(t, resp.PublicKey)
	require.Contains(t, resp.Message, "cannot build response")
}

func TestForward_Draining(t *testing.T) {
	h := newHarness(t, Config{})
	h.axon.Serve(wire.TEXT, echo{})
	h.axon.Drain()
	require.Equal(t, wire.Unavailable, h.forward(t, h.request(t, 1, wire.TEXT, textInput())).ReturnCode)
}

// rawCodec sends pre-encoded bytes so malformed envelopes can reach the server.
type rawCodec struct{}

type rawBytes []byte

func (rawCodec) Marshal(v any) ([]byte, error) {
	if b, ok := v.(rawBytes); ok {
		return b, nil
	}
	return nil, fmt.Errorf("cannot marshal %T", v)
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	m, ok := v.(*wire.TensorMessage)
	if !ok {
		return fmt.Errorf("cannot unmarshal into %T", v)
	}
	return m.UnmarshalBinary(data)
}

func (rawCodec) Name() string { return "proto" }

func TestForward_MalformedEnvelope(t *testing.T) {
	h := newHarness(t, Config{})
	h.axon.Serve(wire.TEXT, echo{})

	var out wire.TensorMessage
	err := h.cc.Invoke(context.Background(), rpc.ForwardMethod, rawBytes{0xff, 0xff, 0xff}, &out, grpc.ForceCodec(rawCodec{}))
	require.NoError(t, err)
	require.Equal(t, wire.InvalidRequest, out.ReturnCode)
}
