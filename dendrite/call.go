package dendrite

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/parall4x/bittensor/envelope"
	"github.com/parall4x/bittensor/neuron"
	"github.com/parall4x/bittensor/observability"
	"github.com/parall4x/bittensor/tensor"
	"github.com/parall4x/bittensor/wire"
)

// Method selects the remote operation.
type Method string

const (
	MethodForward  Method = "Forward"
	MethodBackward Method = "Backward"
)

// State is the terminal state of one outbound call.
type State int

const (
	RequestBuilt State = iota
	Sent
	AwaitingResponse
	ResponseReceived
	TimedOut
	TransportFailed
)

func (s State) String() string {
	switch s {
	case RequestBuilt:
		return "REQUEST_BUILT"
	case Sent:
		return "SENT"
	case AwaitingResponse:
		return "AWAITING_RESPONSE"
	case ResponseReceived:
		return "RESPONSE_RECEIVED"
	case TimedOut:
		return "TIMED_OUT"
	case TransportFailed:
		return "TRANSPORT_FAILED"
	default:
		return "UNKNOWN"
	}
}

// Response is the outcome of one call. Tensors is only set when Code is Success.
type Response struct {
	Neuron  *wire.Neuron
	Method  Method
	Code    wire.ReturnCode
	Message string
	Tensors []*tensor.Tensor
	State   State
	Elapsed time.Duration
	// Envelope is the raw reply, when one was received.
	Envelope *wire.TensorMessage
}

func (r *Response) fail(code wire.ReturnCode, msg string) *Response {
	r.Code, r.Message = code, msg
	return r
}

func (r *Response) failErr(err error) *Response {
	return r.fail(wire.CodeOf(err), wire.MessageOf(err))
}

func (d *Dendrite) Forward(ctx context.Context, n *wire.Neuron, inputs []*tensor.Tensor, modality wire.Modality) (*Response, error) {
	return d.Call(ctx, n, MethodForward, inputs, modality)
}

// Backward sends inputs followed by their gradients; grads[i] belongs to inputs[i].
func (d *Dendrite) Backward(ctx context.Context, n *wire.Neuron, inputs, grads []*tensor.Tensor, modality wire.Modality) (*Response, error) {
	if len(inputs) == 0 || len(inputs) != len(grads) {
		r := &Response{Neuron: n, Method: MethodBackward, State: RequestBuilt}
		return r.fail(wire.RequestShapeException, "backward needs one gradient per input"), nil
	}
	payload := make([]*tensor.Tensor, 0, 2*len(inputs))
	payload = append(payload, inputs...)
	payload = append(payload, grads...)
	return d.Call(ctx, n, MethodBackward, payload, modality)
}

// Call performs one request/response exchange with n.
//
// Protocol outcomes, including local request failures and timeouts, are
// reported through Response.Code with a nil error. The error is non-nil only
// when the peer could not be reached, and is then a *TransportError.
func (d *Dendrite) Call(ctx context.Context, n *wire.Neuron, method Method, inputs []*tensor.Tensor, modality wire.Modality) (*Response, error) {
	start := time.Now()
	resp, err := d.call(ctx, n, method, inputs, modality)
	resp.Elapsed = time.Since(start)
	observability.RecordDendriteCall(string(method), resp.Code, resp.Elapsed)

	ev := d.log.Debug()
	if resp.Code != wire.Success {
		ev = d.log.Info()
	}
	ev.Str("method", string(method)).
		Str("peer", neuron.Label(n)).
		Str("code", resp.Code.String()).
		Str("state", resp.State.String()).
		Dur("elapsed", resp.Elapsed).
		Str("message", resp.Message).
		Msg("call")
	return resp, err
}

func (d *Dendrite) call(ctx context.Context, n *wire.Neuron, method Method, inputs []*tensor.Tensor, modality wire.Modality) (*Response, error) {
	r := &Response{Neuron: n, Method: method, State: RequestBuilt}
	if method != MethodForward && method != MethodBackward {
		return r.fail(wire.InvalidRequest, "unknown method "+string(method)), nil
	}
	if err := neuron.Validate(n, d.cfg.Scheme); err != nil {
		return r.failErr(err), nil
	}
	if len(inputs) == 0 {
		return r.fail(wire.EmptyRequest, "no tensors to send"), nil
	}
	ws, err := tensor.EncodeAll(inputs, d.cfg.Framework, modality, wire.Request)
	if err != nil {
		return r.failErr(err), nil
	}

	endpoint := neuron.Endpoint(n)
	p, err := d.peer(endpoint)
	if err != nil {
		r.State = TransportFailed
		r.fail(wire.Unavailable, err.Error())
		return r, &TransportError{Endpoint: endpoint, Err: err}
	}

	cctx, cancel := ctx, context.CancelFunc(func() {})
	if _, ok := ctx.Deadline(); !ok {
		cctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
	}
	defer cancel()

	// The peer rejects a nounce lower than one it already accepted, so calls
	// to one endpoint draw and send their nounces one at a time.
	if err := p.lock(cctx); err != nil {
		r.State = TimedOut
		return r.fail(wire.Timeout, "timed out waiting for an earlier call to "+endpoint), nil
	}
	defer p.unlock()

	msg, err := envelope.Build(d.cfg.Keypair, d.counter.Next(), d.cfg.HashAlg, ws, wire.Request)
	if err != nil {
		return r.failErr(err), nil
	}

	invoke := func() (interface{}, error) {
		r.State = AwaitingResponse
		if method == MethodBackward {
			return p.client.Backward(cctx, msg)
		}
		return p.client.Forward(cctx, msg)
	}
	r.State = Sent
	var out interface{}
	if p.breaker != nil {
		out, err = p.breaker.Execute(invoke)
	} else {
		out, err = invoke()
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		r.State = RequestBuilt
		return r.fail(wire.Unavailable, "circuit breaker open for "+endpoint), nil
	}
	if err != nil {
		code, text, transport := mapRPC(cctx, err)
		r.fail(code, text)
		if transport {
			r.State = TransportFailed
			return r, &TransportError{Endpoint: endpoint, Err: err}
		}
		if code == wire.Timeout {
			r.State = TimedOut
		} else {
			r.State = ResponseReceived
		}
		return r, nil
	}

	reply, _ := out.(*wire.TensorMessage)
	r.State = ResponseReceived
	r.Envelope = reply
	return d.accept(r, reply), nil
}

// accept validates a reply: version and payload presence first, then the
// responder's identity, then the reported code, then the tensors.
func (d *Dendrite) accept(r *Response, reply *wire.TensorMessage) *Response {
	if err := envelope.Check(reply, wire.Response); err != nil {
		return r.failErr(err)
	}
	if err := envelope.VerifySender(reply, d.cfg.Scheme, d.cfg.HashAlg, r.Neuron.PublicKey, wire.Response); err != nil {
		return r.failErr(err)
	}
	if reply.ReturnCode != wire.Success {
		return r.fail(reply.ReturnCode, reply.Message)
	}
	outputs, err := tensor.DecodeAll(reply.Tensors, d.cfg.Framework, wire.Response)
	if err != nil {
		return r.failErr(err)
	}
	r.Code, r.Message, r.Tensors = wire.Success, reply.Message, outputs
	return r
}
