package axon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/parall4x/bittensor/envelope"
	"github.com/parall4x/bittensor/observability"
	"github.com/parall4x/bittensor/rpc"
	"github.com/parall4x/bittensor/tensor"
	"github.com/parall4x/bittensor/wire"
)

const (
	methodForward  = "Forward"
	methodBackward = "Backward"
)

func (a *Axon) Forward(ctx context.Context, req *wire.TensorMessage) (*wire.TensorMessage, error) {
	return a.process(ctx, methodForward, req), nil
}

func (a *Axon) Backward(ctx context.Context, req *wire.TensorMessage) (*wire.TensorMessage, error) {
	return a.process(ctx, methodBackward, req), nil
}

// Malformed answers request bytes that do not decode as a TensorMessage.
func (a *Axon) Malformed(_ context.Context, method string, err error) *wire.TensorMessage {
	name := methodForward
	if method == rpc.BackwardMethod {
		name = methodBackward
	}
	start := time.Now()
	resp := a.respond(nil, wire.TENSOR, wire.Wrap(wire.InvalidRequest, "malformed envelope", err))
	a.record(name, "", resp, time.Since(start))
	return resp
}

func (a *Axon) process(ctx context.Context, method string, req *wire.TensorMessage) *wire.TensorMessage {
	start := time.Now()
	outputs, modality, err := a.run(ctx, method, req)
	resp := a.respond(outputs, modality, err)
	var sender string
	if req != nil {
		sender = req.PublicKey
	}
	a.record(method, sender, resp, time.Since(start))
	return resp
}

// run executes the request pipeline. The earliest failing stage decides the code.
func (a *Axon) run(ctx context.Context, method string, req *wire.TensorMessage) ([]*tensor.Tensor, wire.Modality, error) {
	if a.draining.Load() {
		return nil, 0, wire.Errorf(wire.Unavailable, "axon is shutting down")
	}
	if err := envelope.Check(req, wire.Request); err != nil {
		return nil, 0, err
	}
	if err := a.auth.Verify(req.PublicKey, req.Nounce, req.Signature); err != nil {
		return nil, 0, err
	}
	// Buckets are keyed by verified identity only, so unsigned traffic that
	// claims someone else's key cannot spend their budget.
	if a.limiter != nil && !a.limiter.Allow(senderKey(req.PublicKey)) {
		return nil, 0, wire.Errorf(wire.Backoff, "rate limit exceeded")
	}

	modality, err := envelope.Modality(req)
	if err != nil {
		return nil, 0, err
	}
	syn, ok := a.synapse(modality)
	if !ok {
		return nil, modality, wire.Errorf(wire.NotServingSynapse, "no synapse serves %s", modality)
	}
	var bsyn BackwardSynapse
	payload := req.Tensors
	var gradPayload []*wire.Tensor
	if method == methodBackward {
		if bsyn, ok = syn.(BackwardSynapse); !ok {
			return nil, modality, wire.Errorf(wire.NotImplemented, "%s synapse does not implement backward", modality)
		}
		if payload, gradPayload, err = envelope.SplitBackward(req.Tensors); err != nil {
			return nil, modality, err
		}
	}

	if !a.acquire() {
		return nil, modality, wire.Errorf(wire.NucleusFull, "processing queue is full")
	}
	inputs, err := tensor.DecodeAll(payload, a.cfg.Framework, wire.Request)
	if err != nil {
		a.release()
		return nil, modality, err
	}
	var grads []*tensor.Tensor
	if bsyn != nil {
		if grads, err = tensor.DecodeAll(gradPayload, a.cfg.Framework, wire.Request); err != nil {
			a.release()
			return nil, modality, err
		}
	}

	outputs, err := a.invoke(ctx, func(ctx context.Context) ([]*tensor.Tensor, error) {
		if bsyn != nil {
			return bsyn.Backward(ctx, inputs, grads)
		}
		return syn.Forward(ctx, inputs)
	})
	if err != nil {
		return nil, modality, err
	}
	if len(outputs) == 0 {
		return nil, modality, wire.Errorf(wire.EmptyResponse, "synapse returned no tensors")
	}
	return outputs, modality, nil
}

type result struct {
	out []*tensor.Tensor
	err error
}

// invoke runs fn under the effective deadline. It must be called holding a
// queue slot; the slot is released when fn returns, which may be after invoke
// has already reported NucleusTimeout.
func (a *Axon) invoke(ctx context.Context, fn func(context.Context) ([]*tensor.Tensor, error)) ([]*tensor.Tensor, error) {
	timeout := a.cfg.Timeout
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < timeout {
			timeout = rem
		}
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		var r result
		defer func() {
			if p := recover(); p != nil {
				r = result{err: wire.Errorf(wire.UnknownException, "synapse panic: %v", p)}
			}
			a.release()
			done <- r
		}()
		r.out, r.err = fn(cctx)
	}()

	select {
	case r := <-done:
		return r.out, synapseError(r.err)
	case <-cctx.Done():
		return nil, wire.Errorf(wire.NucleusTimeout, "synapse did not answer within %s", timeout)
	}
}

func synapseError(err error) error {
	if err == nil {
		return nil
	}
	var we *wire.Error
	if errors.As(err, &we) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return wire.Wrap(wire.NucleusTimeout, "synapse timed out", err)
	}
	return wire.Wrap(wire.UnknownException, "synapse failed", err)
}

// respond encodes outputs and signs the envelope. Encoding failures replace
// the outcome with the corresponding Response* code.
func (a *Axon) respond(outputs []*tensor.Tensor, modality wire.Modality, err error) *wire.TensorMessage {
	var ws []*wire.Tensor
	if err == nil {
		ws, err = tensor.EncodeAll(outputs, a.cfg.Framework, modality, wire.Response)
	}
	var opts []envelope.Option
	if err != nil {
		ws = nil
		opts = append(opts, envelope.WithError(err))
	}
	resp, berr := envelope.Build(a.cfg.Keypair, a.counter.Next(), a.cfg.HashAlg, ws, wire.Response, opts...)
	if berr != nil {
		// Build only fails when signing fails, so the fallback goes out
		// unsigned. Callers that check the responder's identity see it as
		// InvalidResponse.
		a.log.Error().Err(berr).Msg("cannot build response envelope")
		return &wire.TensorMessage{
			Version:    wire.ProtocolVersion,
			ReturnCode: wire.UnknownException,
			Message:    fmt.Sprintf("cannot build response: %v", berr),
		}
	}
	return resp
}

func (a *Axon) record(method, sender string, resp *wire.TensorMessage, elapsed time.Duration) {
	code := resp.GetReturnCode()
	observability.RecordAxonCall(method, code, elapsed)

	ev := a.log.Debug()
	if code != wire.Success {
		ev = a.log.Info()
	}
	ev.Str("method", method).
		Str("sender", shortKey(sender)).
		Str("code", code.String()).
		Dur("elapsed", elapsed).
		Str("message", resp.Message).
		Msg("call")
}

func senderKey(k string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(k), "0x"))
}

func shortKey(k string) string {
	k = senderKey(k)
	if len(k) > 12 {
		return k[:12]
	}
	return k
}
