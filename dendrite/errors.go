package dendrite

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/parall4x/bittensor/wire"
)

// TransportError reports that the peer could not be reached at all. It sits
// outside the ReturnCode space; fan-out helpers report it as Unavailable.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("dendrite: transport to %s failed: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func isTransportFailure(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	return ok && st.Code() == codes.Unavailable
}

// mapRPC turns a failed gRPC invocation into a return code. transport is true
// when the peer was unreachable rather than answering badly.
func mapRPC(ctx context.Context, err error) (code wire.ReturnCode, msg string, transport bool) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return wire.Timeout, "deadline exceeded before the peer answered", false
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return wire.Timeout, "call abandoned by caller", false
	}
	st, ok := status.FromError(err)
	if !ok {
		return wire.UnknownException, err.Error(), false
	}
	switch st.Code() {
	case codes.DeadlineExceeded:
		return wire.Timeout, st.Message(), false
	case codes.Canceled:
		return wire.Timeout, st.Message(), false
	case codes.Unavailable:
		return wire.Unavailable, st.Message(), true
	case codes.ResourceExhausted:
		// Message size limits and server-side load shedding.
		return wire.Backoff, st.Message(), false
	case codes.Unimplemented:
		return wire.NotImplemented, st.Message(), false
	case codes.Internal:
		// Includes responses the codec could not decode.
		return wire.InvalidResponse, st.Message(), false
	default:
		return wire.UnknownException, st.Message(), false
	}
}
