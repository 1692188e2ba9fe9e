package common

import (
	"fmt"

	"github.com/go-errors/errors"
)

// Kind identifies which of the error taxonomy buckets a SwapError belongs
// to. Callers branch on Kind to decide how to propagate a failure; the
// message text is for operators, the Kind is for code.
type Kind uint8

const (
	// CryptoInvalid covers DLEQ verification failures, signature
	// verification failures, curve-point parse errors, and a failed
	// adaptor-signature recovery.
	CryptoInvalid Kind = iota

	// ProtocolViolation covers an out-of-order or malformed message
	// received from Bob.
	ProtocolViolation

	// ChainIo covers a wallet RPC that's unreachable, or a broadcast
	// that was rejected by the network.
	ChainIo

	// TimelockElapsed is not a true error: it's how a timelock race
	// reports that it was won by the timelock side rather than the
	// awaited event.
	TimelockElapsed

	// Fatal covers a persistence write failure, seed I/O failure, or
	// violated internal invariant. The process should not continue.
	Fatal
)

func (k Kind) String() string {
	switch k {
	case CryptoInvalid:
		return "crypto_invalid"
	case ProtocolViolation:
		return "protocol_violation"
	case ChainIo:
		return "chain_io"
	case TimelockElapsed:
		return "timelock_elapsed"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// SwapError wraps an underlying error with the taxonomy Kind the error
// handling design (spec §7) requires, plus a stack trace captured at the
// point the error was classified.
type SwapError struct {
	kind  Kind
	swapID string
	err   *errors.Error
}

// NewSwapError classifies err as belonging to kind, attaching swapID for
// the per-swap reporting spec §7 requires ("user-visible failures are
// reported per-swap with the swap_id").
func NewSwapError(kind Kind, swapID string, err error) *SwapError {
	return &SwapError{
		kind:   kind,
		swapID: swapID,
		err:    errors.Wrap(err, 1),
	}
}

// Errorf builds a SwapError from a format string, the same way
// channeldb's sentinel errors are built with fmt.Errorf, but tagged with
// a Kind.
func Errorf(kind Kind, swapID, format string, args ...interface{}) *SwapError {
	return NewSwapError(kind, swapID, fmt.Errorf(format, args...))
}

// Kind reports which taxonomy bucket this error belongs to.
func (e *SwapError) Kind() Kind {
	return e.kind
}

func (e *SwapError) Error() string {
	if e.swapID == "" {
		return fmt.Sprintf("[%s] %s", e.kind, e.err.Error())
	}
	return fmt.Sprintf("[%s] swap_id=%s: %s", e.kind, e.swapID, e.err.Error())
}

// Unwrap allows errors.Is/errors.As to see through to the underlying cause.
func (e *SwapError) Unwrap() error {
	return e.err.Err
}

// ErrorStack returns the full stack trace captured when this error was
// classified, useful for Fatal-kind errors surfaced at process exit.
func (e *SwapError) ErrorStack() string {
	return e.err.ErrorStack()
}

// IsRetryable reports whether the propagation rules of spec §7 call for
// retrying this error with exponential backoff rather than aborting the
// swap.
func (e *SwapError) IsRetryable() bool {
	return e.kind == ChainIo
}

// IsFatal reports whether the daemon process should terminate on this
// error, per spec §7's Fatal handling.
func (e *SwapError) IsFatal() bool {
	return e.kind == Fatal
}
