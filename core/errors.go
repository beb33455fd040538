package core

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
)

// Kind is the closed taxonomy of errors the core produces.
type Kind int

const (
	KindMalformedRequest Kind = iota
	KindMalformedTensor
	KindNoPeers
	KindPeerCommunication
	KindPeerClosed
	KindTimeout
	KindCancelled
	KindBackendFailure
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindMalformedRequest:
		return "MalformedRequest"
	case KindMalformedTensor:
		return "MalformedTensor"
	case KindNoPeers:
		return "NoPeers"
	case KindPeerCommunication:
		return "PeerCommunication"
	case KindPeerClosed:
		return "PeerClosed"
	case KindTimeout:
		return "Timeout"
	case KindCancelled:
		return "Cancelled"
	case KindBackendFailure:
		return "BackendFailure"
	default:
		return "Internal"
	}
}

// GRPCCode maps a Kind to the RPC status code surfaced to callers.
func (k Kind) GRPCCode() codes.Code {
	switch k {
	case KindMalformedRequest, KindMalformedTensor:
		return codes.InvalidArgument
	case KindNoPeers:
		return codes.FailedPrecondition
	case KindPeerCommunication:
		return codes.Unavailable
	case KindPeerClosed:
		return codes.FailedPrecondition
	case KindTimeout:
		return codes.DeadlineExceeded
	case KindCancelled:
		return codes.Canceled
	case KindBackendFailure, KindInternal:
		return codes.Internal
	default:
		return codes.Unknown
	}
}

// Error is the core's typed error, carrying a Kind and, where relevant, the
// id of the peer involved.
type Error struct {
	Kind   Kind
	PeerID string
	Cause  error
}

func newError(kind Kind, peerID string, cause error) *Error {
	return &Error{Kind: kind, PeerID: peerID, Cause: cause}
}

func (e *Error) Error() string {
	if e.PeerID != "" {
		return fmt.Sprintf("%s (peer %s): %v", e.Kind, e.PeerID, e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// AsCoreError extracts a *Error from err, if any is present in its chain.
func AsCoreError(err error) (*Error, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// ErrNoPeers constructs the NoPeers error returned when peer selection
// finds an empty pool.
func ErrNoPeers() error {
	return newError(KindNoPeers, "", errors.New("no peers available for selection"))
}

// ErrPeerClosed constructs the PeerClosed error for peerID.
func ErrPeerClosed(peerID string) error {
	return newError(KindPeerClosed, peerID, errors.New("peer handle closed"))
}

// ErrPeerCommunication wraps a transport failure talking to peerID.
func ErrPeerCommunication(peerID string, cause error) error {
	return newError(KindPeerCommunication, peerID, cause)
}

// ErrBackendFailure wraps a failure raised by the inference backend.
func ErrBackendFailure(cause error) error {
	return newError(KindBackendFailure, "", cause)
}

// ErrMalformedRequest wraps a local validation failure.
func ErrMalformedRequest(cause error) error {
	return newError(KindMalformedRequest, "", cause)
}

// ErrTimeout constructs the Timeout error.
func ErrTimeout() error {
	return newError(KindTimeout, "", errors.New("deadline exceeded"))
}

// ErrCancelled constructs the Cancelled error.
func ErrCancelled() error {
	return newError(KindCancelled, "", errors.New("operation cancelled"))
}

// ErrInternal wraps an invariant violation.
func ErrInternal(cause error) error {
	return newError(KindInternal, "", cause)
}
