// Package rerrors defines the error taxonomy shared by the packet codec,
// transports, and retransmission controller. Each kind is a sentinel value
// that call sites wrap with fmt.Errorf("...: %w", Err...) and callers
// unwrap with errors.Is, in the style the teacher's core/config.go uses
// for its own wrapped errors (never a custom error-code type).
package rerrors

import "errors"

var (
	// ErrEncode covers serialization or cryptographic failures while
	// building an outbound packet. Never retried.
	ErrEncode = errors.New("encode error")

	// ErrDecode covers bad length, bad attribute framing, or an
	// authenticator mismatch while parsing an inbound packet. Never
	// retried.
	ErrDecode = errors.New("decode error")

	// ErrDuplicateIdentifier is returned by a stream transport when the
	// caller's chosen identifier is already pending. Never retried.
	ErrDuplicateIdentifier = errors.New("identifier already pending")

	// ErrConnectTimeout covers a connect-plus-handshake that exceeded
	// the configured connection timeout. Retryable when auto-reconnect
	// is enabled.
	ErrConnectTimeout = errors.New("connect timeout")

	// ErrConnectionLost covers a socket or TLS error occurring mid
	// session. Retryable when auto-reconnect is enabled.
	ErrConnectionLost = errors.New("connection lost")

	// ErrAttemptTimeout covers a response not received within the
	// strategy's per-attempt timeout. Retryable up to max attempts.
	ErrAttemptTimeout = errors.New("attempt timeout")

	// ErrDeadlineExceeded covers the retransmission controller's total
	// wall-clock budget elapsing. Never retried.
	ErrDeadlineExceeded = errors.New("deadline exceeded")

	// ErrRetriesExhausted covers max_attempts being reached without a
	// successful response. Never retried further.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrTransportClosed covers a request accepted by a transport that
	// closed before a reply arrived. Never retried.
	ErrTransportClosed = errors.New("transport closed")

	// ErrReconnectExceeded covers max_reconnect_attempts being reached.
	// Fatal, surfaces directly.
	ErrReconnectExceeded = errors.New("reconnect attempts exceeded")

	// ErrNoFreeIdentifier covers a full 256-slot sweep finding no free
	// packet identifier on a stream transport.
	ErrNoFreeIdentifier = errors.New("no free identifier available")
)

// RetriesExhaustedError wraps the last transient error observed across all
// attempts, so callers can inspect why the retransmission controller gave
// up without losing the ErrRetriesExhausted classification.
type RetriesExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *RetriesExhaustedError) Error() string {
	if e.LastErr == nil {
		return ErrRetriesExhausted.Error()
	}
	return ErrRetriesExhausted.Error() + ": " + e.LastErr.Error()
}

func (e *RetriesExhaustedError) Unwrap() error {
	return ErrRetriesExhausted
}

// IsTransient reports whether err belongs to the class of failures the
// retransmission controller is allowed to retry (spec §4.5.2/§7): socket
// timeouts, connection resets, and TLS handshake failures on a
// reconnecting stream. Encode/decode errors and duplicate-identifier
// errors are deliberately excluded.
func IsTransient(err error) bool {
	switch {
	case errors.Is(err, ErrAttemptTimeout),
		errors.Is(err, ErrConnectTimeout),
		errors.Is(err, ErrConnectionLost):
		return true
	default:
		return false
	}
}
