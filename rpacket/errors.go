package rpacket

import (
	"errors"

	"github.com/jfortiz/radiuscore/rerrors"
)

var (
	errUnknownAttribute = errors.New("unknown attribute")
	errBadLength        = errors.New("bad attribute length")
	errTruncated        = errors.New("truncated packet")
	errBadAuthenticator = errors.New("authenticator mismatch")
	errMissingAuthToken = errors.New("message-authenticator mismatch")
	errPacketTooLarge   = errors.New("packet exceeds 4096 bytes")
	errPacketTooSmall   = errors.New("packet shorter than 20 byte header")
)

// asDecodeError wraps err as rerrors.ErrDecode, the classification the
// retransmission controller and transports key off of.
func asDecodeError(err error) error {
	if err == nil {
		return nil
	}
	return errorsJoinf(rerrors.ErrDecode, err)
}

func asEncodeError(err error) error {
	if err == nil {
		return nil
	}
	return errorsJoinf(rerrors.ErrEncode, err)
}

// errorsJoinf formats like fmt.Errorf("%s: %w: %w", ...) would if Go
// allowed two %w verbs prior to 1.20's errors.Join; used here so both
// the package sentinel and the generic classification sentinel satisfy
// errors.Is against the wrapped error.
func errorsJoinf(class, cause error) error {
	return &classifiedError{class: class, cause: cause}
}

type classifiedError struct {
	class error
	cause error
}

func (e *classifiedError) Error() string {
	return e.class.Error() + ": " + e.cause.Error()
}

func (e *classifiedError) Unwrap() []error {
	return []error{e.class, e.cause}
}
