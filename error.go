package gsat

import (
	"errors"
	"strings"
)

// Error is the error type returned by most Device methods. Cmd contains the
// AT command name or the name of the operation that failed.
type Error struct {
	Dev string
	Cmd string
	Err error
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Error() string {
	return e.Dev + ": " + e.Cmd + ": " + e.Err.Error()
}

func (e *Error) Timeout() bool {
	_, to := e.Err.(*timeoutError)
	return to
}

// ProtocolError represents an error token returned by the module (ERROR,
// ERROR: INVALID INPUT, INVALID CID, ...). It is returned in the Error.Err
// field. Repeating the same command in the same device state will fail again.
type ProtocolError struct {
	Code string
}

func (e *ProtocolError) Error() string {
	return e.Code
}

// Is makes errors.Is(err, ErrProtocol) true for any *ProtocolError.
func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocol
}

// InvalidCID reports whether the module rejected a connection id it does not
// know about.
func (e *ProtocolError) InvalidCID() bool {
	return strings.Contains(e.Code, "INVALID CID")
}

type timeoutError struct{}

func (e *timeoutError) Error() string { return "timeout" }
func (e *timeoutError) Timeout() bool { return true }

// Errors that may be returned in the Error.Err field.
var (
	// ErrTimeout is returned when the poll budget of a command is exhausted
	// before a final response token was parsed. The command may be retried.
	ErrTimeout error = &timeoutError{}

	// ErrProtocol matches every *ProtocolError.
	ErrProtocol = errors.New("protocol error")

	// ErrMalformedResponse is reported for tokens that cannot be parsed. Such
	// tokens are discarded and parsing resumes at the next delimiter.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrMalformedHex is returned by HexToInt for empty, overlong or non
	// hexadecimal input.
	ErrMalformedHex = errors.New("malformed hex")

	// ErrSocketBusy is returned when another socket owns the data mode of the
	// UART or a receive is pending.
	ErrSocketBusy = errors.New("socket busy")

	// ErrInvalidState is returned when the current socket or device state
	// forbids the requested operation.
	ErrInvalidState = errors.New("invalid state")

	// ErrDataPending is returned when a command cannot be sent because the
	// module pushed a data block that was not read yet.
	ErrDataPending = errors.New("socket data pending")

	// ErrNoSlot is returned when all socket table slots are in use.
	ErrNoSlot = errors.New("no free socket slot")

	ErrBufferFull  = errors.New("buffer full")
	ErrBufferEmpty = errors.New("buffer empty")
	ErrArgType     = errors.New("argument type")
	ErrArg         = errors.New("bad argument")
)

// Outcome is the classified result of a command exchange.
type Outcome uint8

const (
	Success Outcome = iota
	Failure
	NoResponse
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "SUCCESS"
	case Failure:
		return "ERROR"
	case NoResponse:
		return "NO_RESPONSE"
	}
	return "unknown"
}

// OutcomeOf classifies err returned by Cmd. Errors that are neither timeouts
// nor protocol errors (write errors, state errors) are reported as Failure.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, ErrTimeout):
		return NoResponse
	}
	return Failure
}
