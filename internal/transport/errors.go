// internal/transport/errors.go
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"

	"github.com/goburrow/modbus"
)

// Connection-class failures. All three are retryable during connect.
// Use errors.Is to test for them; the underlying cause stays wrapped.
var (
	ErrConnectionRefused = errors.New("transport: connection refused")
	ErrTimeout           = errors.New("transport: timeout")
	ErrConnection        = errors.New("transport: connection error")
)

var (
	ErrInvalidRequest = errors.New("transport: invalid request")
	ErrShortResponse  = errors.New("transport: short response")
)

// ProtocolError is a Modbus exception response reported by the device.
// It is never retried.
type ProtocolError struct {
	Function  byte
	Exception byte
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("modbus exception: fc=%d code=%d (%s)", e.Function, e.Exception, exceptionText(e.Exception))
}

// Code returns the raw exception code.
func (e *ProtocolError) Code() uint16 {
	return uint16(e.Exception)
}

// IsRetryable reports whether err is a connection-class failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConnectionRefused) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConnection)
}

// IsProtocol reports whether err carries a device exception response.
func IsProtocol(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// classify maps library and network errors onto the transport taxonomy.
// Anything it does not recognise is returned unchanged (unexpected).
func classify(err error) error {
	if err == nil {
		return nil
	}
	if IsProtocol(err) || IsRetryable(err) {
		return err
	}

	var me *modbus.ModbusError
	if errors.As(err, &me) {
		return &ProtocolError{Function: me.FunctionCode & 0x7F, Exception: me.ExceptionCode}
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("%w: %w", ErrConnectionRefused, err)
	case isTimeout(err):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case isConnectionError(err):
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	return err
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// isConnectionError includes io.EOF, which goburrow/modbus returns when the peer drops the link.
func isConnectionError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH)
}

// outcome is the metrics label for a classified error.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrConnectionRefused):
		return "refused"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrConnection):
		return "connection"
	case IsProtocol(err):
		return "protocol"
	default:
		return "unexpected"
	}
}

func exceptionText(code byte) string {
	switch code {
	case modbus.ExceptionCodeIllegalFunction:
		return "illegal function"
	case modbus.ExceptionCodeIllegalDataAddress:
		return "illegal data address"
	case modbus.ExceptionCodeIllegalDataValue:
		return "illegal data value"
	case modbus.ExceptionCodeServerDeviceFailure:
		return "server device failure"
	case modbus.ExceptionCodeAcknowledge:
		return "acknowledge"
	case modbus.ExceptionCodeServerDeviceBusy:
		return "server device busy"
	case modbus.ExceptionCodeMemoryParityError:
		return "memory parity error"
	case modbus.ExceptionCodeGatewayPathUnavailable:
		return "gateway path unavailable"
	case modbus.ExceptionCodeGatewayTargetDeviceFailedToRespond:
		return "gateway target failed to respond"
	default:
		return "unknown"
	}
}
