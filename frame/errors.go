package frame

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCommand indicates a read mode outside 1 and [12, 22].
	ErrInvalidCommand = errors.New("frame: invalid command code, should be 1 or in range of [12, 22]")

	// ErrInvalidPassword indicates a password that is not printable ASCII.
	ErrInvalidPassword = errors.New("frame: password must be printable ASCII")

	// ErrInvalidTimestamp indicates a date-time that cannot be packed into, or
	// reconstructed from, the one-byte calendar fields.
	ErrInvalidTimestamp = errors.New("frame: invalid timestamp")
)

var (
	// ErrInvalidLength indicates a response whose size is neither
	// AckFrameSize nor TelemetryFrameSize.
	ErrInvalidLength = errors.New("frame: invalid response length")

	// ErrHeaderMismatch indicates a response whose first HeaderSize bytes do not
	// match the header of the addressed station and user.
	ErrHeaderMismatch = errors.New("frame: response header mismatch")

	// ErrUnrecognizedAck indicates an acknowledgement frame whose status byte is
	// neither EOT nor NAK.
	ErrUnrecognizedAck = errors.New("frame: unrecognized acknowledgement")

	// ErrChannelOutOfRange indicates a channel count whose measurement block
	// does not fit in the frame.
	ErrChannelOutOfRange = errors.New("frame: channel count out of range")

	// ErrMalformedCommand indicates a request frame that cannot be parsed.
	ErrMalformedCommand = errors.New("frame: malformed command frame")
)

// DeviceError is returned when a station explicitly rejects a command with an
// error code.
type DeviceError struct {
	Code uint8
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("frame: device reported error code %d", e.Code)
}
