package frame

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Command is a parsed request frame.
type Command struct {
	StationID uint16
	UserID    uint16
	// Sync is true for clock synchronization requests, in which case Clock is
	// set and Mode is zero.
	Sync     bool
	Mode     Mode
	Clock    time.Time
	Weekday  byte
	Password string
}

// ParseCommand parses a request frame built by a Codec with the same password
// length. It is the station side of EncodeReadCommand and EncodeSyncCommand.
//
// The read mode is returned as is, without validation.
func (c *Codec) ParseCommand(b []byte) (*Command, error) {
	if len(b) == 0 || b[len(b)-1] != ENQ {
		return nil, fmt.Errorf("%w: missing ENQ terminator", ErrMalformedCommand)
	}

	pwEnd := len(b) - 1
	pwStart := pwEnd - len(c.password)

	switch {
	case len(b) == c.ReadCommandSize() && bytes.Equal(b[:4], []byte{DLE, SYN, DLE, SOH}):
		return &Command{
			StationID: c.order.Uint16(b[offHeaderStation:]),
			UserID:    c.order.Uint16(b[offHeaderUser:]),
			Mode:      Mode(b[HeaderSize]),
			Password:  string(b[pwStart:pwEnd]),
		}, nil

	case len(b) == c.SyncCommandSize() && b[0] == DLE && b[1] == SYN:
		if b[4] != syncCommandCode {
			return nil, fmt.Errorf("%w: sync code 0x%02X", ErrMalformedCommand, b[4])
		}

		clock := b[7 : 7+syncClockSize]
		t, err := c.calendarTime(clock[0], clock[1], clock[2], clock[4], clock[5], clock[6])
		if err != nil {
			return nil, err
		}

		return &Command{
			StationID: c.order.Uint16(b[2:]),
			UserID:    c.order.Uint16(b[5:]),
			Sync:      true,
			Clock:     t,
			Weekday:   clock[3],
			Password:  string(b[pwStart:pwEnd]),
		}, nil

	default:
		return nil, fmt.Errorf("%w: unexpected length %d", ErrMalformedCommand, len(b))
	}
}

// CommandSize returns the full length of the request that starts with head.
// head must hold at least SyncCommandSize bytes.
//
// A sync request may carry DLE SOH as its station id, so the prefix alone is
// ambiguous; the verification sentinel position tells the two apart.
func (c *Codec) CommandSize(head []byte) (int, error) {
	if len(head) < offSyncVerification+2 {
		return 0, fmt.Errorf("%w: %d bytes are too few to size a request", ErrMalformedCommand, len(head))
	}
	if head[0] != DLE || head[1] != SYN {
		return 0, fmt.Errorf("%w: missing DLE SYN prefix", ErrMalformedCommand)
	}

	if head[2] == DLE && head[3] == SOH && c.order.Uint16(head[offSyncVerification:]) != verificationSentinel {
		return c.ReadCommandSize(), nil
	}

	return c.SyncCommandSize(), nil
}

// Dump returns a single-line hex representation of b for debug logging.
func Dump(b []byte) string {
	if len(b) == 0 {
		return "[]"
	}

	var sb strings.Builder
	sb.Grow(len(b)*3 + 8)
	sb.WriteByte('[')
	for i := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(hex.EncodeToString(b[i : i+1]))
	}
	sb.WriteByte(']')

	return sb.String()
}
