package frame

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Class classifies a response purely by its byte count.
type Class int

const (
	ClassInvalid   Class = iota // any length other than the two below
	ClassAck                    // AckFrameSize bytes
	ClassTelemetry              // TelemetryFrameSize bytes
)

func (c Class) String() string {
	switch c {
	case ClassAck:
		return "ack"
	case ClassTelemetry:
		return "telemetry"
	default:
		return "invalid"
	}
}

// Codec encodes request frames and decodes response frames.
//
// A Codec holds only immutable protocol constants and is safe for concurrent use.
type Codec struct {
	order    binary.ByteOrder
	password []byte
	loc      *time.Location
}

// NewCodec creates a Codec.
//
// order is the byte order of the station and user id fields and must match the
// station configuration; nil means big-endian. password is sent in clear as
// ASCII. loc is the time zone of the station clock; nil means UTC.
func NewCodec(order binary.ByteOrder, password string, loc *time.Location) (*Codec, error) {
	for i := 0; i < len(password); i++ {
		if password[i] < 0x20 || password[i] > 0x7E {
			return nil, ErrInvalidPassword
		}
	}

	if order == nil {
		order = binary.BigEndian
	}
	if loc == nil {
		loc = time.UTC
	}

	return &Codec{order: order, password: []byte(password), loc: loc}, nil
}

// ByteOrder returns the byte order of the id fields.
func (c *Codec) ByteOrder() binary.ByteOrder { return c.order }

// Location returns the time zone of the station clock.
func (c *Codec) Location() *time.Location { return c.loc }

func (c *Codec) appendUint16(buf []byte, v uint16) []byte {
	var b [2]byte
	c.order.PutUint16(b[:], v)

	return append(buf, b[:]...)
}

func (c *Codec) appendTrailer(buf []byte) []byte {
	buf = binary.BigEndian.AppendUint16(buf, verificationSentinel)
	buf = append(buf, c.password...)

	return append(buf, ENQ)
}

// ReadCommandSize returns the length of every read command built by this codec.
func (c *Codec) ReadCommandSize() int { return readFixedSize + len(c.password) }

// SyncCommandSize returns the length of every sync command built by this codec.
func (c *Codec) SyncCommandSize() int { return syncFixedSize + len(c.password) }

// EncodeReadCommand builds a read request for the given mode:
//
//	DLE SYN DLE SOH | station(2) | user(2) | mode(1) | 0x00 x14 | 0xFFFF | password | ENQ
//
// The leading eight bytes equal ExpectedHeader(stationID, userID).
func (c *Codec) EncodeReadCommand(stationID, userID uint16, mode Mode) ([]byte, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCommand, mode)
	}

	buf := make([]byte, 0, c.ReadCommandSize())
	buf = c.appendHeader(buf, stationID, userID)
	buf = append(buf, byte(mode))
	buf = append(buf, make([]byte, readPaddingSize)...)

	return c.appendTrailer(buf), nil
}

// EncodeSyncCommand builds a clock synchronization request:
//
//	DLE SYN | station(2) | 0x00 | user(2) | YY MM DD WD hh mm ss | 0x00 x7 | 0xFFFF | password | ENQ
//
// t is converted to the codec location first. WD is the ISO weekday
// (Monday = 1, Sunday = 7).
func (c *Codec) EncodeSyncCommand(stationID, userID uint16, t time.Time) ([]byte, error) {
	t = t.In(c.loc)

	year := t.Year() - YearOffset
	if year < 0 || year > math.MaxUint8 {
		return nil, fmt.Errorf("%w: year %d out of range [%d, %d]", ErrInvalidTimestamp, t.Year(), YearOffset, YearOffset+math.MaxUint8)
	}

	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7
	}

	buf := make([]byte, 0, c.SyncCommandSize())
	buf = append(buf, DLE, SYN)
	buf = c.appendUint16(buf, stationID)
	buf = append(buf, syncCommandCode)
	buf = c.appendUint16(buf, userID)
	buf = append(buf,
		byte(year),
		byte(t.Month()),
		byte(t.Day()),
		byte(weekday),
		byte(t.Hour()),
		byte(t.Minute()),
		byte(t.Second()),
	)
	buf = append(buf, make([]byte, syncPaddingSize)...)

	return c.appendTrailer(buf), nil
}

func (c *Codec) appendHeader(buf []byte, stationID, userID uint16) []byte {
	buf = append(buf, DLE, SYN, DLE, SOH)
	buf = c.appendUint16(buf, stationID)

	return c.appendUint16(buf, userID)
}

// ExpectedHeader returns the HeaderSize-byte prefix a valid response to a
// request from userID to stationID starts with.
func (c *Codec) ExpectedHeader(stationID, userID uint16) []byte {
	return c.appendHeader(make([]byte, 0, HeaderSize), stationID, userID)
}

// Classify classifies b by length only; the content is not inspected.
func Classify(b []byte) Class {
	switch len(b) {
	case AckFrameSize:
		return ClassAck
	case TelemetryFrameSize:
		return ClassTelemetry
	default:
		return ClassInvalid
	}
}

// ValidateHeader reports whether b starts with ExpectedHeader(stationID, userID).
func (c *Codec) ValidateHeader(b []byte, stationID, userID uint16) bool {
	if len(b) < HeaderSize {
		return false
	}

	return bytes.Equal(b[:HeaderSize], c.ExpectedHeader(stationID, userID))
}

// DecodeAck decodes an acknowledgement frame.
//
// It returns nil when the station acknowledged the command, a *DeviceError
// carrying the station error code when it rejected it, and ErrUnrecognizedAck
// for any other status byte.
func DecodeAck(b []byte) error {
	if Classify(b) != ClassAck {
		return fmt.Errorf("%w: got %d, want %d", ErrInvalidLength, len(b), AckFrameSize)
	}

	switch status := b[offAckStatus]; status {
	case EOT:
		return nil
	case NAK:
		return &DeviceError{Code: b[offAckCode]}
	default:
		return fmt.Errorf("%w: status byte 0x%02X", ErrUnrecognizedAck, status)
	}
}

// DecodeTimestamp reconstructs the station clock from the packed calendar fields.
//
// Values the calendar cannot represent (month 13, February 30, hour 24...) are
// rejected with ErrInvalidTimestamp rather than normalized.
func (c *Codec) DecodeTimestamp(b []byte) (time.Time, error) {
	if len(b) <= offSecond {
		return time.Time{}, fmt.Errorf("%w: frame too short (%d bytes)", ErrInvalidTimestamp, len(b))
	}

	return c.calendarTime(b[offYear], b[offMonth], b[offDay], b[offHour], b[offMinute], b[offSecond])
}

func (c *Codec) calendarTime(yy, mm, dd, hh, mi, ss byte) (time.Time, error) {
	year := int(yy) + YearOffset
	month := int(mm)
	day := int(dd)
	hour, minute, second := int(hh), int(mi), int(ss)

	if month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("%w: month %d", ErrInvalidTimestamp, month)
	}
	if day < 1 || day > daysIn(year, time.Month(month)) {
		return time.Time{}, fmt.Errorf("%w: day %d of %d-%02d", ErrInvalidTimestamp, day, year, month)
	}
	if hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, fmt.Errorf("%w: time %02d:%02d:%02d", ErrInvalidTimestamp, hour, minute, second)
	}

	return time.Date(year, time.Month(month), day, hour, minute, second, 0, c.loc), nil
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DecodeChannelCount returns the number of configured channels of a telemetry frame.
func DecodeChannelCount(b []byte) (int, error) {
	if len(b) <= offChannelCount {
		return 0, fmt.Errorf("%w: frame too short (%d bytes)", ErrInvalidLength, len(b))
	}

	return int(b[offChannelCount]), nil
}

// DecodeMeasurements decodes count big-endian IEEE-754 single precision values
// starting right after the header, channel count and timestamp fields.
func DecodeMeasurements(b []byte, count int) ([]float64, error) {
	if count < 0 || count > MaxChannels {
		return nil, fmt.Errorf("%w: got %d, want 0-%d", ErrChannelOutOfRange, count, MaxChannels)
	}

	end := offMeasurements + count*measurementSize
	if end > len(b) {
		return nil, fmt.Errorf("%w: %d channels need %d bytes, frame has %d", ErrChannelOutOfRange, count, end, len(b))
	}

	values := make([]float64, count)
	for i := range values {
		off := offMeasurements + i*measurementSize
		values[i] = float64(math.Float32frombits(binary.BigEndian.Uint32(b[off : off+measurementSize])))
	}

	return values, nil
}
