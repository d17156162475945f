package frame

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// AlarmState is the per-channel alarm indicator of an instantaneous telemetry frame.
type AlarmState byte

const (
	AlarmNormal AlarmState = 0
	AlarmHigh   AlarmState = 1 // upper threshold exceeded
	AlarmLow    AlarmState = 2 // lower threshold exceeded
)

func (a AlarmState) String() string {
	switch a {
	case AlarmNormal:
		return "normal"
	case AlarmHigh:
		return "high"
	case AlarmLow:
		return "low"
	default:
		return fmt.Sprintf("alarm(%d)", byte(a))
	}
}

// Telemetry is a decoded telemetry frame.
type Telemetry struct {
	StationID    uint16
	UserID       uint16
	Command      Mode
	DataLength   uint16
	ChannelCount int
	Timestamp    time.Time
	Values       []float64

	// SampleIndices and AlarmStates are only filled for instantaneous frames
	// with at most 24 channels; other modes leave the trailing block unused.
	SampleIndices []uint16
	AlarmStates   []AlarmState

	// Checksum is the raw checksum field. It is not verified.
	Checksum [2]byte
}

// DecodeTelemetry decodes every field of a telemetry frame.
//
// The header is decoded but not validated; use ValidateHeader for that.
func (c *Codec) DecodeTelemetry(b []byte) (*Telemetry, error) {
	if Classify(b) != ClassTelemetry {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidLength, len(b), TelemetryFrameSize)
	}

	ts, err := c.DecodeTimestamp(b)
	if err != nil {
		return nil, err
	}

	count, err := DecodeChannelCount(b)
	if err != nil {
		return nil, err
	}

	values, err := DecodeMeasurements(b, count)
	if err != nil {
		return nil, err
	}

	tm := &Telemetry{
		StationID:    c.order.Uint16(b[offHeaderStation:]),
		UserID:       c.order.Uint16(b[offHeaderUser:]),
		Command:      Mode(b[offCommand]),
		DataLength:   c.order.Uint16(b[offDataLength:]),
		ChannelCount: count,
		Timestamp:    ts,
		Values:       values,
	}
	copy(tm.Checksum[:], b[offChecksum:offChecksum+2])

	if tm.Command == ModeInstantaneous && count <= trailerChannels {
		tm.SampleIndices = make([]uint16, count)
		tm.AlarmStates = make([]AlarmState, count)
		for i := 0; i < count; i++ {
			tm.SampleIndices[i] = c.order.Uint16(b[offSampleIndices+2*i:])
			tm.AlarmStates[i] = AlarmState(b[offAlarmStates+i])
		}
	}

	return tm, nil
}

// EncodeTelemetry builds a telemetry frame, as sent by a station, from tm.
//
// DataLength is computed from the channel count when zero. The checksum field
// is copied from tm as is.
func (c *Codec) EncodeTelemetry(tm *Telemetry) ([]byte, error) {
	count := len(tm.Values)
	if count > MaxChannels {
		return nil, fmt.Errorf("%w: got %d, want 0-%d", ErrChannelOutOfRange, count, MaxChannels)
	}

	ts := tm.Timestamp.In(c.loc)
	year := ts.Year() - YearOffset
	if year < 0 || year > math.MaxUint8 {
		return nil, fmt.Errorf("%w: year %d", ErrInvalidTimestamp, ts.Year())
	}

	dataLength := tm.DataLength
	if dataLength == 0 {
		dataLength = uint16(count * measurementSize) //nolint:gosec // bounded by MaxChannels
	}

	b := make([]byte, TelemetryFrameSize)
	copy(b, c.ExpectedHeader(tm.StationID, tm.UserID))
	b[offCommand] = byte(tm.Command)
	c.order.PutUint16(b[offDataLength:], dataLength)
	b[offChannelCount] = byte(count)

	b[offYear] = byte(year)
	b[offMonth] = byte(ts.Month())
	b[offDay] = byte(ts.Day())
	b[offHour] = byte(ts.Hour())
	b[offMinute] = byte(ts.Minute())
	b[offSecond] = byte(ts.Second())

	b[offDataDLE] = DLE
	b[offDataSTX] = STX

	for i, v := range tm.Values {
		off := offMeasurements + i*measurementSize
		binary.BigEndian.PutUint32(b[off:], math.Float32bits(float32(v)))
	}

	if count <= trailerChannels {
		for i := 0; i < count && i < len(tm.SampleIndices); i++ {
			c.order.PutUint16(b[offSampleIndices+2*i:], tm.SampleIndices[i])
		}
		for i := 0; i < count && i < len(tm.AlarmStates); i++ {
			b[offAlarmStates+i] = byte(tm.AlarmStates[i])
		}
	}

	// With more than 42 channels the measurement block reaches into the trailer.
	if offMeasurements+count*measurementSize <= offTrailerDLE {
		b[offTrailerDLE] = DLE
		b[offTrailerETX] = ETX
		copy(b[offChecksum:], tm.Checksum[:])
		b[offTerminator] = ENQ
	}

	return b, nil
}

// EncodeAck builds an acknowledgement frame, as sent by a station. A nil err
// produces a positive acknowledgement; a *DeviceError produces a rejection
// carrying its code.
func (c *Codec) EncodeAck(stationID, userID uint16, command byte, deviceErr *DeviceError) []byte {
	b := make([]byte, AckFrameSize)
	copy(b, c.ExpectedHeader(stationID, userID))
	b[offCommand] = command
	b[offAckStatus] = EOT
	if deviceErr != nil {
		b[offAckCode] = deviceErr.Code
		b[offAckStatus] = NAK
	}
	b[offAckTail] = ENQ

	return b
}
