package frame

// Control characters used by the Meteodata protocol.
const (
	SOH byte = 0x01 // Start of Heading
	STX byte = 0x02 // Start of Text
	ETX byte = 0x03 // End of Text
	EOT byte = 0x04 // End of Transmission, positive acknowledgement
	ENQ byte = 0x05 // Enquiry, frame terminator
	DLE byte = 0x10 // Data Link Escape
	NAK byte = 0x15 // Negative acknowledgement
	SYN byte = 0x16 // Synchronous Idle
)

// Response frame sizes.
const (
	// AckFrameSize is the size of the acknowledgement/error frame returned for
	// non-telemetry commands, including clock synchronization.
	AckFrameSize = 13
	// TelemetryFrameSize is the size of the telemetry frame returned for read commands.
	TelemetryFrameSize = 193
)

// HeaderSize is the size of the header every response starts with:
//
//	DLE SYN DLE SOH | station(2) | user(2)
const HeaderSize = 8

// Response layout. All decode paths read offsets from here.
const (
	offHeaderStation = 4 // station id, 2 bytes
	offHeaderUser    = 6 // user id, 2 bytes

	offCommand      = 8  // echoed command code
	offDataLength   = 9  // data length, 2 bytes
	offChannelCount = 11 // configured channels (telemetry frames)

	offAckCode   = 10 // device error code (ack frames)
	offAckStatus = 11 // EOT or NAK (ack frames)
	offAckTail   = 12

	offYear   = 12
	offMonth  = 13
	offDay    = 14
	offHour   = 15
	offMinute = 16
	offSecond = 17

	offDataDLE = 18
	offDataSTX = 19

	offMeasurements = 20 // 4 bytes per channel, IEEE-754 float32 big-endian
	measurementSize = 4

	// Trailing blocks, meaningful for instantaneous frames with at most
	// trailerChannels channels.
	offSampleIndices = 116 // 2 bytes per channel
	offAlarmStates   = 164 // 1 byte per channel
	trailerChannels  = 24

	offTrailerDLE = 188
	offTrailerETX = 189
	offChecksum   = 190 // 2 bytes, captured but not verified
	offTerminator = 192
)

// MaxChannels is the largest channel count whose measurement block fits in a
// telemetry frame.
const MaxChannels = (TelemetryFrameSize - offMeasurements) / measurementSize

// YearOffset is added to the one-byte year field.
const YearOffset = 2000

// Request layout.
const (
	verificationSentinel uint16 = 0xFFFF // disables configuration CRC verification on the station

	readPaddingSize = 14
	syncPaddingSize = 7
	syncClockSize   = 7

	syncCommandCode byte = 0x00

	// offSyncVerification holds the verification sentinel in a sync request and
	// falls inside the zero padding of a read request.
	offSyncVerification = 2 + 2 + 1 + 2 + syncClockSize + syncPaddingSize

	// readFixedSize excludes the password: prefix(4) + station(2) + user(2) +
	// mode(1) + padding(14) + verification(2) + terminator(1).
	readFixedSize = 4 + 2 + 2 + 1 + readPaddingSize + 2 + 1
	// syncFixedSize excludes the password: prefix(2) + station(2) + code(1) +
	// user(2) + clock(7) + padding(7) + verification(2) + terminator(1).
	syncFixedSize = 2 + 2 + 1 + 2 + syncClockSize + syncPaddingSize + 2 + 1
)
