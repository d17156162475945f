// Package frame implements the request and response frames of the Geonica
// Meteodata 3000 telemetry protocol.
//
// All functions in this package are pure: they build or inspect byte slices and
// never perform I/O.
//
// # Requests
//
// A read request asks the station for one aggregation (Mode) of every
// configured channel:
//
//	DLE SYN DLE SOH | station(2) | user(2) | mode(1) | 0x00 x14 | 0xFFFF | password | ENQ
//
// A sync request sets the station clock:
//
//	DLE SYN | station(2) | 0x00 | user(2) | YY MM DD WD hh mm ss | 0x00 x7 | 0xFFFF | password | ENQ
//
// Station and user ids use the byte order configured on the station. The
// 0xFFFF verification field disables the configuration CRC check.
//
// # Responses
//
// Responses are either AckFrameSize (acknowledgement or error) or
// TelemetryFrameSize bytes long; Classify tells them apart by length only.
// Both start with the HeaderSize-byte header returned by ExpectedHeader.
//
// Telemetry frame layout:
//
//	0-7     header
//	8       command
//	9-10    data length
//	11      channel count
//	12-17   YY MM DD hh mm ss
//	18-19   DLE STX
//	20-     float32 big-endian per channel (up to MaxChannels)
//	116-163 sample index per channel (instantaneous mode, <= 24 channels)
//	164-187 alarm state per channel (instantaneous mode, <= 24 channels)
//	188-189 DLE ETX
//	190-191 checksum (not verified)
//	192     ENQ
//
// Acknowledgement frame: header, command, reserved, error code (10), status (11)
// EOT or NAK, terminator.
package frame
