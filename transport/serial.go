package transport

import (
	"context"
	"errors"
	"io"
	"time"

	"go.bug.st/serial"

	"github.com/arloliu/go-meteodata/frame"
	"github.com/arloliu/go-meteodata/internal/pool"
	"github.com/arloliu/go-meteodata/logger"
	"github.com/arloliu/go-meteodata/station"
)

// Serial line settings of the station.
const (
	SerialBaudRate = 57600
	SerialDataBits = 8
)

// maxSerialResponse bounds a serial read so a chattering line cannot grow the buffer forever.
const maxSerialResponse = 4 * frame.TelemetryFrameSize

// Port is the subset of serial.Port used by the Serial transport.
type Port interface {
	io.ReadWriteCloser
	SetRTS(rts bool) error
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// PortOpener opens a serial device.
type PortOpener func(path string, mode *serial.Mode) (Port, error)

// OpenPort opens path with go.bug.st/serial.
func OpenPort(path string, mode *serial.Mode) (Port, error) {
	p, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}

	return p, nil
}

// Option configures a transport built by NewSerial or NewFactory.
type Option func(*Serial)

// WithPortOpener replaces the serial port opener.
func WithPortOpener(open PortOpener) Option {
	return func(s *Serial) {
		if open != nil {
			s.open = open
		}
	}
}

// Serial sends a frame over a serial line at 57600 8N1.
//
// The station is woken by pulsing RTS before the request. After the request
// the transport waits one wait interval and then collects bytes until the
// line stays quiet for the configured quiet time. The port is opened per call
// and closed on every path.
type Serial struct {
	cfg    *station.Config
	logger logger.Logger
	open   PortOpener
}

var _ Transport = (*Serial)(nil)

// NewSerial creates a Serial transport.
func NewSerial(cfg *station.Config, opts ...Option) *Serial {
	s := &Serial{cfg: cfg, logger: cfg.GetLogger(), open: OpenPort}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Send writes req to the station's serial port and returns whatever the station answered.
// expected only sizes the initial read buffer.
func (s *Serial) Send(ctx context.Context, addr station.Address, req []byte, expected int) ([]byte, error) {
	path := addr.SerialPort
	if path == "" {
		path = s.cfg.SerialPort()
	}
	if path == "" {
		return nil, failure("open", station.ErrInvalidAddress)
	}

	port, err := s.open(path, &serial.Mode{
		BaudRate: SerialBaudRate,
		DataBits: SerialDataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, failure("open "+path, err)
	}
	defer port.Close()

	if err := port.ResetInputBuffer(); err != nil {
		return nil, failure("reset input buffer", err)
	}

	if err := s.wake(ctx, port); err != nil {
		return nil, err
	}

	s.logDebug("serial request", addr.ID, req)

	if _, err := port.Write(req); err != nil {
		return nil, failure("write "+path, err)
	}

	if err := pool.Sleep(ctx, s.cfg.WaitInterval()); err != nil {
		return nil, failure("wait for response", err)
	}

	resp, err := s.readUntilQuiet(ctx, port, expected)
	if err != nil {
		return nil, failure("read "+path, err)
	}
	s.logDebug("serial response", addr.ID, resp)

	return resp, nil
}

// wake asserts RTS for the hold time and releases it.
func (s *Serial) wake(ctx context.Context, port Port) error {
	if err := port.SetRTS(true); err != nil {
		return failure("assert RTS", err)
	}

	if err := pool.Sleep(ctx, s.cfg.RTSHold()); err != nil {
		_ = port.SetRTS(false)
		return failure("hold RTS", err)
	}

	if err := port.SetRTS(false); err != nil {
		return failure("release RTS", err)
	}

	return nil
}

// readUntilQuiet reads until a read times out with no data.
// go.bug.st/serial reports a read timeout as (0, nil).
func (s *Serial) readUntilQuiet(ctx context.Context, port Port, expected int) ([]byte, error) {
	if err := port.SetReadTimeout(s.cfg.SerialQuietTime()); err != nil {
		return nil, err
	}

	if expected <= 0 {
		expected = frame.TelemetryFrameSize
	}
	resp := make([]byte, 0, expected)
	chunk := make([]byte, expected)

	for len(resp) < maxSerialResponse {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := port.Read(chunk)
		resp = append(resp, chunk[:n]...)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if n == 0 {
			break
		}
	}

	return resp, nil
}

func (s *Serial) logDebug(msg string, stationID uint16, b []byte) {
	if s.logger.Level() > logger.DebugLevel {
		return
	}
	s.logger.Debug(msg, "station", stationID, "size", len(b), "bytes", frame.Dump(b))
}
