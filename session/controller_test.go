package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-meteodata/channel"
	"github.com/arloliu/go-meteodata/frame"
	"github.com/arloliu/go-meteodata/logger"
	"github.com/arloliu/go-meteodata/station"
	"github.com/arloliu/go-meteodata/transport"
)

const testStation = 12

var testCatalog = channel.Catalog{
	{Abbreviation: "TA", Unit: "°C"},
	{Abbreviation: "HR", Unit: "%"},
	{Abbreviation: "VV", Unit: "m/s"},
}

// stubTransport answers each Send with the next scripted response.
type stubTransport struct {
	responses [][]byte
	errs      []error
	calls     int
	requests  [][]byte
}

func (s *stubTransport) Send(_ context.Context, _ station.Address, req []byte, _ int) ([]byte, error) {
	i := s.calls
	s.calls++
	s.requests = append(s.requests, req)

	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}

	return s.responses[len(s.responses)-1], nil
}

// stubFactory hands out the same stub and counts how many transports were requested.
func stubFactory(stub *stubTransport, created *int) transport.Factory {
	return func(transport.Kind) (transport.Transport, error) {
		*created++
		return stub, nil
	}
}

func newTestConfig(t *testing.T) *station.Config {
	t.Helper()

	cfg, err := station.NewConfig(
		station.WithPassword("1234"),
		station.WithUserID(1),
		station.WithTCPPort(2001),
		station.WithLogger(logger.NewSlog(logger.ErrorLevel, false)),
	)
	require.NoError(t, err)

	return cfg
}

func newTestController(t *testing.T, cfg *station.Config, opts ...Option) *Controller {
	t.Helper()

	reg, err := station.NewRegistry(station.Address{ID: testStation, Host: "127.0.0.1"})
	require.NoError(t, err)

	c, err := NewController(cfg, reg, channel.StaticCatalog{testStation: testCatalog}, opts...)
	require.NoError(t, err)

	return c
}

func telemetryFrame(t *testing.T, cfg *station.Config, stationID uint16, values ...float64) []byte {
	t.Helper()

	b, err := cfg.Codec().EncodeTelemetry(&frame.Telemetry{
		StationID: stationID,
		UserID:    cfg.UserID(),
		Command:   frame.ModeInstantaneous,
		Timestamp: time.Date(2020, time.March, 15, 10, 30, 45, 0, time.UTC),
		Values:    values,
	})
	require.NoError(t, err)

	return b
}

func TestReadChannels(t *testing.T) {
	cfg := newTestConfig(t)
	stub := &stubTransport{responses: [][]byte{telemetryFrame(t, cfg, testStation, 12.5, -3.25, 0)}}
	created := 0
	c := newTestController(t, cfg, WithTransportFactory(stubFactory(stub, &created)))

	r, err := c.ReadChannels(context.Background(), testStation, frame.ModeInstantaneous, transport.KindTCP)
	require.NoError(t, err)

	assert.Equal(t, uint16(testStation), r.StationID)
	assert.Equal(t, frame.ModeInstantaneous, r.Mode)
	assert.Equal(t, time.Date(2020, time.March, 15, 10, 30, 45, 0, time.UTC), r.Timestamp)
	assert.Equal(t, []channel.NamedReading{
		{Abbreviation: "TA", Value: 12.5, Unit: "°C"},
		{Abbreviation: "HR", Value: -3.25, Unit: "%"},
		{Abbreviation: "VV", Value: 0, Unit: "m/s"},
	}, r.Channels)
	assert.InDelta(t, -3.25, r.ByName()["HR"].Value, 0)
	require.NotNil(t, r.Telemetry)

	expected, err := cfg.Codec().EncodeReadCommand(testStation, 1, frame.ModeInstantaneous)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{expected}, stub.requests)
	assert.Equal(t, 1, created)

	m := c.Metrics()
	assert.Equal(t, uint64(1), m.AttemptCount.Load())
	assert.Equal(t, uint64(0), m.RetryCount.Load())
	assert.Equal(t, uint64(1), m.ReadCount.Load())
}

func TestReadChannels_ExhaustsAttempts(t *testing.T) {
	cfg := newTestConfig(t)
	stub := &stubTransport{responses: [][]byte{make([]byte, 10)}}
	created := 0
	c := newTestController(t, cfg, WithTransportFactory(stubFactory(stub, &created)))

	_, err := c.ReadChannels(context.Background(), testStation, frame.ModeInstantaneous, transport.KindTCP)
	require.ErrorIs(t, err, ErrCommunicationFailure)
	require.ErrorIs(t, err, frame.ErrInvalidLength)

	assert.Equal(t, 5, stub.calls)
	assert.Equal(t, 5, created, "a fresh transport per attempt")

	m := c.Metrics()
	assert.Equal(t, uint64(5), m.AttemptCount.Load())
	assert.Equal(t, uint64(4), m.RetryCount.Load())
	assert.Equal(t, uint64(1), m.CommFailureCount.Load())
}

func TestReadChannels_RecoversAfterTransportErrors(t *testing.T) {
	cfg := newTestConfig(t)
	good := telemetryFrame(t, cfg, testStation, 1, 2, 3)
	stub := &stubTransport{
		errs:      []error{transport.ErrTransportFailure, transport.ErrTransportFailure},
		responses: [][]byte{nil, nil, make([]byte, 13), good},
	}
	created := 0
	c := newTestController(t, cfg, WithTransportFactory(stubFactory(stub, &created)))

	r, err := c.ReadChannels(context.Background(), testStation, frame.ModeInstantaneous, transport.KindTCP)
	require.NoError(t, err)
	assert.Len(t, r.Channels, 3)
	assert.Equal(t, 4, stub.calls)
	assert.Equal(t, uint64(3), c.Metrics().RetryCount.Load())
}

func TestReadChannels_LastErrorWrapped(t *testing.T) {
	cfg := newTestConfig(t)
	cause := errors.New("connection reset")
	stub := &stubTransport{
		errs:      []error{cause, cause, cause, cause, cause},
		responses: [][]byte{nil},
	}
	created := 0
	c := newTestController(t, cfg, WithTransportFactory(stubFactory(stub, &created)))

	_, err := c.ReadChannels(context.Background(), testStation, frame.ModeInstantaneous, transport.KindTCP)
	require.ErrorIs(t, err, ErrCommunicationFailure)
	require.ErrorIs(t, err, cause)
}

func TestReadChannels_MaxAttemptsOption(t *testing.T) {
	cfg, err := station.NewConfig(
		station.WithMaxAttempts(2),
		station.WithLogger(logger.NewSlog(logger.ErrorLevel, false)),
	)
	require.NoError(t, err)

	stub := &stubTransport{responses: [][]byte{nil}}
	created := 0
	c := newTestController(t, cfg, WithTransportFactory(stubFactory(stub, &created)))

	_, err = c.ReadChannels(context.Background(), testStation, frame.ModeMean, transport.KindSerial)
	require.ErrorIs(t, err, ErrCommunicationFailure)
	assert.Equal(t, 2, stub.calls)
}

func TestReadChannels_HeaderMismatchNotRetried(t *testing.T) {
	cfg := newTestConfig(t)
	stub := &stubTransport{responses: [][]byte{telemetryFrame(t, cfg, testStation+1, 1, 2, 3)}}
	created := 0
	c := newTestController(t, cfg, WithTransportFactory(stubFactory(stub, &created)))

	_, err := c.ReadChannels(context.Background(), testStation, frame.ModeInstantaneous, transport.KindTCP)
	require.ErrorIs(t, err, frame.ErrHeaderMismatch)
	assert.Equal(t, 1, stub.calls)
	assert.Equal(t, uint64(1), c.Metrics().HeaderMismatchCount.Load())
}

func TestReadChannels_CatalogMismatch(t *testing.T) {
	cfg := newTestConfig(t)
	stub := &stubTransport{responses: [][]byte{telemetryFrame(t, cfg, testStation, 1, 2)}}
	created := 0
	c := newTestController(t, cfg, WithTransportFactory(stubFactory(stub, &created)))

	_, err := c.ReadChannels(context.Background(), testStation, frame.ModeInstantaneous, transport.KindTCP)
	require.ErrorIs(t, err, channel.ErrDecodingInconsistency)
	assert.Equal(t, 1, stub.calls)
}

func TestReadChannels_FailsBeforeIO(t *testing.T) {
	cfg := newTestConfig(t)
	stub := &stubTransport{responses: [][]byte{nil}}
	created := 0
	c := newTestController(t, cfg, WithTransportFactory(stubFactory(stub, &created)))

	_, err := c.ReadChannels(context.Background(), 99, frame.ModeInstantaneous, transport.KindTCP)
	require.ErrorIs(t, err, station.ErrUnknownStation)

	_, err = c.ReadChannels(context.Background(), testStation, frame.Mode(5), transport.KindTCP)
	require.ErrorIs(t, err, frame.ErrInvalidCommand)

	_, err = c.ReadChannels(context.Background(), testStation, frame.ModeInstantaneous, transport.Kind(9))
	require.ErrorIs(t, err, transport.ErrUnknownKind)

	assert.Equal(t, 0, stub.calls)
	assert.Equal(t, 0, created)
}

func TestReadChannels_ContextCanceled(t *testing.T) {
	cfg := newTestConfig(t)
	stub := &stubTransport{responses: [][]byte{nil}}
	created := 0
	c := newTestController(t, cfg, WithTransportFactory(stubFactory(stub, &created)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ReadChannels(ctx, testStation, frame.ModeInstantaneous, transport.KindTCP)
	require.ErrorIs(t, err, ErrCommunicationFailure)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, stub.calls)
}

func TestSyncClock(t *testing.T) {
	cfg := newTestConfig(t)
	stub := &stubTransport{responses: [][]byte{cfg.Codec().EncodeAck(testStation, 1, 0, nil)}}
	created := 0
	c := newTestController(t, cfg, WithTransportFactory(stubFactory(stub, &created)))

	ts := time.Date(2023, time.October, 5, 17, 45, 3, 0, time.UTC)
	require.NoError(t, c.SyncClock(context.Background(), testStation, ts, transport.KindTCP))

	expected, err := cfg.Codec().EncodeSyncCommand(testStation, 1, ts)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{expected}, stub.requests)
	assert.Equal(t, uint64(1), c.Metrics().SyncCount.Load())
}

func TestSyncClock_DeviceError(t *testing.T) {
	cfg := newTestConfig(t)
	stub := &stubTransport{responses: [][]byte{cfg.Codec().EncodeAck(testStation, 1, 0, &frame.DeviceError{Code: 7})}}
	created := 0
	c := newTestController(t, cfg, WithTransportFactory(stubFactory(stub, &created)))

	err := c.SyncClock(context.Background(), testStation, time.Now(), transport.KindTCP)
	var devErr *frame.DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, uint8(7), devErr.Code)
	assert.Equal(t, 1, stub.calls, "device errors are not retried")
	assert.Equal(t, uint64(1), c.Metrics().DeviceErrorCount.Load())
}

func TestSyncClock_UnrecognizedAck(t *testing.T) {
	cfg := newTestConfig(t)
	ack := cfg.Codec().EncodeAck(testStation, 1, 0, nil)
	ack[11] = 0x42
	stub := &stubTransport{responses: [][]byte{ack}}
	created := 0
	c := newTestController(t, cfg, WithTransportFactory(stubFactory(stub, &created)))

	err := c.SyncClock(context.Background(), testStation, time.Now(), transport.KindTCP)
	require.ErrorIs(t, err, frame.ErrUnrecognizedAck)
}

func TestSyncClock_WrongSizeRetried(t *testing.T) {
	cfg := newTestConfig(t)
	stub := &stubTransport{responses: [][]byte{telemetryFrame(t, cfg, testStation, 1)}}
	created := 0
	c := newTestController(t, cfg, WithTransportFactory(stubFactory(stub, &created)))

	err := c.SyncClock(context.Background(), testStation, time.Now(), transport.KindTCP)
	require.ErrorIs(t, err, ErrCommunicationFailure)
	assert.Equal(t, 5, stub.calls)
}

func TestSyncClock_InvalidYear(t *testing.T) {
	cfg := newTestConfig(t)
	stub := &stubTransport{responses: [][]byte{nil}}
	created := 0
	c := newTestController(t, cfg, WithTransportFactory(stubFactory(stub, &created)))

	err := c.SyncClock(context.Background(), testStation, time.Date(1999, time.January, 1, 0, 0, 0, 0, time.UTC), transport.KindTCP)
	require.ErrorIs(t, err, frame.ErrInvalidTimestamp)
	assert.Equal(t, 0, stub.calls)
}

func TestController_Logging(t *testing.T) {
	cfg := newTestConfig(t)
	stub := &stubTransport{responses: [][]byte{make([]byte, 10)}}
	created := 0

	ml := logger.NewMockLogger()
	ml.On("Warn", "unexpected response size", mock.Anything).Return().Times(5)
	ml.On("Error", "communication failed", mock.Anything).Return().Once()

	c := newTestController(t, cfg, WithTransportFactory(stubFactory(stub, &created)), WithLogger(ml))

	_, err := c.ReadChannels(context.Background(), testStation, frame.ModeInstantaneous, transport.KindTCP)
	require.ErrorIs(t, err, ErrCommunicationFailure)
	ml.AssertExpectations(t)
}

func TestReadChannels_ModeFromRequest(t *testing.T) {
	cfg := newTestConfig(t)
	// the frame echoes ModeInstantaneous while ModeMean was requested
	stub := &stubTransport{responses: [][]byte{telemetryFrame(t, cfg, testStation, 1, 2, 3)}}
	created := 0

	ml := logger.NewMockLogger()
	ml.On("Warn", "station echoed another mode", mock.Anything).Return().Once()
	ml.On("Debug", mock.Anything, mock.Anything).Return().Maybe()

	c := newTestController(t, cfg, WithTransportFactory(stubFactory(stub, &created)), WithLogger(ml))

	r, err := c.ReadChannels(context.Background(), testStation, frame.ModeMean, transport.KindTCP)
	require.NoError(t, err)
	assert.Equal(t, frame.ModeMean, r.Mode)
	assert.Equal(t, frame.ModeInstantaneous, r.Telemetry.Command)
	ml.AssertExpectations(t)
}

func TestNewController_Invalid(t *testing.T) {
	cfg := newTestConfig(t)
	reg, err := station.NewRegistry()
	require.NoError(t, err)

	_, err = NewController(nil, reg, channel.StaticCatalog{})
	require.Error(t, err)

	_, err = NewController(cfg, nil, channel.StaticCatalog{})
	require.Error(t, err)

	_, err = NewController(cfg, reg, nil)
	require.Error(t, err)
}
