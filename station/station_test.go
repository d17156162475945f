package station

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-meteodata/logger"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, binary.BigEndian, cfg.ByteOrder())
	assert.Equal(t, uint16(DefaultUserID), cfg.UserID())
	assert.Empty(t, cfg.Password())
	assert.Equal(t, time.UTC, cfg.Location())
	assert.Equal(t, 0, cfg.TCPPort())
	assert.Empty(t, cfg.SerialPort())
	assert.Equal(t, DefaultWaitInterval, cfg.WaitInterval())
	assert.Equal(t, 2*DefaultWaitInterval, cfg.WarmUp())
	assert.Equal(t, 5*DefaultWaitInterval, cfg.ReadTimeout())
	assert.Equal(t, DefaultRTSHold, cfg.RTSHold())
	assert.Equal(t, DefaultDialTimeout, cfg.DialTimeout())
	assert.Equal(t, DefaultSerialQuietTime, cfg.SerialQuietTime())
	assert.Equal(t, DefaultMaxAttempts, cfg.MaxAttempts())

	assert.NotNil(t, cfg.Codec())
	assert.NotNil(t, cfg.GetLogger())
}

func TestNewConfig_WithOptions(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	l := logger.NewSlog(logger.WarnLevel, false)

	cfg, err := NewConfig(
		WithByteOrder(binary.LittleEndian),
		WithUserID(7),
		WithPassword("secret"),
		WithLocation(loc),
		WithTCPPort(2001),
		WithSerialPort("/dev/ttyUSB0"),
		WithWaitInterval(200*time.Millisecond),
		WithRTSHold(50*time.Millisecond),
		WithDialTimeout(time.Second),
		WithTimeoutFactors(1, 3),
		WithSerialQuietTime(20*time.Millisecond),
		WithMaxAttempts(3),
		WithLogger(l),
	)
	require.NoError(t, err)

	assert.Equal(t, binary.LittleEndian, cfg.ByteOrder())
	assert.Equal(t, uint16(7), cfg.UserID())
	assert.Equal(t, "secret", cfg.Password())
	assert.Equal(t, loc, cfg.Location())
	assert.Equal(t, 2001, cfg.TCPPort())
	assert.Equal(t, "/dev/ttyUSB0", cfg.SerialPort())
	assert.Equal(t, 200*time.Millisecond, cfg.WaitInterval())
	assert.Equal(t, 200*time.Millisecond, cfg.WarmUp())
	assert.Equal(t, 600*time.Millisecond, cfg.ReadTimeout())
	assert.Equal(t, 50*time.Millisecond, cfg.RTSHold())
	assert.Equal(t, time.Second, cfg.DialTimeout())
	assert.Equal(t, 20*time.Millisecond, cfg.SerialQuietTime())
	assert.Equal(t, 3, cfg.MaxAttempts())
	assert.Same(t, l, cfg.GetLogger())

	assert.Equal(t, binary.LittleEndian, cfg.Codec().ByteOrder())
	assert.Equal(t, 26+len("secret"), cfg.Codec().ReadCommandSize())
}

func TestNewConfig_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"nil byte order", WithByteOrder(nil)},
		{"nil location", WithLocation(nil)},
		{"port zero", WithTCPPort(0)},
		{"port too large", WithTCPPort(70000)},
		{"empty serial port", WithSerialPort("")},
		{"wait interval too small", WithWaitInterval(time.Millisecond)},
		{"wait interval too large", WithWaitInterval(time.Minute)},
		{"negative RTS hold", WithRTSHold(-time.Millisecond)},
		{"zero dial timeout", WithDialTimeout(0)},
		{"zero read timeout factor", WithTimeoutFactors(2, 0)},
		{"negative warm-up factor", WithTimeoutFactors(-1, 5)},
		{"zero quiet time", WithSerialQuietTime(0)},
		{"zero attempts", WithMaxAttempts(0)},
		{"too many attempts", WithMaxAttempts(6)},
		{"nil logger", WithLogger(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConfig(tt.opt)
			require.Error(t, err)
		})
	}
}

func TestNewConfig_NonPrintablePassword(t *testing.T) {
	_, err := NewConfig(WithPassword("pa\x00ss"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password")
}

func TestAddress_Validate(t *testing.T) {
	valid := []Address{
		{ID: 1, Host: "192.168.1.20"},
		{ID: 2, Host: "::1", Port: 2001},
		{ID: 3, Host: "station-3.example.com"},
		{ID: 4, SerialPort: "/dev/ttyS0"},
		{ID: 5, Host: "10.0.0.5", SerialPort: "COM3"},
	}
	for _, a := range valid {
		assert.NoError(t, a.Validate(), "station %d", a.ID)
	}

	invalid := []Address{
		{ID: 1},
		{ID: 2, Host: "10.0.0.256"},
		{ID: 3, Host: "bad host"},
		{ID: 4, Host: "-leading.example.com"},
		{ID: 5, Host: "10.0.0.1", Port: 65536},
		{ID: 6, SerialPort: " /dev/ttyS0"},
	}
	for _, a := range invalid {
		assert.ErrorIs(t, a.Validate(), ErrInvalidAddress, "station %d", a.ID)
	}
}

func TestAddress_TCPAddr(t *testing.T) {
	addr, err := Address{ID: 1, Host: "10.0.0.1"}.TCPAddr(2001)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:2001", addr)

	addr, err = Address{ID: 1, Host: "10.0.0.1", Port: 3000}.TCPAddr(2001)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:3000", addr)

	addr, err = Address{ID: 1, Host: "::1", Port: 3000}.TCPAddr(0)
	require.NoError(t, err)
	assert.Equal(t, "[::1]:3000", addr)

	_, err = Address{ID: 1, Host: "10.0.0.1"}.TCPAddr(0)
	require.ErrorIs(t, err, ErrInvalidAddress)

	_, err = Address{ID: 1, SerialPort: "/dev/ttyS0"}.TCPAddr(2001)
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestRegistry(t *testing.T) {
	r, err := NewRegistry(
		Address{ID: 20, Host: "10.0.0.20"},
		Address{ID: 3, SerialPort: "/dev/ttyUSB0"},
	)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []uint16{3, 20}, r.IDs())

	a, err := r.Lookup(20)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.20", a.Host)

	_, err = r.Lookup(99)
	require.ErrorIs(t, err, ErrUnknownStation)
}

func TestRegistry_Invalid(t *testing.T) {
	_, err := NewRegistry(Address{ID: 1, Host: "10.0.0.1"}, Address{ID: 1, Host: "10.0.0.2"})
	require.ErrorIs(t, err, ErrDuplicateStation)

	_, err = NewRegistry(Address{ID: 1})
	require.ErrorIs(t, err, ErrInvalidAddress)
}
