package station

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-meteodata/frame"
	"github.com/arloliu/go-meteodata/logger"
)

// Default protocol constants.
const (
	DefaultUserID       = 1
	DefaultWaitInterval = 1 * time.Second // device response latency
	DefaultRTSHold      = 100 * time.Millisecond
	DefaultDialTimeout  = 3 * time.Second

	// DefaultWarmUpFactor and DefaultReadTimeoutFactor scale the wait interval
	// into the TCP warm-up delay and read timeout.
	DefaultWarmUpFactor      = 2
	DefaultReadTimeoutFactor = 5

	// DefaultSerialQuietTime is how long the serial line must stay silent
	// before the available bytes are considered complete.
	DefaultSerialQuietTime = 100 * time.Millisecond

	DefaultMaxAttempts = 5
)

// Range limits.
const (
	MinWaitInterval = 10 * time.Millisecond
	MaxWaitInterval = 30 * time.Second

	MaxRTSHold = 5 * time.Second

	MaxAttempts = 5

	MaxTimeoutFactor = 20
)

// Config holds the protocol constants shared by every station: byte order,
// user id and password, TCP port, timing, and retry budget.
//
// A Config is immutable once created and safe to share between goroutines.
type Config struct {
	byteOrder binary.ByteOrder
	userID    uint16
	password  string
	location  *time.Location

	tcpPort    int
	serialPort string

	waitInterval      time.Duration
	rtsHold           time.Duration
	dialTimeout       time.Duration
	warmUpFactor      int
	readTimeoutFactor int
	serialQuietTime   time.Duration

	maxAttempts int

	codec  *frame.Codec
	logger logger.Logger
}

// NewConfig creates a Config. opts are applied in order; see With* functions.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		byteOrder:         binary.BigEndian,
		userID:            DefaultUserID,
		location:          time.UTC,
		waitInterval:      DefaultWaitInterval,
		rtsHold:           DefaultRTSHold,
		dialTimeout:       DefaultDialTimeout,
		warmUpFactor:      DefaultWarmUpFactor,
		readTimeoutFactor: DefaultReadTimeoutFactor,
		serialQuietTime:   DefaultSerialQuietTime,
		maxAttempts:       DefaultMaxAttempts,
		logger:            logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	codec, err := frame.NewCodec(cfg.byteOrder, cfg.password, cfg.location)
	if err != nil {
		return nil, fmt.Errorf("station: %w", err)
	}
	cfg.codec = codec

	return cfg, nil
}

// --- Getters ---

// ByteOrder returns the byte order of the station and user id fields.
func (cfg *Config) ByteOrder() binary.ByteOrder { return cfg.byteOrder }

// UserID returns the user id sent with every request.
func (cfg *Config) UserID() uint16 { return cfg.userID }

// Password returns the station password.
func (cfg *Config) Password() string { return cfg.password }

// Location returns the time zone of the station clocks.
func (cfg *Config) Location() *time.Location { return cfg.location }

// TCPPort returns the default TCP port.
func (cfg *Config) TCPPort() int { return cfg.tcpPort }

// SerialPort returns the default serial device path.
func (cfg *Config) SerialPort() string { return cfg.serialPort }

// WaitInterval returns the device response latency constant.
func (cfg *Config) WaitInterval() time.Duration { return cfg.waitInterval }

// RTSHold returns how long RTS is asserted to wake a serial station.
func (cfg *Config) RTSHold() time.Duration { return cfg.rtsHold }

// DialTimeout returns the TCP connect timeout.
func (cfg *Config) DialTimeout() time.Duration { return cfg.dialTimeout }

// WarmUp returns the delay between sending a TCP request and arming the read timeout.
func (cfg *Config) WarmUp() time.Duration {
	return time.Duration(cfg.warmUpFactor) * cfg.waitInterval
}

// ReadTimeout returns the TCP read timeout.
func (cfg *Config) ReadTimeout() time.Duration {
	return time.Duration(cfg.readTimeoutFactor) * cfg.waitInterval
}

// SerialQuietTime returns the line silence that ends a serial read.
func (cfg *Config) SerialQuietTime() time.Duration { return cfg.serialQuietTime }

// MaxAttempts returns the number of transport attempts per request.
func (cfg *Config) MaxAttempts() int { return cfg.maxAttempts }

// Codec returns the frame codec built from this configuration.
func (cfg *Config) Codec() *frame.Codec { return cfg.codec }

// GetLogger returns the configured logger.
func (cfg *Config) GetLogger() logger.Logger { return cfg.logger }

// --- Option ---

// Option is a functional option for configuring a Config.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithByteOrder sets the byte order of the id fields. It must match the station setup.
func WithByteOrder(order binary.ByteOrder) Option {
	return optFunc(func(cfg *Config) error {
		if order == nil {
			return errors.New("station: byte order must not be nil")
		}
		cfg.byteOrder = order

		return nil
	})
}

// WithUserID sets the user id sent with every request.
func WithUserID(id uint16) Option {
	return optFunc(func(cfg *Config) error {
		cfg.userID = id

		return nil
	})
}

// WithPassword sets the station password. It must be printable ASCII.
func WithPassword(password string) Option {
	return optFunc(func(cfg *Config) error {
		cfg.password = password

		return nil
	})
}

// WithLocation sets the time zone of the station clocks. Default is UTC.
func WithLocation(loc *time.Location) Option {
	return optFunc(func(cfg *Config) error {
		if loc == nil {
			return errors.New("station: location must not be nil")
		}
		cfg.location = loc

		return nil
	})
}

// WithTCPPort sets the TCP port used for stations without a port of their own.
func WithTCPPort(port int) Option {
	return optFunc(func(cfg *Config) error {
		if port < 1 || port > 65535 {
			return fmt.Errorf("station: port %d out of range [1, 65535]", port)
		}
		cfg.tcpPort = port

		return nil
	})
}

// WithSerialPort sets the serial device used for stations without one of their own.
func WithSerialPort(path string) Option {
	return optFunc(func(cfg *Config) error {
		if path == "" {
			return errors.New("station: serial port path must not be empty")
		}
		cfg.serialPort = path

		return nil
	})
}

// WithWaitInterval sets the device response latency constant.
func WithWaitInterval(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinWaitInterval || d > MaxWaitInterval {
			return fmt.Errorf("station: wait interval %v out of range [%v, %v]", d, MinWaitInterval, MaxWaitInterval)
		}
		cfg.waitInterval = d

		return nil
	})
}

// WithRTSHold sets how long RTS stays asserted before a serial request.
func WithRTSHold(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < 0 || d > MaxRTSHold {
			return fmt.Errorf("station: RTS hold %v out of range [0, %v]", d, MaxRTSHold)
		}
		cfg.rtsHold = d

		return nil
	})
}

// WithDialTimeout sets the TCP connect timeout.
func WithDialTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return errors.New("station: dial timeout must be positive")
		}
		cfg.dialTimeout = d

		return nil
	})
}

// WithTimeoutFactors sets the multiples of the wait interval used for the TCP
// warm-up delay and the TCP read timeout.
func WithTimeoutFactors(warmUp, readTimeout int) Option {
	return optFunc(func(cfg *Config) error {
		if warmUp < 0 || warmUp > MaxTimeoutFactor {
			return fmt.Errorf("station: warm-up factor %d out of range [0, %d]", warmUp, MaxTimeoutFactor)
		}
		if readTimeout < 1 || readTimeout > MaxTimeoutFactor {
			return fmt.Errorf("station: read timeout factor %d out of range [1, %d]", readTimeout, MaxTimeoutFactor)
		}
		cfg.warmUpFactor = warmUp
		cfg.readTimeoutFactor = readTimeout

		return nil
	})
}

// WithSerialQuietTime sets the line silence that ends a serial read.
func WithSerialQuietTime(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return errors.New("station: serial quiet time must be positive")
		}
		cfg.serialQuietTime = d

		return nil
	})
}

// WithMaxAttempts sets the number of transport attempts per request, 1 to 5.
func WithMaxAttempts(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 1 || n > MaxAttempts {
			return fmt.Errorf("station: max attempts %d out of range [1, %d]", n, MaxAttempts)
		}
		cfg.maxAttempts = n

		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("station: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
