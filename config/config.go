// Package config loads the YAML station file used by meteoctl and turns it
// into station options, a station registry and a static channel catalog.
package config

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arloliu/go-meteodata/channel"
	"github.com/arloliu/go-meteodata/frame"
	"github.com/arloliu/go-meteodata/logger"
	"github.com/arloliu/go-meteodata/station"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// ProtocolConfig holds the protocol constants shared by all stations.
type ProtocolConfig struct {
	ByteOrder    string        `yaml:"byte_order,omitempty"` // "big" or "little"
	Password     string        `yaml:"password"`
	UserID       uint16        `yaml:"user_id,omitempty"`
	TCPPort      int           `yaml:"tcp_port,omitempty"`
	SerialPort   string        `yaml:"serial_port,omitempty"`
	WaitInterval time.Duration `yaml:"wait_interval,omitempty"`
	RTSHold      time.Duration `yaml:"rts_hold,omitempty"`
	DialTimeout  time.Duration `yaml:"dial_timeout,omitempty"`
	MaxAttempts  int           `yaml:"max_attempts,omitempty"`
	TimeZone     string        `yaml:"time_zone,omitempty"` // IANA name of the station clock zone
}

// LogConfig selects the log level.
type LogConfig struct {
	Level string `yaml:"level,omitempty"`
}

// LogLevel returns the configured level, InfoLevel when unset.
func (c LogConfig) LogLevel() logger.Level {
	return logger.ParseLevel(strings.ToLower(c.Level))
}

// StationConfig describes one station and its channels in station order.
type StationConfig struct {
	ID         uint16            `yaml:"id"`
	Name       string            `yaml:"name,omitempty"`
	Host       string            `yaml:"host,omitempty"`
	Port       int               `yaml:"port,omitempty"`
	SerialPort string            `yaml:"serial_port,omitempty"`
	Channels   []channel.Channel `yaml:"channels"`
}

// Config is the root of the station file.
type Config struct {
	Protocol ProtocolConfig  `yaml:"protocol"`
	Log      LogConfig       `yaml:"log,omitempty"`
	Stations []StationConfig `yaml:"stations"`
}

// Load reads, parses and validates the station file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	return Parse(data)
}

// Parse parses and validates a station file.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the station table and the channel catalogs.
//
// Duplicate channel abbreviations within one station are accepted; the last
// position wins when readings are indexed by name.
func (c *Config) Validate() error {
	if _, err := parseByteOrder(c.Protocol.ByteOrder); err != nil {
		return err
	}

	if c.Protocol.TimeZone != "" {
		if _, err := time.LoadLocation(c.Protocol.TimeZone); err != nil {
			return fmt.Errorf("%w: time_zone %q: %w", ErrInvalidConfig, c.Protocol.TimeZone, err)
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: log level %q", ErrInvalidConfig, c.Log.Level)
	}

	if len(c.Stations) == 0 {
		return fmt.Errorf("%w: no stations configured", ErrInvalidConfig)
	}

	seen := make(map[uint16]bool, len(c.Stations))
	for i, st := range c.Stations {
		if seen[st.ID] {
			return fmt.Errorf("%w: stations[%d]: duplicate station id %d", ErrInvalidConfig, i, st.ID)
		}
		seen[st.ID] = true

		if err := st.address().Validate(); err != nil {
			return fmt.Errorf("%w: stations[%d]: %w", ErrInvalidConfig, i, err)
		}

		if err := validateChannels(st); err != nil {
			return fmt.Errorf("%w: stations[%d]: %w", ErrInvalidConfig, i, err)
		}
	}

	return nil
}

func validateChannels(st StationConfig) error {
	if len(st.Channels) > frame.MaxChannels {
		return fmt.Errorf("station %d has %d channels, at most %d", st.ID, len(st.Channels), frame.MaxChannels)
	}

	for j, ch := range st.Channels {
		if strings.TrimSpace(ch.Abbreviation) == "" {
			return fmt.Errorf("station %d channels[%d]: abbreviation is required", st.ID, j)
		}
	}

	return nil
}

// StationOptions converts the protocol section into station options.
// Zero values keep the station package defaults.
func (c *Config) StationOptions(l logger.Logger) ([]station.Option, error) {
	p := c.Protocol

	order, err := parseByteOrder(p.ByteOrder)
	if err != nil {
		return nil, err
	}

	opts := []station.Option{
		station.WithByteOrder(order),
		station.WithPassword(p.Password),
	}

	if p.UserID != 0 {
		opts = append(opts, station.WithUserID(p.UserID))
	}
	if p.TCPPort != 0 {
		opts = append(opts, station.WithTCPPort(p.TCPPort))
	}
	if p.SerialPort != "" {
		opts = append(opts, station.WithSerialPort(p.SerialPort))
	}
	if p.WaitInterval != 0 {
		opts = append(opts, station.WithWaitInterval(p.WaitInterval))
	}
	if p.RTSHold != 0 {
		opts = append(opts, station.WithRTSHold(p.RTSHold))
	}
	if p.DialTimeout != 0 {
		opts = append(opts, station.WithDialTimeout(p.DialTimeout))
	}
	if p.MaxAttempts != 0 {
		opts = append(opts, station.WithMaxAttempts(p.MaxAttempts))
	}
	if p.TimeZone != "" {
		loc, err := time.LoadLocation(p.TimeZone)
		if err != nil {
			return nil, fmt.Errorf("%w: time_zone %q: %w", ErrInvalidConfig, p.TimeZone, err)
		}
		opts = append(opts, station.WithLocation(loc))
	}
	if l != nil {
		opts = append(opts, station.WithLogger(l))
	}

	return opts, nil
}

// StationConfig builds the protocol configuration.
func (c *Config) StationConfig(l logger.Logger) (*station.Config, error) {
	opts, err := c.StationOptions(l)
	if err != nil {
		return nil, err
	}

	return station.NewConfig(opts...)
}

// Registry builds the station registry.
func (c *Config) Registry() (*station.Registry, error) {
	addrs := make([]station.Address, 0, len(c.Stations))
	for _, st := range c.Stations {
		addrs = append(addrs, st.address())
	}

	return station.NewRegistry(addrs...)
}

// Catalog builds a static catalog provider from the per-station channel lists.
func (c *Config) Catalog() channel.StaticCatalog {
	catalog := make(channel.StaticCatalog, len(c.Stations))
	for _, st := range c.Stations {
		catalog[st.ID] = channel.Catalog(st.Channels)
	}

	return catalog
}

// StationIDs returns the configured station ids in file order.
func (c *Config) StationIDs() []uint16 {
	ids := make([]uint16, len(c.Stations))
	for i, st := range c.Stations {
		ids[i] = st.ID
	}

	return ids
}

// Station returns the configuration of station id.
func (c *Config) Station(id uint16) (StationConfig, bool) {
	for _, st := range c.Stations {
		if st.ID == id {
			return st, true
		}
	}

	return StationConfig{}, false
}

func (st StationConfig) address() station.Address {
	return station.Address{
		ID:         st.ID,
		Host:       st.Host,
		Port:       st.Port,
		SerialPort: st.SerialPort,
	}
}

func parseByteOrder(s string) (binary.ByteOrder, error) {
	switch strings.ToLower(s) {
	case "", "big":
		return binary.BigEndian, nil
	case "little":
		return binary.LittleEndian, nil
	default:
		return nil, fmt.Errorf("%w: byte_order %q, want \"big\" or \"little\"", ErrInvalidConfig, s)
	}
}
