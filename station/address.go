package station

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrUnknownStation indicates a station id that is not in the registry.
	ErrUnknownStation = errors.New("station: unknown station")

	// ErrDuplicateStation indicates two registry entries with the same id.
	ErrDuplicateStation = errors.New("station: duplicate station id")

	// ErrInvalidAddress indicates a malformed host, port or serial path.
	ErrInvalidAddress = errors.New("station: invalid address")
)

// Address locates one station. A station may be reachable over TCP (Host),
// over a serial line (SerialPort), or both.
type Address struct {
	ID uint16
	// Host is an IP address or host name. Empty when the station has no TCP link.
	Host string
	// Port overrides the configured TCP port when non-zero.
	Port int
	// SerialPort is the serial device path, e.g. "/dev/ttyUSB0" or "COM3".
	SerialPort string
}

// Validate checks the host, port and serial path formats.
func (a Address) Validate() error {
	if a.Host == "" && a.SerialPort == "" {
		return fmt.Errorf("%w: station %d has neither host nor serial port", ErrInvalidAddress, a.ID)
	}

	if a.Host != "" && !validHost(a.Host) {
		return fmt.Errorf("%w: station %d host %q", ErrInvalidAddress, a.ID, a.Host)
	}

	if a.Port < 0 || a.Port > 65535 {
		return fmt.Errorf("%w: station %d port %d out of range [0, 65535]", ErrInvalidAddress, a.ID, a.Port)
	}

	if strings.TrimSpace(a.SerialPort) != a.SerialPort {
		return fmt.Errorf("%w: station %d serial port %q", ErrInvalidAddress, a.ID, a.SerialPort)
	}

	return nil
}

// TCPAddr returns "host:port", using defaultPort when the address has no port of its own.
func (a Address) TCPAddr(defaultPort int) (string, error) {
	if a.Host == "" {
		return "", fmt.Errorf("%w: station %d has no host", ErrInvalidAddress, a.ID)
	}

	port := a.Port
	if port == 0 {
		port = defaultPort
	}
	if port <= 0 || port > 65535 {
		return "", fmt.Errorf("%w: station %d has no valid TCP port", ErrInvalidAddress, a.ID)
	}

	return net.JoinHostPort(a.Host, strconv.Itoa(port)), nil
}

func validHost(host string) bool {
	if ip := net.ParseIP(host); ip != nil {
		return true
	}

	if len(host) > 253 {
		return false
	}

	// Dotted quads that failed ParseIP, e.g. "10.0.0.256", are not host names.
	if strings.Trim(host, "0123456789.") == "" {
		return false
	}

	for _, label := range strings.Split(strings.TrimSuffix(host, "."), ".") {
		if label == "" || len(label) > 63 || label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-') {
				return false
			}
		}
	}

	return true
}

// Registry maps station ids to addresses. It is immutable once built.
type Registry struct {
	stations map[uint16]Address
}

// NewRegistry builds a registry, validating every address.
func NewRegistry(addrs ...Address) (*Registry, error) {
	r := &Registry{stations: make(map[uint16]Address, len(addrs))}
	for _, a := range addrs {
		if err := a.Validate(); err != nil {
			return nil, err
		}
		if _, ok := r.stations[a.ID]; ok {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateStation, a.ID)
		}
		r.stations[a.ID] = a
	}

	return r, nil
}

// Lookup returns the address of station id.
func (r *Registry) Lookup(id uint16) (Address, error) {
	a, ok := r.stations[id]
	if !ok {
		return Address{}, fmt.Errorf("%w: %d", ErrUnknownStation, id)
	}

	return a, nil
}

// IDs returns the registered station ids in ascending order.
func (r *Registry) IDs() []uint16 {
	ids := make([]uint16, 0, len(r.stations))
	for id := range r.stations {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}

// Len returns the number of registered stations.
func (r *Registry) Len() int { return len(r.stations) }
