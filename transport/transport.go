// Package transport moves request frames to a station and returns the raw
// response bytes. Two media are supported: a TCP stream socket and a serial
// line. A transport never retries; retry policy belongs to the session.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/arloliu/go-meteodata/station"
)

// ErrTransportFailure wraps every dial, open, write, read and timeout error.
var ErrTransportFailure = errors.New("transport: failure")

// ErrUnknownKind indicates a transport kind other than KindTCP or KindSerial.
var ErrUnknownKind = errors.New("transport: unknown kind")

// Transport sends one request frame and returns the response bytes.
//
// expected is the response size the caller is waiting for. TCP reads at most
// expected bytes; Serial reads until the line is quiet and may return more or
// fewer bytes. Length validation is left to the caller.
type Transport interface {
	Send(ctx context.Context, addr station.Address, req []byte, expected int) ([]byte, error)
}

// Kind selects the transport medium.
type Kind int

const (
	KindTCP Kind = iota
	KindSerial
)

// Valid reports whether k is KindTCP or KindSerial.
func (k Kind) Valid() bool {
	return k == KindTCP || k == KindSerial
}

func (k Kind) String() string {
	switch k {
	case KindTCP:
		return "tcp"
	case KindSerial:
		return "serial"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind parses "tcp" or "serial", case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tcp":
		return KindTCP, nil
	case "serial":
		return KindSerial, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Factory yields a fresh Transport of the given kind. The session calls it once per attempt.
type Factory func(kind Kind) (Transport, error)

// NewFactory returns a Factory building TCP and Serial transports from cfg.
func NewFactory(cfg *station.Config, opts ...Option) Factory {
	return func(kind Kind) (Transport, error) {
		switch kind {
		case KindTCP:
			return NewTCP(cfg), nil
		case KindSerial:
			return NewSerial(cfg, opts...), nil
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
		}
	}
}

// failure wraps err with ErrTransportFailure, keeping err reachable through errors.Is.
func failure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransportFailure, op, err)
}
