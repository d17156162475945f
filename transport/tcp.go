package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/arloliu/go-meteodata/frame"
	"github.com/arloliu/go-meteodata/internal/pool"
	"github.com/arloliu/go-meteodata/logger"
	"github.com/arloliu/go-meteodata/station"
)

// TCP sends a frame over a new TCP connection per call.
//
// The station needs time to assemble its answer, so the read deadline is only
// armed after a warm-up delay. The connection is closed on every path.
type TCP struct {
	cfg    *station.Config
	logger logger.Logger
}

var _ Transport = (*TCP)(nil)

// NewTCP creates a TCP transport.
func NewTCP(cfg *station.Config) *TCP {
	return &TCP{cfg: cfg, logger: cfg.GetLogger()}
}

// Send dials addr, writes req and reads up to expected bytes.
//
// A peer that closes the connection after sending part of the response yields
// the partial bytes without error. A read timeout is a failure even when some
// bytes arrived.
func (t *TCP) Send(ctx context.Context, addr station.Address, req []byte, expected int) ([]byte, error) {
	address, err := addr.TCPAddr(t.cfg.TCPPort())
	if err != nil {
		return nil, failure("resolve address", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, t.cfg.DialTimeout())
	defer cancel()

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(dialCtx, "tcp", address)
	if err != nil {
		return nil, failure("dial "+address, err)
	}
	defer conn.Close()

	t.logDebug("tcp request", addr.ID, req)

	if _, err := conn.Write(req); err != nil {
		return nil, failure("write "+address, err)
	}

	if err := pool.Sleep(ctx, t.cfg.WarmUp()); err != nil {
		return nil, failure("wait for response", err)
	}

	deadline := time.Now().Add(t.cfg.ReadTimeout())
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, failure("set read deadline", err)
	}

	buf := make([]byte, expected)
	n, err := io.ReadFull(conn, buf)
	switch {
	case err == nil:
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		if n == 0 {
			return nil, failure("read "+address, io.EOF)
		}
	default:
		return nil, failure(fmt.Sprintf("read %s after %d bytes", address, n), err)
	}

	resp := buf[:n]
	t.logDebug("tcp response", addr.ID, resp)

	return resp, nil
}

func (t *TCP) logDebug(msg string, stationID uint16, b []byte) {
	if t.logger.Level() > logger.DebugLevel {
		return
	}
	t.logger.Debug(msg, "station", stationID, "size", len(b), "bytes", frame.Dump(b))
}
