// Package emulator serves the station side of the protocol over TCP.
//
// It answers read requests with telemetry frames built from configured
// channel values and answers clock synchronizations with acknowledgements.
// Faults such as short responses, silence, foreign headers and device
// rejections can be injected per station.
package emulator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-meteodata/frame"
	"github.com/arloliu/go-meteodata/logger"
)

// DefaultRequestTimeout bounds the time a client may take to send its request.
const DefaultRequestTimeout = 5 * time.Second

// Server is a TCP station emulator. Every connection carries one request.
type Server struct {
	codec          *frame.Codec
	logger         logger.Logger
	requestTimeout time.Duration
	responseDelay  time.Duration

	stations *xsync.MapOf[uint16, *Station]

	listenerMutex sync.Mutex
	listener      net.Listener
	wg            sync.WaitGroup
	shutdown      atomic.Bool

	requestCount atomic.Uint64
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithResponseDelay delays every response, emulating the station's processing time.
func WithResponseDelay(d time.Duration) Option {
	return func(s *Server) { s.responseDelay = d }
}

// WithRequestTimeout bounds how long the server waits for a complete request.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

// NewServer creates an emulator that encodes and decodes frames with codec.
func NewServer(codec *frame.Codec, opts ...Option) *Server {
	s := &Server{
		codec:          codec,
		logger:         logger.GetLogger(),
		requestTimeout: DefaultRequestTimeout,
		stations:       xsync.NewMapOf[uint16, *Station](),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// AddStation registers st, replacing any station with the same id.
func (s *Server) AddStation(st *Station) {
	s.stations.Store(st.ID(), st)
}

// Station returns the emulated station with the given id.
func (s *Server) Station(id uint16) (*Station, bool) {
	return s.stations.Load(id)
}

// RequestCount returns the number of requests received, including malformed ones.
func (s *Server) RequestCount() uint64 {
	return s.requestCount.Load()
}

// Listen opens a listener on address and serves it in the background until
// ctx is done or Close is called.
func (s *Server) Listen(ctx context.Context, address string) error {
	s.listenerMutex.Lock()
	defer s.listenerMutex.Unlock()

	if s.listener != nil {
		return errors.New("emulator: already listening")
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("emulator: listen %s: %w", address, err)
	}
	s.listener = ln
	s.logger.Info("emulator listening", "address", ln.Addr().String(), "stations", s.stations.Size())

	s.wg.Add(1)
	go s.acceptLoop(ln)

	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()

	return nil
}

// Addr returns the listener address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.listenerMutex.Lock()
	defer s.listenerMutex.Unlock()

	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

// Close stops the listener and waits for in-flight requests.
func (s *Server) Close() error {
	if !s.shutdown.CompareAndSwap(false, true) {
		return nil
	}

	s.listenerMutex.Lock()
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.listenerMutex.Unlock()

	s.wg.Wait()

	return err
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.shutdown.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("emulator: accept failed", "error", err)

			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			s.serve(conn)
		}()
	}
}

func (s *Server) serve(conn net.Conn) {
	req, err := s.readRequest(conn)
	s.requestCount.Add(1)
	if err != nil {
		s.logger.Warn("emulator: bad request", "remoteAddr", conn.RemoteAddr(), "error", err)
		return
	}

	cmd, err := s.codec.ParseCommand(req)
	if err != nil {
		s.logger.Warn("emulator: malformed command", "bytes", frame.Dump(req), "error", err)
		return
	}

	st, ok := s.stations.Load(cmd.StationID)
	if !ok {
		s.logger.Warn("emulator: request for unknown station", "station", cmd.StationID)
		return
	}

	resp, err := s.respond(st, cmd)
	if err != nil {
		s.logger.Error("emulator: failed to build response", "station", cmd.StationID, "error", err)
		return
	}
	if resp == nil {
		return
	}

	if s.responseDelay > 0 {
		time.Sleep(s.responseDelay)
	}

	if _, err := conn.Write(resp); err != nil {
		s.logger.Warn("emulator: write failed", "station", cmd.StationID, "error", err)
	}
}

// readRequest reads one request. A sync frame is the shorter of the two, so
// its length is read first and the codec decides whether more bytes follow.
func (s *Server) readRequest(conn net.Conn) ([]byte, error) {
	if err := conn.SetReadDeadline(time.Now().Add(s.requestTimeout)); err != nil {
		return nil, err
	}

	req := make([]byte, s.codec.SyncCommandSize(), s.codec.ReadCommandSize())
	if _, err := io.ReadFull(conn, req); err != nil {
		return nil, err
	}

	size, err := s.codec.CommandSize(req)
	if err != nil {
		return nil, err
	}

	head := len(req)
	req = req[:size]
	if _, err := io.ReadFull(conn, req[head:]); err != nil {
		return nil, err
	}

	return req, nil
}

// respond builds the response for cmd. A nil response means stay silent.
func (s *Server) respond(st *Station, cmd *frame.Command) ([]byte, error) {
	fault, short := st.takeFault()
	if fault.Silent {
		return nil, nil
	}

	var resp []byte
	if cmd.Sync {
		resp = s.codec.EncodeAck(st.id, st.userID, 0, st.sync(cmd.Clock))
	} else {
		tm := st.snapshot(cmd.Mode)
		b, err := s.codec.EncodeTelemetry(tm)
		if err != nil {
			return nil, err
		}
		resp = b
	}

	if fault.ForeignHeader {
		foreign := s.codec.ExpectedHeader(st.id+1, st.userID)
		copy(resp, foreign)
	}

	if short {
		n := fault.ShortLength
		if n <= 0 {
			n = 10
		}
		if n < len(resp) {
			resp = resp[:n]
		}
	}

	return resp, nil
}
