// Package poller reads several stations in parallel, one worker per station.
//
// Each worker runs a full session call with its own retry budget. Results are
// kept per station in a concurrent map, so no lock is shared between workers.
package poller

import (
	"context"
	"errors"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-meteodata/frame"
	"github.com/arloliu/go-meteodata/internal/pool"
	"github.com/arloliu/go-meteodata/logger"
	"github.com/arloliu/go-meteodata/session"
	"github.com/arloliu/go-meteodata/transport"
)

// Client is the part of session.Controller used by the poller.
type Client interface {
	ReadChannels(ctx context.Context, stationID uint16, mode frame.Mode, kind transport.Kind) (*session.Reading, error)
	SyncClock(ctx context.Context, stationID uint16, t time.Time, kind transport.Kind) error
}

var _ Client = (*session.Controller)(nil)

// Result is the outcome of one station read.
type Result struct {
	StationID uint16
	Reading   *session.Reading
	Err       error
	// Elapsed is the wall time of the read, including retries.
	Elapsed time.Duration
	// At is the local time the read finished.
	At time.Time
}

// Poller polls stations through a Client.
type Poller struct {
	client      Client
	logger      logger.Logger
	concurrency int
	onResult    func(Result)

	latest *xsync.MapOf[uint16, Result]
}

// Option configures a Poller.
type Option func(*Poller)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Poller) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithConcurrency limits the number of stations read at the same time.
// Zero or less means one worker per station.
func WithConcurrency(n int) Option {
	return func(p *Poller) { p.concurrency = n }
}

// WithResultHandler registers fn to be called with every result as soon as it
// is available. fn is called from worker goroutines and must be safe for
// concurrent use.
func WithResultHandler(fn func(Result)) Option {
	return func(p *Poller) { p.onResult = fn }
}

// New creates a Poller.
func New(client Client, opts ...Option) *Poller {
	p := &Poller{
		client: client,
		logger: logger.GetLogger(),
		latest: xsync.NewMapOf[uint16, Result](),
	}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Poll reads every station in stationIDs once and waits for all of them.
// The returned map holds one result per station.
func (p *Poller) Poll(ctx context.Context, stationIDs []uint16, mode frame.Mode, kind transport.Kind) map[uint16]Result {
	results := xsync.NewMapOf[uint16, Result]()

	p.forEach(stationIDs, func(id uint16) {
		start := time.Now()
		reading, err := p.client.ReadChannels(ctx, id, mode, kind)
		r := Result{
			StationID: id,
			Reading:   reading,
			Err:       err,
			Elapsed:   time.Since(start),
			At:        time.Now(),
		}

		if err != nil {
			p.logger.Warn("station read failed", "station", id, "error", err)
		} else {
			p.logger.Debug("station read", "station", id, "channels", len(reading.Channels), "elapsed", r.Elapsed)
		}

		results.Store(id, r)
		p.latest.Store(id, r)
		if p.onResult != nil {
			p.onResult(r)
		}
	})

	out := make(map[uint16]Result, results.Size())
	results.Range(func(id uint16, r Result) bool {
		out[id] = r
		return true
	})

	return out
}

// SyncAll sets the clock of every station in stationIDs to the value returned
// by now at the time each request is built. The returned map holds the error
// of each station, nil on success.
func (p *Poller) SyncAll(ctx context.Context, stationIDs []uint16, now func() time.Time, kind transport.Kind) map[uint16]error {
	results := xsync.NewMapOf[uint16, error]()

	p.forEach(stationIDs, func(id uint16) {
		err := p.client.SyncClock(ctx, id, now(), kind)
		if err != nil {
			p.logger.Warn("station clock sync failed", "station", id, "error", err)
		}
		results.Store(id, err)
	})

	out := make(map[uint16]error, results.Size())
	results.Range(func(id uint16, err error) bool {
		out[id] = err
		return true
	})

	return out
}

// Run polls stationIDs every interval until ctx is done. The first poll
// starts immediately. Run returns ctx.Err().
func (p *Poller) Run(ctx context.Context, stationIDs []uint16, mode frame.Mode, kind transport.Kind, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("poller: interval must be positive")
	}

	for {
		start := time.Now()
		p.Poll(ctx, stationIDs, mode, kind)

		if err := pool.Sleep(ctx, interval-time.Since(start)); err != nil {
			return err
		}
	}
}

// Latest returns the most recent result of a station.
func (p *Poller) Latest(stationID uint16) (Result, bool) {
	return p.latest.Load(stationID)
}

func (p *Poller) forEach(stationIDs []uint16, fn func(id uint16)) {
	var sem chan struct{}
	if p.concurrency > 0 {
		sem = make(chan struct{}, p.concurrency)
	}

	done := make(chan struct{}, len(stationIDs))
	for _, id := range stationIDs {
		go func(id uint16) {
			defer func() { done <- struct{}{} }()

			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}
			fn(id)
		}(id)
	}

	for range stationIDs {
		<-done
	}
}
