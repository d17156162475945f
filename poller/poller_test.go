package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-meteodata/channel"
	"github.com/arloliu/go-meteodata/frame"
	"github.com/arloliu/go-meteodata/logger"
	"github.com/arloliu/go-meteodata/session"
	"github.com/arloliu/go-meteodata/transport"
)

var errStationDown = errors.New("station down")

// fakeClient answers reads with one channel holding the station id, and fails
// for the stations listed in down.
type fakeClient struct {
	down  map[uint16]bool
	delay time.Duration

	active    atomic.Int32
	maxActive atomic.Int32
	reads     atomic.Int32

	mu     sync.Mutex
	synced map[uint16]time.Time
}

func (f *fakeClient) enter() func() {
	n := f.active.Add(1)
	for {
		m := f.maxActive.Load()
		if n <= m || f.maxActive.CompareAndSwap(m, n) {
			break
		}
	}

	return func() { f.active.Add(-1) }
}

func (f *fakeClient) ReadChannels(_ context.Context, id uint16, mode frame.Mode, _ transport.Kind) (*session.Reading, error) {
	defer f.enter()()
	f.reads.Add(1)
	time.Sleep(f.delay)

	if f.down[id] {
		return nil, errStationDown
	}

	return &session.Reading{
		StationID: id,
		Mode:      mode,
		Channels:  []channel.NamedReading{{Abbreviation: "ID", Value: float64(id)}},
	}, nil
}

func (f *fakeClient) SyncClock(_ context.Context, id uint16, t time.Time, _ transport.Kind) error {
	if f.down[id] {
		return errStationDown
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.synced == nil {
		f.synced = make(map[uint16]time.Time)
	}
	f.synced[id] = t

	return nil
}

func newTestPoller(client Client, opts ...Option) *Poller {
	return New(client, append([]Option{WithLogger(logger.NewSlog(logger.ErrorLevel, false))}, opts...)...)
}

func TestPoll(t *testing.T) {
	client := &fakeClient{down: map[uint16]bool{3: true}}
	p := newTestPoller(client)

	results := p.Poll(context.Background(), []uint16{1, 2, 3}, frame.ModeMean, transport.KindTCP)
	require.Len(t, results, 3)

	for _, id := range []uint16{1, 2} {
		r := results[id]
		require.NoError(t, r.Err)
		assert.Equal(t, id, r.StationID)
		assert.InDelta(t, float64(id), r.Reading.Channels[0].Value, 0)
		assert.Equal(t, frame.ModeMean, r.Reading.Mode)
	}
	require.ErrorIs(t, results[3].Err, errStationDown)
	assert.Nil(t, results[3].Reading)

	latest, ok := p.Latest(2)
	require.True(t, ok)
	assert.Equal(t, uint16(2), latest.Reading.StationID)

	_, ok = p.Latest(9)
	assert.False(t, ok)
}

func TestPoll_Parallel(t *testing.T) {
	client := &fakeClient{delay: 50 * time.Millisecond}
	p := newTestPoller(client)

	start := time.Now()
	p.Poll(context.Background(), []uint16{1, 2, 3, 4}, frame.ModeInstantaneous, transport.KindTCP)

	assert.Less(t, time.Since(start), 150*time.Millisecond)
	assert.Equal(t, int32(4), client.maxActive.Load())
}

func TestPoll_Concurrency(t *testing.T) {
	client := &fakeClient{delay: 10 * time.Millisecond}
	p := newTestPoller(client, WithConcurrency(2))

	results := p.Poll(context.Background(), []uint16{1, 2, 3, 4, 5}, frame.ModeInstantaneous, transport.KindTCP)
	assert.Len(t, results, 5)
	assert.LessOrEqual(t, client.maxActive.Load(), int32(2))
}

func TestPoll_ResultHandler(t *testing.T) {
	var mu sync.Mutex
	var seen []uint16

	p := newTestPoller(&fakeClient{}, WithResultHandler(func(r Result) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, r.StationID)
	}))

	p.Poll(context.Background(), []uint16{7, 8}, frame.ModeInstantaneous, transport.KindTCP)
	assert.ElementsMatch(t, []uint16{7, 8}, seen)
}

func TestSyncAll(t *testing.T) {
	client := &fakeClient{down: map[uint16]bool{2: true}}
	p := newTestPoller(client)

	now := time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)
	errs := p.SyncAll(context.Background(), []uint16{1, 2}, func() time.Time { return now }, transport.KindSerial)

	require.Len(t, errs, 2)
	require.NoError(t, errs[1])
	require.ErrorIs(t, errs[2], errStationDown)
	assert.Equal(t, now, client.synced[1])
}

func TestRun(t *testing.T) {
	client := &fakeClient{}
	p := newTestPoller(client)

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	err := p.Run(ctx, []uint16{1}, frame.ModeInstantaneous, transport.KindTCP, 50*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	reads := client.reads.Load()
	assert.GreaterOrEqual(t, reads, int32(2))
	assert.LessOrEqual(t, reads, int32(4))
}

func TestRun_InvalidInterval(t *testing.T) {
	p := newTestPoller(&fakeClient{})
	require.Error(t, p.Run(context.Background(), []uint16{1}, frame.ModeInstantaneous, transport.KindTCP, 0))
}
