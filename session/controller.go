// Package session drives request/response exchanges with stations.
//
// A Controller builds the request frame once, sends it over a fresh transport
// per attempt, and retries transport failures and wrong-sized responses up to
// the configured attempt budget. The header and acknowledgement checks happen
// once, after a correctly sized response arrived, and are never retried.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-meteodata/channel"
	"github.com/arloliu/go-meteodata/frame"
	"github.com/arloliu/go-meteodata/logger"
	"github.com/arloliu/go-meteodata/station"
	"github.com/arloliu/go-meteodata/transport"
)

// ErrCommunicationFailure indicates a request that exhausted its attempts.
// The last transport or length error is wrapped as well.
var ErrCommunicationFailure = errors.New("session: communication failure")

// Controller reads channels from and synchronizes the clock of registered stations.
//
// A Controller holds immutable configuration and atomic metrics only; it is
// safe for concurrent use.
type Controller struct {
	cfg      *station.Config
	codec    *frame.Codec
	registry *station.Registry
	catalog  channel.CatalogProvider
	factory  transport.Factory
	logger   logger.Logger
	metrics  Metrics
}

// Option configures a Controller.
type Option func(*Controller)

// WithTransportFactory replaces the transport factory. The default is transport.NewFactory(cfg).
func WithTransportFactory(f transport.Factory) Option {
	return func(c *Controller) {
		if f != nil {
			c.factory = f
		}
	}
}

// WithLogger replaces the logger taken from the station config.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewController creates a Controller.
func NewController(
	cfg *station.Config,
	registry *station.Registry,
	catalog channel.CatalogProvider,
	opts ...Option,
) (*Controller, error) {
	if cfg == nil {
		return nil, errors.New("session: config must not be nil")
	}
	if registry == nil {
		return nil, errors.New("session: registry must not be nil")
	}
	if catalog == nil {
		return nil, errors.New("session: catalog provider must not be nil")
	}

	c := &Controller{
		cfg:      cfg,
		codec:    cfg.Codec(),
		registry: registry,
		catalog:  catalog,
		factory:  transport.NewFactory(cfg),
		logger:   cfg.GetLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Metrics returns the controller metrics.
func (c *Controller) Metrics() *Metrics {
	return &c.metrics
}

// Registry returns the station registry.
func (c *Controller) Registry() *station.Registry {
	return c.registry
}

// ReadChannels requests a measurement snapshot of the given mode from a
// station and names its values with the station catalog.
//
// Unknown stations and invalid modes fail before any I/O. A header mismatch
// returns frame.ErrHeaderMismatch, a catalog of the wrong length returns
// channel.ErrDecodingInconsistency, and exhausted attempts return ErrCommunicationFailure.
func (c *Controller) ReadChannels(ctx context.Context, stationID uint16, mode frame.Mode, kind transport.Kind) (*Reading, error) {
	addr, err := c.lookup(stationID, kind)
	if err != nil {
		return nil, err
	}

	req, err := c.codec.EncodeReadCommand(stationID, c.cfg.UserID(), mode)
	if err != nil {
		return nil, err
	}

	l := c.logger.With("station", stationID, "mode", mode.String(), "transport", kind.String())

	resp, err := c.exchange(ctx, l, addr, req, frame.TelemetryFrameSize, kind)
	if err != nil {
		return nil, err
	}

	if err := c.checkHeader(resp, stationID); err != nil {
		l.Error("response header mismatch", "header", frame.Dump(resp[:frame.HeaderSize]))
		return nil, err
	}

	tm, err := c.codec.DecodeTelemetry(resp)
	if err != nil {
		return nil, fmt.Errorf("session: station %d: %w", stationID, err)
	}

	catalog, err := c.catalog.Catalog(ctx, stationID)
	if err != nil {
		return nil, fmt.Errorf("session: station %d: %w", stationID, err)
	}

	named, err := channel.Decode(tm.Values, catalog)
	if err != nil {
		l.Error("catalog does not match station channels", "channels", tm.ChannelCount, "catalog", len(catalog))
		return nil, fmt.Errorf("session: station %d: %w", stationID, err)
	}

	if tm.Command != mode {
		l.Warn("station echoed another mode", "echoed", tm.Command.String())
	}

	c.metrics.incReadCount()
	l.Debug("channels read", "timestamp", tm.Timestamp, "channels", tm.ChannelCount)

	return &Reading{
		StationID: stationID,
		Mode:      mode,
		Timestamp: tm.Timestamp,
		Channels:  named,
		Telemetry: tm,
	}, nil
}

// SyncClock sets the station clock to t.
//
// It returns nil when the station acknowledged, *frame.DeviceError when it
// rejected the request, frame.ErrUnrecognizedAck for any other status, and
// ErrCommunicationFailure when no correctly sized acknowledgement arrived.
func (c *Controller) SyncClock(ctx context.Context, stationID uint16, t time.Time, kind transport.Kind) error {
	addr, err := c.lookup(stationID, kind)
	if err != nil {
		return err
	}

	req, err := c.codec.EncodeSyncCommand(stationID, c.cfg.UserID(), t)
	if err != nil {
		return err
	}

	l := c.logger.With("station", stationID, "transport", kind.String())

	resp, err := c.exchange(ctx, l, addr, req, frame.AckFrameSize, kind)
	if err != nil {
		return err
	}

	if err := c.checkHeader(resp, stationID); err != nil {
		l.Error("acknowledgement header mismatch", "header", frame.Dump(resp[:frame.HeaderSize]))
		return err
	}

	if err := frame.DecodeAck(resp); err != nil {
		var devErr *frame.DeviceError
		if errors.As(err, &devErr) {
			c.metrics.incDeviceErrorCount()
		}
		l.Warn("clock synchronization rejected", "error", err)

		return err
	}

	c.metrics.incSyncCount()
	l.Info("clock synchronized", "time", t.In(c.codec.Location()).Format(time.DateTime))

	return nil
}

// exchange sends req with a fresh transport per attempt until a response of
// exactly expected bytes arrives or the attempts run out.
func (c *Controller) exchange(
	ctx context.Context,
	l logger.Logger,
	addr station.Address,
	req []byte,
	expected int,
	kind transport.Kind,
) ([]byte, error) {
	maxAttempts := c.cfg.MaxAttempts()

	var lastErr error
	attempt := 0
	for attempt < maxAttempts {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		t, err := c.factory(kind)
		if err != nil {
			return nil, err
		}

		attempt++
		c.metrics.incAttemptCount()
		if attempt > 1 {
			c.metrics.incRetryCount()
		}

		resp, err := t.Send(ctx, addr, req, expected)
		if err != nil {
			lastErr = err
			l.Warn("attempt failed", "attempt", attempt, "max_attempts", maxAttempts, "error", err)

			continue
		}

		if len(resp) != expected {
			lastErr = fmt.Errorf("%w: got %d bytes, want %d", frame.ErrInvalidLength, len(resp), expected)
			l.Warn("unexpected response size", "attempt", attempt, "max_attempts", maxAttempts, "size", len(resp), "expected", expected)

			continue
		}

		return resp, nil
	}

	c.metrics.incCommFailureCount()
	l.Error("communication failed", "attempts", attempt, "error", lastErr)

	return nil, fmt.Errorf("%w: station %d after %d attempts: %w", ErrCommunicationFailure, addr.ID, attempt, lastErr)
}

func (c *Controller) lookup(stationID uint16, kind transport.Kind) (station.Address, error) {
	if !kind.Valid() {
		return station.Address{}, fmt.Errorf("%w: %s", transport.ErrUnknownKind, kind)
	}

	return c.registry.Lookup(stationID)
}

func (c *Controller) checkHeader(resp []byte, stationID uint16) error {
	if c.codec.ValidateHeader(resp, stationID, c.cfg.UserID()) {
		return nil
	}
	c.metrics.incHeaderMismatchCount()

	return fmt.Errorf("%w: station %d", frame.ErrHeaderMismatch, stationID)
}
