package session

import (
	"time"

	"github.com/arloliu/go-meteodata/channel"
	"github.com/arloliu/go-meteodata/frame"
)

// Reading is the result of a successful ReadChannels call.
type Reading struct {
	StationID uint16
	Mode      frame.Mode
	// Timestamp is the station clock time of the snapshot.
	Timestamp time.Time
	// Channels holds one entry per configured channel, in station order.
	Channels []channel.NamedReading
	// Telemetry is the fully decoded frame, including trailer fields.
	Telemetry *frame.Telemetry
}

// ByName indexes the channels by abbreviation; the last occurrence wins.
func (r *Reading) ByName() map[string]channel.NamedReading {
	return channel.ToMap(r.Channels)
}
