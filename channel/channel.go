// Package channel attaches channel names and units to the positional values
// of a telemetry frame.
//
// A station reports its measurements in configured channel order without
// names. The catalog of a station lists its channels in that same order, and
// Decode pairs the two by position.
package channel

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrDecodingInconsistency indicates a catalog whose length differs from
	// the number of decoded values.
	ErrDecodingInconsistency = errors.New("channel: catalog does not match decoded channel count")

	// ErrNoCatalog indicates a station with no catalog registered.
	ErrNoCatalog = errors.New("channel: no catalog for station")
)

// Channel describes one measurement channel.
type Channel struct {
	Abbreviation string `yaml:"abbreviation"`
	Unit         string `yaml:"unit"`
}

// Catalog lists a station's channels in station order.
type Catalog []Channel

// Abbreviations returns the channel abbreviations in order.
func (c Catalog) Abbreviations() []string {
	names := make([]string, len(c))
	for i, ch := range c {
		names[i] = ch.Abbreviation
	}

	return names
}

// Duplicates returns the abbreviations that appear more than once, sorted.
func (c Catalog) Duplicates() []string {
	seen := make(map[string]int, len(c))
	for _, ch := range c {
		seen[ch.Abbreviation]++
	}

	var dups []string
	for name, n := range seen {
		if n > 1 {
			dups = append(dups, name)
		}
	}
	sort.Strings(dups)

	return dups
}

// CatalogProvider supplies the catalog of a station.
type CatalogProvider interface {
	Catalog(ctx context.Context, stationID uint16) (Catalog, error)
}

// StaticCatalog is a CatalogProvider backed by a fixed map.
type StaticCatalog map[uint16]Catalog

var _ CatalogProvider = StaticCatalog(nil)

// Catalog returns the catalog of stationID or ErrNoCatalog.
func (s StaticCatalog) Catalog(_ context.Context, stationID uint16) (Catalog, error) {
	c, ok := s[stationID]
	if !ok {
		return nil, fmt.Errorf("%w %d", ErrNoCatalog, stationID)
	}

	return c, nil
}

// NamedReading is one decoded measurement with its channel metadata.
type NamedReading struct {
	Abbreviation string
	Value        float64
	Unit         string
}

// Decode pairs values with catalog entries by position.
//
// The lengths must match exactly; values are never truncated or padded.
func Decode(values []float64, catalog Catalog) ([]NamedReading, error) {
	if len(values) != len(catalog) {
		return nil, fmt.Errorf("%w: %d values, %d catalog entries", ErrDecodingInconsistency, len(values), len(catalog))
	}

	readings := make([]NamedReading, len(values))
	for i, v := range values {
		readings[i] = NamedReading{
			Abbreviation: catalog[i].Abbreviation,
			Value:        v,
			Unit:         catalog[i].Unit,
		}
	}

	return readings, nil
}

// ToMap indexes readings by abbreviation. When an abbreviation repeats, the
// last position wins.
func ToMap(readings []NamedReading) map[string]NamedReading {
	m := make(map[string]NamedReading, len(readings))
	for _, r := range readings {
		m[r.Abbreviation] = r
	}

	return m
}
