package main

import (
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/arloliu/go-meteodata/config"
	"github.com/arloliu/go-meteodata/logger"
	"github.com/arloliu/go-meteodata/session"
	"github.com/arloliu/go-meteodata/station"
)

// app bundles everything a subcommand needs from the station file.
type app struct {
	file       *config.Config
	cfg        *station.Config
	logger     logger.Logger
	controller *session.Controller
}

func loadApp(flags *rootFlags) (*app, error) {
	file, err := config.Load(flags.config)
	if err != nil {
		return nil, err
	}

	level := file.Log.LogLevel()
	if flags.logLevel != "" {
		level = logger.ParseLevel(flags.logLevel)
	}
	l := logger.NewSlogWriter(os.Stderr, level, false, flags.console || os.Getenv("ENV") == "development")
	logger.SetLogger(l)

	cfg, err := file.StationConfig(l)
	if err != nil {
		return nil, err
	}

	registry, err := file.Registry()
	if err != nil {
		return nil, err
	}

	controller, err := session.NewController(cfg, registry, file.Catalog())
	if err != nil {
		return nil, err
	}

	return &app{file: file, cfg: cfg, logger: l, controller: controller}, nil
}

// stationIDs returns ids when given, otherwise every configured station.
func (a *app) stationIDs(ids []uint) ([]uint16, error) {
	if len(ids) == 0 {
		return a.file.StationIDs(), nil
	}

	return parseStationIDs(ids)
}

// parseStationIDs range-checks ids and returns them sorted without repeats.
func parseStationIDs(ids []uint) ([]uint16, error) {
	out := make([]uint16, 0, len(ids))
	for _, id := range ids {
		if id > 0xFFFF {
			return nil, fmt.Errorf("station id %d out of range", id)
		}
		out = append(out, uint16(id))
	}
	slices.Sort(out)

	return slices.Compact(out), nil
}

func printReading(w io.Writer, r *session.Reading) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "station %d\t%s\t%s\n", r.StationID, r.Mode, r.Timestamp.Format("2006-01-02 15:04:05 MST"))
	for _, ch := range r.Channels {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", ch.Abbreviation, strconv.FormatFloat(ch.Value, 'f', 3, 64), ch.Unit)
	}

	return tw.Flush()
}

func sortedKeys[V any](m map[uint16]V) []uint16 {
	keys := make([]uint16, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	return keys
}
