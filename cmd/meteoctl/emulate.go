package main

import (
	"fmt"
	"math/rand/v2"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-meteodata/config"
	"github.com/arloliu/go-meteodata/emulator"
	"github.com/arloliu/go-meteodata/logger"
)

type emulateFlags struct {
	listen   string
	stations []uint
	delay    time.Duration
	jitter   float64
}

func newEmulateCmd(root *rootFlags) *cobra.Command {
	flags := &emulateFlags{}

	cmd := &cobra.Command{
		Use:   "emulate",
		Short: "Run a TCP station emulator",
		Long: `Serve the configured stations (or the ones given with --station) on a TCP
address. Each emulated station reports one value per catalog channel; values
drift randomly by up to --jitter between requests.`,
		Example: `  meteoctl emulate --listen 127.0.0.1:2001
  meteoctl emulate --listen :2001 --station 12 --delay 500ms`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			file, err := config.Load(root.config)
			if err != nil {
				return err
			}

			level := file.Log.LogLevel()
			if root.logLevel != "" {
				level = logger.ParseLevel(root.logLevel)
			}
			l := logger.NewSlogWriter(cmd.ErrOrStderr(), level, false, true)

			cfg, err := file.StationConfig(l)
			if err != nil {
				return err
			}

			ids := file.StationIDs()
			if len(flags.stations) > 0 {
				ids, err = parseStationIDs(flags.stations)
				if err != nil {
					return err
				}
			}

			srv := emulator.NewServer(cfg.Codec(), emulator.WithLogger(l), emulator.WithResponseDelay(flags.delay))
			stations := make([]*emulator.Station, 0, len(ids))
			for _, id := range ids {
				sc, ok := file.Station(id)
				if !ok {
					return fmt.Errorf("station %d is not configured", id)
				}
				values := make([]float64, len(sc.Channels))
				for i := range values {
					values[i] = float64(i+1) * 10
				}
				st := emulator.NewStation(id, cfg.UserID(), values)
				srv.AddStation(st)
				stations = append(stations, st)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := srv.Listen(ctx, flags.listen); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "emulating %d stations on %s\n", len(stations), srv.Addr())

			if flags.jitter > 0 {
				go drift(ctx.Done(), stations, flags.jitter)
			}

			<-ctx.Done()

			return srv.Close()
		},
	}

	cmd.Flags().StringVarP(&flags.listen, "listen", "l", "127.0.0.1:2001", "listen address")
	cmd.Flags().UintSliceVarP(&flags.stations, "station", "s", nil, "station ids (default all)")
	cmd.Flags().DurationVar(&flags.delay, "delay", 0, "response delay")
	cmd.Flags().Float64Var(&flags.jitter, "jitter", 0.5, "maximum random drift per second")

	return cmd
}

// drift moves each station's values by a random step every second.
func drift(done <-chan struct{}, stations []*emulator.Station, jitter float64) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	values := make(map[*emulator.Station][]float64, len(stations))

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			for _, st := range stations {
				v, ok := values[st]
				if !ok {
					v = st.Values()
				}
				for i := range v {
					v[i] += (rand.Float64()*2 - 1) * jitter
				}
				values[st] = v
				st.SetValues(v)
			}
		}
	}
}
