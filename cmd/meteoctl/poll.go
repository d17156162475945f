package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-meteodata/frame"
	"github.com/arloliu/go-meteodata/poller"
	"github.com/arloliu/go-meteodata/transport"
)

type pollFlags struct {
	stations    []uint
	mode        string
	transport   string
	interval    time.Duration
	concurrency int
}

func newPollCmd(root *rootFlags) *cobra.Command {
	flags := &pollFlags{}

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Read several stations in parallel",
		Long: `Read the given stations (all configured stations by default) in parallel,
one worker per station. With --interval the poll repeats until interrupted.`,
		Example: `  meteoctl poll
  meteoctl poll --mode mean --interval 1m`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode, err := frame.ParseMode(flags.mode)
			if err != nil {
				return err
			}
			kind, err := transport.ParseKind(flags.transport)
			if err != nil {
				return err
			}

			a, err := loadApp(root)
			if err != nil {
				return err
			}

			ids, err := a.stationIDs(flags.stations)
			if err != nil {
				return err
			}

			var mu sync.Mutex
			out := cmd.OutOrStdout()
			report := func(r poller.Result) {
				mu.Lock()
				defer mu.Unlock()
				if r.Err != nil {
					fmt.Fprintf(out, "station %d: %v\n", r.StationID, r.Err)
					return
				}
				_ = printReading(out, r.Reading)
			}

			p := poller.New(a.controller,
				poller.WithLogger(a.logger),
				poller.WithConcurrency(flags.concurrency),
				poller.WithResultHandler(report),
			)

			if flags.interval <= 0 {
				results := p.Poll(cmd.Context(), ids, mode, kind)
				failed := 0
				for _, r := range results {
					if r.Err != nil {
						failed++
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d stations failed", failed, len(results))
				}

				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			err = p.Run(ctx, ids, mode, kind, flags.interval)
			if errors.Is(err, context.Canceled) {
				return nil
			}

			return err
		},
	}

	cmd.Flags().UintSliceVarP(&flags.stations, "station", "s", nil, "station ids (default all)")
	cmd.Flags().StringVarP(&flags.mode, "mode", "m", "instantaneous", "read mode")
	cmd.Flags().StringVarP(&flags.transport, "transport", "t", "tcp", "transport: tcp or serial")
	cmd.Flags().DurationVar(&flags.interval, "interval", 0, "repeat interval, 0 polls once")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 0, "maximum stations read at once, 0 for no limit")

	return cmd
}
