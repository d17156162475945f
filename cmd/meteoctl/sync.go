package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-meteodata/poller"
	"github.com/arloliu/go-meteodata/transport"
)

type syncFlags struct {
	stations  []uint
	at        string
	transport string
}

func newSyncCmd(root *rootFlags) *cobra.Command {
	flags := &syncFlags{}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize station clocks",
		Long: `Set the clock of the given stations (all configured stations by default)
to the current time, or to the time given with --time (RFC 3339).`,
		Example: `  meteoctl sync
  meteoctl sync --station 12 --time 2024-05-01T12:00:00+02:00`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind, err := transport.ParseKind(flags.transport)
			if err != nil {
				return err
			}

			now := time.Now
			if flags.at != "" && flags.at != "now" {
				t, err := time.Parse(time.RFC3339, flags.at)
				if err != nil {
					return fmt.Errorf("--time: %w", err)
				}
				now = func() time.Time { return t }
			}

			a, err := loadApp(root)
			if err != nil {
				return err
			}

			ids, err := a.stationIDs(flags.stations)
			if err != nil {
				return err
			}

			p := poller.New(a.controller, poller.WithLogger(a.logger))
			errs := p.SyncAll(cmd.Context(), ids, now, kind)

			failed := 0
			for _, id := range sortedKeys(errs) {
				if err := errs[id]; err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "station %d: %v\n", id, err)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "station %d: synchronized\n", id)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d stations failed", failed, len(errs))
			}

			return nil
		},
	}

	cmd.Flags().UintSliceVarP(&flags.stations, "station", "s", nil, "station ids (default all)")
	cmd.Flags().StringVar(&flags.at, "time", "now", "clock value, RFC 3339 or \"now\"")
	cmd.Flags().StringVarP(&flags.transport, "transport", "t", "tcp", "transport: tcp or serial")

	return cmd
}
