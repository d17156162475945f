package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-meteodata/frame"
	"github.com/arloliu/go-meteodata/transport"
)

type readFlags struct {
	station   uint
	mode      string
	transport string
}

func newReadCmd(root *rootFlags) *cobra.Command {
	flags := &readFlags{}

	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read the channels of one station",
		Long: `Request a measurement snapshot from one station and print its channels.

Modes: instantaneous, tendency, last-stored, mean, accumulated, integrated,
max, min, stddev, increment, alarm-state and or. A numeric command code is
accepted as well.`,
		Example: `  meteoctl read --station 12
  meteoctl read --station 12 --mode mean --transport serial`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("station") {
				return fmt.Errorf("--station is required")
			}
			if flags.station > 0xFFFF {
				return fmt.Errorf("station id %d out of range", flags.station)
			}

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

			r, err := a.controller.ReadChannels(cmd.Context(), uint16(flags.station), mode, kind)
			if err != nil {
				return err
			}

			return printReading(cmd.OutOrStdout(), r)
		},
	}

	cmd.Flags().UintVarP(&flags.station, "station", "s", 0, "station id")
	cmd.Flags().StringVarP(&flags.mode, "mode", "m", "instantaneous", "read mode")
	cmd.Flags().StringVarP(&flags.transport, "transport", "t", "tcp", "transport: tcp or serial")

	return cmd
}
