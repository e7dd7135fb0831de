package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ch32hal/drivers/can"
)

func newTimingCmd() *cobra.Command {
	var (
		clock   uint32
		bitrate uint32
		all     bool
	)
	cmd := &cobra.Command{
		Use:   "timing",
		Short: "compute controller bit timing for a clock and bit rate",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			t, ok := can.CalcTimings(clock, bitrate)
			if !ok {
				return fmt.Errorf("no exact timing for %d Hz at %d bit/s", clock, bitrate)
			}
			fmt.Fprintf(out, "clock %d Hz, bitrate %d bit/s\n", clock, bitrate)
			fmt.Fprintln(out, formatTiming(t))
			if all {
				fmt.Fprintln(out, "candidates:")
				for _, c := range can.Candidates(clock, bitrate) {
					fmt.Fprintln(out, "  "+formatTiming(c))
				}
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.Uint32Var(&clock, "clock", 36_000_000, "peripheral clock in Hz")
	f.Uint32Var(&bitrate, flagBitrate, 500_000, "CAN bit rate")
	f.BoolVar(&all, "all", false, "list every valid timing")
	return cmd
}

func formatTiming(t can.BitTiming) string {
	sp := t.SamplePointPermille()
	return fmt.Sprintf("prescaler=%d seg1=%d seg2=%d sjw=%d quanta=%d sample=%d.%d%%",
		t.Prescaler, t.Seg1, t.Seg2, t.SJW, t.Quanta(), sp/10, sp%10)
}
