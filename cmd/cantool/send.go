package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ch32hal/drivers/can"
	"ch32hal/services/slcan"
)

func newSendCmd() *cobra.Command {
	var (
		id     string
		data   string
		remote bool
		dlc    uint8
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "send one standard frame through an SLCAN adapter",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := buildFrame(id, data, remote, dlc)
			if err != nil {
				return err
			}
			port, _ := cmd.Flags().GetString(flagPort)
			baud, _ := cmd.Flags().GetInt(flagBaudrate)
			bitrate, _ := cmd.Flags().GetUint32(flagBitrate)

			p, err := openAdapter(cmd.Context(), port, baud, bitrate, false)
			if err != nil {
				return err
			}
			defer closeAdapter(p)
			if err := p.ResetInputBuffer(); err != nil {
				return err
			}

			if _, err := p.Write(slcan.AppendFrame(nil, f)); err != nil {
				return err
			}
			return awaitAck(p, time.Second)
		},
	}
	serialFlags(cmd)
	f := cmd.Flags()
	f.StringVar(&id, "id", "", "11-bit identifier, hex (0x optional)")
	f.StringVar(&data, "data", "", "payload as hex, up to 8 bytes")
	f.BoolVar(&remote, "remote", false, "send a remote frame")
	f.Uint8Var(&dlc, "dlc", 0, "requested length of a remote frame")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func buildFrame(idStr, dataStr string, remote bool, dlc uint8) (can.Frame, error) {
	raw, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(idStr), "0x"), 16, 16)
	if err != nil {
		return can.Frame{}, fmt.Errorf("bad id %q: %w", idStr, err)
	}
	id, ok := can.NewStandardID(uint16(raw))
	if !ok {
		return can.Frame{}, fmt.Errorf("id %#x exceeds 11 bits", raw)
	}
	if remote {
		f, ok := can.NewRemoteFrame(id, dlc)
		if !ok {
			return can.Frame{}, fmt.Errorf("dlc %d exceeds %d", dlc, can.MaxDLC)
		}
		return f, nil
	}
	payload, err := hex.DecodeString(strings.ReplaceAll(dataStr, " ", ""))
	if err != nil {
		return can.Frame{}, fmt.Errorf("bad data %q: %w", dataStr, err)
	}
	f, ok := can.NewFrame(id, payload)
	if !ok {
		return can.Frame{}, fmt.Errorf("payload of %d bytes exceeds %d", len(payload), can.MaxDLC)
	}
	return f, nil
}

// awaitAck waits for the adapter to accept (z) or refuse (BEL) the frame.
func awaitAck(r io.Reader, timeout time.Duration) error {
	var (
		split  lineSplitter
		result error
		done   bool
	)
	buf := make([]byte, 64)
	deadline := time.Now().Add(timeout)
	for !done && time.Now().Before(deadline) {
		n, err := r.Read(buf)
		if err != nil {
			return err
		}
		split.feed(buf[:n], func(line []byte) {
			switch line[0] {
			case 'z', 'Z':
				done = true
			case slcan.BEL:
				result, done = fmt.Errorf("adapter refused the frame"), true
			}
		})
	}
	if !done {
		return fmt.Errorf("no reply from adapter within %s", timeout)
	}
	if result == nil {
		slog.Info("frame_sent")
	}
	return result
}
