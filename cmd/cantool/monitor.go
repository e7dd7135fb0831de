package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"ch32hal/drivers/can"
	"ch32hal/services/slcan"
)

var (
	rxFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cantool_rx_frames_total",
		Help: "Frames received from the adapter.",
	}, []string{"kind"})
	malformedLines = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cantool_malformed_lines_total",
		Help: "Adapter lines that did not decode.",
	})
	adapterErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cantool_adapter_errors_total",
		Help: "BEL replies from the adapter.",
	})
)

var (
	idColor     = color.New(color.FgHiBlue).SprintfFunc()
	dataColor   = color.New(color.FgGreen).SprintfFunc()
	remoteColor = color.New(color.FgYellow).SprintfFunc()
)

func newMonitorCmd() *cobra.Command {
	var (
		metricsAddr string
		listenOnly  bool
	)
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "print frames seen by an SLCAN adapter",
		RunE: func(cmd *cobra.Command, _ []string) error {
			port, _ := cmd.Flags().GetString(flagPort)
			baud, _ := cmd.Flags().GetInt(flagBaudrate)
			bitrate, _ := cmd.Flags().GetUint32(flagBitrate)

			p, err := openAdapter(cmd.Context(), port, baud, bitrate, listenOnly)
			if err != nil {
				return err
			}
			defer closeAdapter(p)

			g, ctx := errgroup.WithContext(cmd.Context())
			if metricsAddr != "" {
				g.Go(func() error { return serveMetrics(ctx, metricsAddr) })
			}
			g.Go(func() error {
				out := cmd.OutOrStdout()
				var split lineSplitter
				buf := make([]byte, 256)
				for ctx.Err() == nil {
					n, err := p.Read(buf)
					if err != nil {
						return fmt.Errorf("read %s: %w", port, err)
					}
					split.feed(buf[:n], func(line []byte) { handleLine(out, line, time.Now()) })
				}
				return nil
			})
			return g.Wait()
		},
	}
	serialFlags(cmd)
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().BoolVar(&listenOnly, "listen", false, "open the channel listen-only")
	return cmd
}

func handleLine(w io.Writer, line []byte, now time.Time) {
	switch line[0] {
	case slcan.BEL:
		adapterErrors.Inc()
		slog.Warn("adapter_error")
	case 'z', 'Z':
	case 't', 'r':
		f, err := slcan.ParseFrame(line)
		if err != nil {
			malformedLines.Inc()
			slog.Debug("malformed_line", "line", string(line), "error", err)
			return
		}
		if f.Remote {
			rxFrames.WithLabelValues("remote").Inc()
		} else {
			rxFrames.WithLabelValues("data").Inc()
		}
		fmt.Fprintln(w, formatFrame(f, now))
	default:
		slog.Debug("adapter_line", "line", string(line))
	}
}

func formatFrame(f can.Frame, now time.Time) string {
	var b strings.Builder
	b.WriteString(now.Format("15:04:05.000"))
	b.WriteString("  ")
	b.WriteString(idColor("%03X", uint16(f.ID)))
	fmt.Fprintf(&b, "  [%d]", f.DLC)
	if f.Remote {
		b.WriteString("  " + remoteColor("remote"))
		return b.String()
	}
	for _, d := range f.Payload() {
		b.WriteString(" " + dataColor("%02X", d))
	}
	return b.String()
}

// serveMetrics serves /metrics until ctx ends.
func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	slog.Info("metrics_listen", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics: %w", err)
	}
	return nil
}
