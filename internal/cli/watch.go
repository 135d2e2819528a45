package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/roach88/mapsync/internal/feature"
	"github.com/roach88/mapsync/internal/session"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	MetricsAddr string
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Mirror the map and print changes until interrupted",
		Long: `Run the sync loop and the queue worker for the configured map.

Every change seen by a poll is printed as one line. Queued requests left in
the journal by earlier commands are delivered first.

Example:
  mapsync watch --config ./mapsync.yaml
  mapsync watch --metrics-addr :9120 --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (overrides metrics_addr)")

	return cmd
}

func runWatch(opts *WatchOptions, cmd *cobra.Command) error {
	out := &lockedWriter{w: cmd.OutOrStdout()}
	env, err := openEnv(opts.RootOptions, cmd, session.WithNotifier(watchNotifier(out)))
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	addr := opts.MetricsAddr
	if addr == "" {
		addr = env.cfg.MetricsAddr
	}
	if addr != "" {
		stop := serveMetrics(addr)
		defer stop()
	}

	slog.Info("watching map", "domain", env.cfg.Domain, "map", env.cfg.MapID)
	err = env.sess.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return operationError("session error", err)
	}
	if env.sess.Closed() {
		return NewExitError(ExitFailure, "map was closed by the server")
	}

	slog.Info("watch stopped")
	return nil
}

// watchNotifier prints one line per notification.
func watchNotifier(w io.Writer) session.Notifier {
	line := func(format string, args ...any) {
		fmt.Fprintf(w, format+"\n", args...)
	}
	return session.Notifier{
		NewFeature: func(f *feature.Feature) {
			line("new %s %s %q", f.Class(), f.ID, f.Title())
		},
		PropertyChanged: func(f *feature.Feature) {
			line("properties %s %s %q", f.Class(), f.ID, f.Title())
		},
		GeometryChanged: func(f *feature.Feature) {
			line("geometry %s %s %d points", f.Class(), f.ID, f.Geometry.NumPositions())
		},
		DeletedFeature: func(id string, class feature.Class) {
			line("deleted %s %s", class, id)
		},
		Disconnected: func() { line("disconnected") },
		Reconnected:  func() { line("reconnected") },
		FailedRequest: func(info session.RequestInfo, err error) {
			line("failed %s %s: %v", info.Method, info.Path, err)
		},
		MapClosed: func() { line("map closed") },
		SyncCompleted: func(ts int64) {
			slog.Debug("sync completed", "timestamp", ts)
		},
		QueueLengthChanged: func(n int) {
			slog.Debug("queue length", "n", n)
		},
	}
}

// serveMetrics exposes /metrics on addr until the returned func is called.
func serveMetrics(addr string) (stop func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		slog.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("metrics server shutdown", "error", err)
		}
	}
}
