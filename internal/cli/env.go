package cli

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/spf13/cobra"

	"github.com/roach88/mapsync/internal/config"
	"github.com/roach88/mapsync/internal/session"
	"github.com/roach88/mapsync/internal/store"
)

// mapEnv is what a command works with: the loaded config, the session and
// the journal behind it, if one is configured.
type mapEnv struct {
	cfg     *config.Config
	sess    *session.Session
	journal *store.Store
}

// loadConfig reads --config and installs the logger it asks for.
func loadConfig(opts *RootOptions, cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	setupLogging(opts, cfg, cmd.ErrOrStderr())
	return cfg, nil
}

// openEnv loads the config, opens the journal and builds the session.
// Callers must Close the result.
func openEnv(opts *RootOptions, cmd *cobra.Command, extra ...session.Option) (*mapEnv, error) {
	cfg, err := loadConfig(opts, cmd)
	if err != nil {
		return nil, err
	}
	env := &mapEnv{cfg: cfg}

	sopts := []session.Option{session.WithLogger(slog.Default())}
	if cfg.Journal != "" {
		slog.Debug("opening journal", "path", cfg.Journal)
		st, err := store.Open(cfg.Journal)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		env.journal = st
		sopts = append(sopts, session.WithJournal(st))
	}
	sopts = append(sopts, extra...)

	s, err := session.New(cfg.SessionConfig(), sopts...)
	if err != nil {
		env.Close()
		return nil, operationError("failed to create session", err)
	}
	env.sess = s
	return env, nil
}

// Close releases the journal.
func (e *mapEnv) Close() {
	if e.journal == nil {
		return
	}
	if err := e.journal.Close(); err != nil {
		slog.Error("error closing journal", "error", err)
	}
}

// refresh polls once so the cache reflects the server.
func (e *mapEnv) refresh(ctx context.Context) error {
	if err := e.sess.Refresh(ctx); err != nil {
		return operationError("failed to sync map", err)
	}
	return nil
}

// setupLogging installs a text handler on w at the configured level, or
// Debug with --verbose.
func setupLogging(opts *RootOptions, cfg *config.Config, w io.Writer) {
	level := cfg.Level()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// commandContext returns the command's context, or Background when the
// command was executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// lockedWriter serializes writes from notification callbacks, which run on
// the session's worker goroutines.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
