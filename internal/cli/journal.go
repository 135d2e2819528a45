package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/mapsync/internal/store"
)

// JournalOptions holds flags for the journal command.
type JournalOptions struct {
	*RootOptions
	History int
	Prune   int
}

// JournalEntry is one pending request in journal output.
type JournalEntry struct {
	Seq     int64     `json:"seq"`
	ID      string    `json:"id"`
	Method  string    `json:"method"`
	Path    string    `json:"path"`
	Created time.Time `json:"created"`
}

// JournalReport is the journal command's result.
type JournalReport struct {
	Pending  []JournalEntry     `json:"pending"`
	LastSync int64              `json:"last_sync"`
	History  []store.SyncRecord `json:"history,omitempty"`
	Pruned   int64              `json:"pruned,omitempty"`
}

func (r JournalReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "pending: %d\n", len(r.Pending))
	for _, e := range r.Pending {
		fmt.Fprintf(&b, "  %d %s %s %s %s\n", e.Seq, e.ID, e.Method, e.Path, e.Created.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "last sync: %d", r.LastSync)
	for _, h := range r.History {
		fmt.Fprintf(&b, "\n  sync %d changed=%d deleted=%d", h.Timestamp, h.Changed, h.Deleted)
	}
	if r.Pruned > 0 {
		fmt.Fprintf(&b, "\npruned: %d", r.Pruned)
	}
	return b.String()
}

// NewJournalCommand creates the journal command.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show queued requests and sync history",
		Long: `Show the requests waiting in the journal and the most recent polls.

The journal is the SQLite file named by the config's journal key. Pending
requests are delivered, in order, by the next 'mapsync watch'.

Example:
  mapsync journal
  mapsync journal --history 20 --prune 1000`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournal(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.History, "history", 0, "also show this many of the most recent polls")
	cmd.Flags().IntVar(&opts.Prune, "prune", 0, "keep only this many poll records (0 keeps all)")

	return cmd
}

func runJournal(opts *JournalOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	if cfg.Journal == "" {
		return NewExitError(ExitCommandError, "no journal configured")
	}

	st, err := store.Open(cfg.Journal)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer st.Close()

	ctx := commandContext(cmd)
	var report JournalReport

	if opts.Prune > 0 {
		n, err := st.PruneSyncLog(ctx, opts.Prune)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to prune sync log", err)
		}
		report.Pruned = n
	}

	pending, err := st.PendingEntries(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read journal", err)
	}
	report.Pending = make([]JournalEntry, 0, len(pending))
	for _, e := range pending {
		report.Pending = append(report.Pending, JournalEntry{
			Seq:     e.Seq,
			ID:      e.ID,
			Method:  e.Method,
			Path:    e.Path,
			Created: e.CreatedAt.UTC(),
		})
	}

	if report.LastSync, err = st.LastSync(ctx); err != nil {
		return WrapExitError(ExitFailure, "failed to read sync log", err)
	}
	if opts.History > 0 {
		if report.History, err = st.SyncLog(ctx, opts.History); err != nil {
			return WrapExitError(ExitFailure, "failed to read sync log", err)
		}
	}

	return newFormatter(opts.RootOptions, cmd).Success(report)
}
