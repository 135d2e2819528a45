package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/roach88/mapsync/internal/cache"
	"github.com/roach88/mapsync/internal/feature"
	"github.com/roach88/mapsync/internal/store"
)

// sinceResponse is the body of a "since" poll.
type sinceResponse struct {
	Status string `json:"status"`
	Result struct {
		Timestamp int64       `json:"timestamp"`
		IDs       cache.IDSet `json:"ids"`
		State     struct {
			Features []*feature.Feature `json:"features"`
		} `json:"state"`
	} `json:"result"`
}

// runSync polls on a fixed interval after the warm-up delay until ctx ends.
func (s *Session) runSync(ctx context.Context) error {
	s.log.Debug("sync loop starting", "warmup", s.cfg.SyncWarmup, "interval", s.cfg.SyncInterval)

	warmup := time.NewTimer(s.cfg.SyncWarmup)
	select {
	case <-ctx.Done():
		warmup.Stop()
		return ctx.Err()
	case <-warmup.C:
	}

	ticker := time.NewTicker(s.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		s.tick(ctx)
		if s.Closed() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// tick runs one cycle unless paused or another exchange is in flight.
func (s *Session) tick(ctx context.Context) {
	if s.paused.Load() {
		syncCycles.WithLabelValues("skipped").Inc()
		return
	}
	if !s.exchangeMu.TryLock() {
		syncCycles.WithLabelValues("skipped").Inc()
		s.log.Debug("sync skipped, exchange in flight")
		return
	}
	defer s.exchangeMu.Unlock()

	if err := s.syncCycle(ctx); err != nil && ctx.Err() == nil {
		s.log.Warn("sync failed", "error", err)
	}
}

// Refresh polls once now, waiting for any exchange in flight. It is the
// synchronous form of a sync loop cycle.
func (s *Session) Refresh(ctx context.Context) error {
	if s.Closed() {
		return newError(ErrCodeClosed, "map is closed", nil)
	}
	if s.cfg.MapID == "" {
		return newError(ErrCodeConfig, "sync needs a map id", nil)
	}
	s.exchangeMu.Lock()
	defer s.exchangeMu.Unlock()
	return s.syncCycle(ctx)
}

// syncCycle polls and merges. Callers hold exchangeMu.
//
// A panic anywhere in the cycle is recovered and treated as a disconnect;
// the manual pause is cleared so the loop does not stay wedged.
func (s *Session) syncCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("sync cycle panicked", "panic", r)
			s.paused.Store(false)
			err = fmt.Errorf("sync cycle panicked: %v", r)
			s.markDisconnected(err)
			syncCycles.WithLabelValues("panic").Inc()
		}
	}()

	e, err := s.sinceEntry()
	if err != nil {
		return err
	}

	status, data, err := s.exchange(ctx, e)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		syncCycles.WithLabelValues("transport_error").Inc()
		s.markDisconnected(err)
		return &RequestError{Code: ErrCodeTransport, Message: "poll failed", Method: e.method, Path: e.path, Err: err}
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		syncCycles.WithLabelValues("denied").Inc()
		rerr := &RequestError{Code: ErrCodeDenied, Message: "access to map denied", Method: e.method, Path: e.path, Status: status}
		s.log.Error("map access denied, closing", "status", status)
		s.closeMap("access denied")
		return rerr
	case status != http.StatusOK:
		syncCycles.WithLabelValues("status_error").Inc()
		rerr := &RequestError{Code: ErrCodeStatus, Message: "unexpected status", Method: e.method, Path: e.path, Status: status}
		s.markDisconnected(rerr)
		return rerr
	}

	var resp sinceResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		syncCycles.WithLabelValues("decode_error").Inc()
		s.log.Error("undecodable poll response", "path", e.path, "error", err)
		rerr := &RequestError{Code: ErrCodeDecode, Message: "undecodable poll response", Method: e.method, Path: e.path, Err: err}
		s.markDisconnected(rerr)
		return rerr
	}
	if resp.Status != "ok" {
		syncCycles.WithLabelValues("not_ok").Inc()
		rerr := &RequestError{Code: ErrCodeNotOK, Message: fmt.Sprintf("poll status %q", resp.Status), Method: e.method, Path: e.path}
		s.markDisconnected(rerr)
		return rerr
	}

	s.markConnected()

	changes := s.cache.Merge(cache.Update{
		IDs:      resp.Result.IDs,
		Features: resp.Result.State.Features,
	})

	s.stateMu.Lock()
	s.lastSync = resp.Result.Timestamp
	s.stateMu.Unlock()

	rec := s.publish(changes)
	rec.Timestamp = resp.Result.Timestamp
	rec.At = s.clock.Now()

	syncCycles.WithLabelValues("ok").Inc()
	s.log.Debug("sync completed",
		"timestamp", rec.Timestamp,
		"changed", rec.Changed,
		"deleted", rec.Deleted,
	)
	s.notify.syncCompleted(resp.Result.Timestamp)

	if s.journal != nil {
		if jerr := s.journal.RecordSync(context.WithoutCancel(ctx), rec); jerr != nil {
			s.log.Error("journal sync record failed", "error", jerr)
		}
	}
	return nil
}

// sinceEntry builds the poll request for the current lastSync.
func (s *Session) sinceEntry() (*entry, error) {
	var since int64
	if last := s.LastSync(); last > 0 {
		since = last - s.cfg.SinceSkew.Milliseconds()
	}
	path, err := s.buildPath(fmt.Sprintf("since/%d", since), "")
	if err != nil {
		return nil, err
	}
	e := &entry{
		id:      "since",
		method:  http.MethodGet,
		path:    path,
		timeout: s.cfg.SyncTimeout,
	}
	s.signEntry(e)
	return e, nil
}

// publish fires one notification per change, in merge order, and counts
// them for the sync log.
func (s *Session) publish(changes []cache.Change) store.SyncRecord {
	var rec store.SyncRecord
	for _, c := range changes {
		switch c.Kind {
		case cache.ChangeNew:
			rec.Changed++
			s.notify.newFeature(c.Feature)
		case cache.ChangeProperties:
			rec.Changed++
			s.notify.propertyChanged(c.Feature)
		case cache.ChangeGeometry:
			rec.Changed++
			s.notify.geometryChanged(c.Feature)
		case cache.ChangeDeleted:
			rec.Deleted++
			s.notify.deletedFeature(c.ID, c.Class)
		}
	}
	return rec
}
