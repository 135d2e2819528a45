package session

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/roach88/mapsync/internal/feature"
)

// runQueue drains the queue strictly FIFO until ctx is cancelled.
//
// The head entry is retried in place after every failure, forever, so
// delivery is in order and at least once. One stuck entry stalls the rest.
func (s *Session) runQueue(ctx context.Context) error {
	s.log.Debug("queue worker starting")
	for {
		e, ok := s.queue.Front()
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.queue.Wait():
				if s.queue.Closed() && s.queue.Len() == 0 {
					return nil
				}
			}
			continue
		}

		if err := s.deliver(ctx, e); err != nil {
			return err
		}

		n := s.queue.PopFront()
		queueLength.Set(float64(n))
		s.notify.queueLengthChanged(n)
	}
}

// deliver retries one entry until it gets a 200. It only returns an error
// when ctx ends, which includes a deny: closing the map cancels the run.
func (s *Session) deliver(ctx context.Context, e *entry) error {
	b := backoff.NewConstantBackOff(s.cfg.RetryBackoff)

	for attempt := 1; ; attempt++ {
		if err := s.waitWhilePaused(ctx); err != nil {
			return err
		}

		err := s.attempt(ctx, e)
		if err == nil {
			if s.journal != nil {
				if jerr := s.journal.DeleteEntry(context.WithoutCancel(ctx), e.id); jerr != nil {
					s.log.Error("journal delete failed", "entry", e.id, "error", jerr)
				}
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.log.Warn("queued request failed, will retry",
			"entry", e.id,
			"method", e.method,
			"path", e.path,
			"attempt", attempt,
			"error", err,
		)
		s.markDisconnected(err)

		wait := b.NextBackOff()
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// attempt sends e once. A nil error means the server answered 200; the
// response handler has run and the entry is done, even if the handler
// rejected the body.
func (s *Session) attempt(ctx context.Context, e *entry) error {
	s.exchangeMu.Lock()
	defer s.exchangeMu.Unlock()

	s.resignIfNeeded(e)

	status, data, err := s.exchange(ctx, e)
	if err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	if rerr := s.checkStatus(e, status); rerr != nil {
		return rerr
	}

	if _, herr := s.handleResponse(e, status, data); herr != nil {
		s.log.Error("queued request rejected", "entry", e.id, "path", e.path, "error", herr)
		s.notify.failedRequest(e.info(), herr)
	}
	return nil
}

func (s *Session) waitWhilePaused(ctx context.Context) error {
	for s.paused.Load() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pausePollInterval):
		}
	}
	return nil
}

// restoreJournal re-queues entries left undelivered by a previous run.
// Callbacks are not persisted, so restored entries have none.
func (s *Session) restoreJournal(ctx context.Context) error {
	if s.journal == nil {
		return nil
	}
	pending, err := s.journal.PendingEntries(ctx)
	if err != nil {
		return fmt.Errorf("read pending entries: %w", err)
	}
	for _, je := range pending {
		e := &entry{
			id:        je.ID,
			method:    je.Method,
			path:      je.Path,
			body:      je.Body,
			timeout:   je.Timeout,
			ret:       ReturnShape(je.Return),
			newMap:    je.NewMap,
			class:     feature.Class(je.Class),
			featureID: je.FeatureID,
		}
		if err := s.enqueue(ctx, e, false); err != nil {
			return err
		}
	}
	if len(pending) > 0 {
		s.log.Info("restored queued requests", "count", len(pending))
	}
	return nil
}
