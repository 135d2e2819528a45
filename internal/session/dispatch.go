package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/roach88/mapsync/internal/store"
)

// Send dispatches a request, blocking or queued.
//
// Blocking sends return the response's value, or an error wrapping a
// *RequestError. Queued sends return Result{Queued: true} once the entry is
// in the queue; their outcome is reported through callbacks and the
// Notifier.
func (s *Session) Send(ctx context.Context, req Request) (Result, error) {
	if s.Closed() {
		return Result{}, newError(ErrCodeClosed, "map is closed", nil)
	}

	blocking, err := s.decideBlocking(req)
	if err != nil {
		return Result{}, err
	}

	e, err := s.buildEntry(req)
	if err != nil {
		return Result{}, err
	}

	if blocking {
		return s.sendBlocking(ctx, e)
	}
	if err := s.enqueue(ctx, e, true); err != nil {
		return Result{}, err
	}
	return Result{Queued: true}, nil
}

// decideBlocking applies the blocking policy. Callbacks always imply a
// queued send, so asking for both is a usage error.
func (s *Session) decideBlocking(req Request) (bool, error) {
	hasCallbacks := len(req.Callbacks) > 0
	switch req.Mode {
	case ModeBlocking:
		if hasCallbacks {
			return false, newError(ErrCodeUsage, "callbacks cannot be used with a blocking request", nil)
		}
		return true, nil
	case ModeQueued:
		return false, nil
	}
	if hasCallbacks {
		return false, nil
	}
	return s.cfg.DefaultBlocking, nil
}

// buildEntry validates the geometry, serializes the body, builds the path
// and signs. Nothing is sent.
func (s *Session) buildEntry(req Request) (*entry, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	path, err := s.buildPath(req.Endpoint, req.ID)
	if err != nil {
		return nil, err
	}

	var body string
	if req.Body != nil && method == http.MethodPost {
		payload := *req.Body
		if payload.Geometry != nil {
			payload.Geometry = payload.Geometry.Clone()
			if _, err := checkCoordinates(payload.Geometry, s.cfg.CoordCheck, s.log); err != nil {
				s.log.Error("send aborted by coordinate check", "path", path, "error", err)
				if re, ok := err.(*RequestError); ok {
					re.Method, re.Path = method, path
				}
				return nil, err
			}
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, newError(ErrCodeUsage, "encode body", err)
		}
		body = string(data)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = s.cfg.RequestTimeout
	}

	e := &entry{
		id:        s.ids.Generate(),
		method:    method,
		path:      path,
		body:      body,
		timeout:   timeout,
		ret:       req.Return,
		callbacks: req.Callbacks,
		newMap:    isMapCreation(req.Endpoint),
		class:     endpointClass(req.Endpoint),
		featureID: req.ID,
	}
	s.signEntry(e)
	return e, nil
}

func isMapCreation(endpoint string) bool {
	return accountScoped(endpoint) && strings.HasSuffix(strings.Trim(endpoint, "/"), "CollaborativeMap")
}

// sendBlocking performs the call now, holding exchangeMu so the sync loop
// and queue worker stay out of the cache until the response is handled.
func (s *Session) sendBlocking(ctx context.Context, e *entry) (Result, error) {
	s.exchangeMu.Lock()
	defer s.exchangeMu.Unlock()

	status, data, err := s.exchange(ctx, e)
	if err != nil {
		rerr := &RequestError{Code: ErrCodeTransport, Message: "request failed", Method: e.method, Path: e.path, Err: err}
		s.markDisconnected(err)
		s.notify.failedRequest(e.info(), rerr)
		return Result{}, rerr
	}
	if rerr := s.checkStatus(e, status); rerr != nil {
		s.log.Warn("request failed", "method", e.method, "path", e.path, "status", status)
		s.notify.failedRequest(e.info(), rerr)
		return Result{}, rerr
	}

	res, err := s.handleResponse(e, status, data)
	if err != nil {
		s.log.Warn("request failed", "method", e.method, "path", e.path, "error", err)
		s.notify.failedRequest(e.info(), err)
		return Result{}, err
	}
	return res, nil
}

// enqueue hands e to the worker. persist is false when replaying the
// journal, whose rows already exist.
func (s *Session) enqueue(ctx context.Context, e *entry, persist bool) error {
	if persist && s.journal != nil {
		if err := s.journal.AppendEntry(ctx, toJournal(e, s.clock)); err != nil {
			return fmt.Errorf("journal entry: %w", err)
		}
	}

	n := s.queue.Enqueue(e)
	if n < 0 {
		return newError(ErrCodeClosed, "map is closed", nil)
	}
	s.log.Debug("request queued", "entry", e.id, "method", e.method, "path", e.path, "queue", n)
	queueLength.Set(float64(n))
	s.notify.queueLengthChanged(n)
	return nil
}

func toJournal(e *entry, c Clock) store.Entry {
	return store.Entry{
		ID:        e.id,
		Method:    e.method,
		Path:      e.path,
		Body:      e.body,
		Timeout:   e.timeout,
		Return:    int(e.ret),
		NewMap:    e.newMap,
		Class:     string(e.class),
		FeatureID: e.featureID,
		CreatedAt: c.Now(),
	}
}
