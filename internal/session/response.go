package session

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/roach88/mapsync/internal/feature"
)

// handleResponse decodes and validates a response, applies the local cache
// change the request implies, and runs the request's callbacks in order.
// Callers hold exchangeMu.
func (s *Session) handleResponse(e *entry, status int, data []byte) (Result, error) {
	if status != http.StatusOK {
		return Result{}, &RequestError{
			Code:    ErrCodeStatus,
			Message: "unexpected status",
			Method:  e.method,
			Path:    e.path,
			Status:  status,
		}
	}

	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		s.log.Error("undecodable response", "method", e.method, "path", e.path, "error", err)
		return Result{}, &RequestError{Code: ErrCodeDecode, Message: "undecodable response", Method: e.method, Path: e.path, Err: err}
	}

	if e.newMap {
		id, err := lookupPath(body, "result.id")
		if err != nil {
			return Result{}, &RequestError{Code: ErrCodeDecode, Message: "map creation returned no id", Method: e.method, Path: e.path, Err: err}
		}
		return Result{Value: fmt.Sprint(id)}, nil
	}

	if st, _ := body["status"].(string); st != "ok" {
		return Result{}, &RequestError{
			Code:    ErrCodeNotOK,
			Message: fmt.Sprintf("response status %q", body["status"]),
			Method:  e.method,
			Path:    e.path,
		}
	}

	value, err := extractReturn(body, e.ret)
	if err != nil {
		return Result{}, &RequestError{Code: ErrCodeDecode, Message: "missing return value", Method: e.method, Path: e.path, Err: err}
	}

	s.applyLocal(e, body)
	s.runCallbacks(e, body)
	return Result{Value: value}, nil
}

// checkStatus does the connection bookkeeping for a send that got an HTTP
// answer. A 200 counts as connected. A 401 or 403 is a permanent deny and
// closes the map. Anything else is a failure that marks the session
// disconnected. Callers hold exchangeMu.
func (s *Session) checkStatus(e *entry, status int) *RequestError {
	switch status {
	case http.StatusOK:
		s.markConnected()
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		s.log.Error("map access denied, closing", "method", e.method, "path", e.path, "status", status)
		s.closeMap("access denied")
		return &RequestError{Code: ErrCodeDenied, Message: "access to map denied", Method: e.method, Path: e.path, Status: status}
	}
	rerr := &RequestError{Code: ErrCodeStatus, Message: "unexpected status", Method: e.method, Path: e.path, Status: status}
	s.markDisconnected(rerr)
	return rerr
}

func extractReturn(body map[string]any, ret ReturnShape) (any, error) {
	var (
		v   any
		err error
	)
	switch ret {
	case ReturnID:
		v, err = lookupPath(body, "id")
	case ReturnResultID:
		v, err = lookupPath(body, "result.id")
	default:
		return body, nil
	}
	if err != nil {
		return nil, err
	}
	return fmt.Sprint(v), nil
}

// applyLocal mirrors an acknowledged create/edit/delete into the cache so
// callers see it before the next poll.
func (s *Session) applyLocal(e *entry, body map[string]any) {
	switch e.method {
	case http.MethodDelete:
		if e.class != "" && e.featureID != "" {
			s.cache.Remove(e.featureID, e.class)
		}
	case http.MethodPost:
		raw, ok := body["result"]
		if !ok || e.class == "" {
			return
		}
		data, err := json.Marshal(raw)
		if err != nil {
			return
		}
		var f feature.Feature
		if err := json.Unmarshal(data, &f); err != nil || f.ID == "" {
			return
		}
		if f.Class() == "" {
			if f.Properties == nil {
				f.Properties = map[string]any{}
			}
			f.Properties["class"] = string(e.class)
		}
		if f.Class() != e.class {
			return
		}
		if prev, ok := s.cache.Get(f.ID, e.class); ok {
			if !f.HasTitle() {
				f.Properties = prev.Properties
			}
			if f.Geometry == nil {
				f.Geometry = prev.Geometry
			}
		}
		s.cache.Put(&f)
	}
}

// runCallbacks resolves every callback's arguments, then invokes them in
// order. A failing callback is logged and does not stop the rest.
func (s *Session) runCallbacks(e *entry, body map[string]any) {
	if len(e.callbacks) == 0 {
		return
	}

	resolved := make([]*resolvedCallback, len(e.callbacks))
	for i, cb := range e.callbacks {
		r, err := cb.resolve(body)
		if err != nil {
			s.log.Error("callback arguments unresolved", "callback", cb.Name, "entry", e.id, "error", err)
			continue
		}
		resolved[i] = &r
	}

	for _, r := range resolved {
		if r == nil {
			continue
		}
		if err := r.call(); err != nil {
			s.log.Error("callback failed", "callback", r.cb.Name, "entry", e.id, "error", err)
		}
	}
}
