package session

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// baseURL returns scheme://host[:port].
func (s *Session) baseURL() string {
	return s.cfg.Scheme + "://" + s.cfg.Domain
}

// signEntry signs e for one lease from now. Unsigned sessions leave params
// empty.
func (s *Session) signEntry(e *entry) {
	if s.signer == nil {
		return
	}
	e.params = s.signer.Params(e.method, e.path, e.body)
}

// resignIfNeeded refreshes a signature that would expire within the
// configured window.
func (s *Session) resignIfNeeded(e *entry) {
	if s.signer == nil {
		return
	}
	if e.params.Signature == "" || s.signer.NeedsResign(e.params, s.cfg.ResignWindow) {
		s.signEntry(e)
		s.log.Debug("re-signed queued request", "entry", e.id, "path", e.path)
	}
}

// httpRequest builds the wire request. Signed params go in the query string
// for GET/DELETE and the form body for POST; unsigned POSTs send only json.
func (s *Session) httpRequest(ctx context.Context, e *entry) (*http.Request, error) {
	u := s.baseURL() + e.path

	var form url.Values
	if s.signer != nil {
		form = e.params.Values()
	} else if e.method == http.MethodPost {
		form = url.Values{"json": {e.body}}
	}

	var body io.Reader
	if e.method == http.MethodPost {
		body = strings.NewReader(form.Encode())
	} else if len(form) > 0 {
		u += "?" + form.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, e.method, u, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// exchange performs one HTTP round trip under the entry's timeout. A
// non-nil error means no response was received.
func (s *Session) exchange(ctx context.Context, e *entry) (int, []byte, error) {
	timeout := e.timeout
	if timeout <= 0 {
		timeout = s.cfg.RequestTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := s.httpRequest(ctx, e)
	if err != nil {
		return 0, nil, err
	}

	s.log.Debug("sending request", "method", e.method, "path", e.path, "entry", e.id)
	resp, err := s.client.Do(req)
	if err != nil {
		requests.WithLabelValues(e.method, "transport_error").Inc()
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		requests.WithLabelValues(e.method, "transport_error").Inc()
		return 0, nil, fmt.Errorf("read body: %w", err)
	}

	outcome := "ok"
	if resp.StatusCode != http.StatusOK {
		outcome = fmt.Sprintf("http_%d", resp.StatusCode)
	}
	requests.WithLabelValues(e.method, outcome).Inc()
	return resp.StatusCode, data, nil
}
