package session

import (
	"time"

	"github.com/roach88/mapsync/internal/feature"
	"github.com/roach88/mapsync/internal/sign"
)

// Mode selects blocking or queued delivery for one request.
type Mode int

const (
	// ModeDefault defers to policy: requests with callbacks are queued,
	// others follow Config.DefaultBlocking.
	ModeDefault Mode = iota
	// ModeBlocking sends immediately and waits for the response.
	ModeBlocking
	// ModeQueued hands the request to the queue worker and returns at once.
	ModeQueued
)

// ReturnShape selects what a successful response yields.
type ReturnShape int

const (
	// ReturnBody yields the whole decoded body.
	ReturnBody ReturnShape = iota
	// ReturnID yields the body's top-level "id".
	ReturnID
	// ReturnResultID yields "result.id".
	ReturnResultID
)

// Payload is the JSON body of a POST.
type Payload struct {
	ID         string            `json:"id,omitempty"`
	Properties map[string]any    `json:"properties,omitempty"`
	Geometry   *feature.Geometry `json:"geometry,omitempty"`
}

// Request describes one call to the map server.
type Request struct {
	Method    string
	Endpoint  string
	ID        string
	Body      *Payload
	Return    ReturnShape
	Mode      Mode
	Callbacks []Callback
	Timeout   time.Duration
}

// Result is the outcome of a successful Send. Queued requests return at
// once with Queued set and no Value.
type Result struct {
	Queued bool
	Value  any
}

// ID returns Value as a string id, or "".
func (r Result) ID() string {
	s, _ := r.Value.(string)
	return s
}

// Body returns Value as a decoded body, or nil.
func (r Result) Body() map[string]any {
	m, _ := r.Value.(map[string]any)
	return m
}

// SendOption adjusts a Request built by the feature helpers.
type SendOption func(*Request)

// Blocking forces a blocking send.
func Blocking() SendOption {
	return func(r *Request) { r.Mode = ModeBlocking }
}

// Queued forces a queued send.
func Queued() SendOption {
	return func(r *Request) { r.Mode = ModeQueued }
}

// WithCallbacks attaches callbacks, run in order after success.
func WithCallbacks(cbs ...Callback) SendOption {
	return func(r *Request) { r.Callbacks = append(r.Callbacks, cbs...) }
}

// WithTimeout overrides the request timeout.
func WithTimeout(d time.Duration) SendOption {
	return func(r *Request) { r.Timeout = d }
}

// WithProperties merges extra properties into the payload.
func WithProperties(props map[string]any) SendOption {
	return func(r *Request) {
		if r.Body == nil {
			r.Body = &Payload{}
		}
		if r.Body.Properties == nil {
			r.Body.Properties = map[string]any{}
		}
		for k, v := range props {
			r.Body.Properties[k] = v
		}
	}
}

// entry is a request ready for the wire: the path is final and the body is
// serialized but unsigned, so it can be re-signed right before sending.
type entry struct {
	id        string
	method    string
	path      string
	body      string
	params    sign.Params
	timeout   time.Duration
	ret       ReturnShape
	callbacks []Callback
	newMap    bool
	class     feature.Class
	featureID string
}

func (e *entry) info() RequestInfo {
	return RequestInfo{EntryID: e.id, Method: e.method, Path: e.path}
}
