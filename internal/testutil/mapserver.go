package testutil

import (
	"crypto/hmac"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/mapsync/internal/feature"
	"github.com/roach88/mapsync/internal/sign"
)

// IDGenerator assigns ids to features created on the fake server.
type IDGenerator interface {
	Generate() string
}

type uuidIDs struct{}

func (uuidIDs) Generate() string { return uuid.NewString() }

// Request is one request as the fake server saw it.
type Request struct {
	Method string
	Path   string
	Body   string // the json parameter
	Signed bool
}

type record struct {
	f        *feature.Feature
	modified int64
}

// MapServer is an in-memory map server speaking the since/create/edit/
// delete protocol over httptest. It verifies request signatures when
// credentials are configured and supports fault injection.
type MapServer struct {
	Server *httptest.Server
	MapID  string

	mu       sync.Mutex
	credID   string
	credKey  []byte
	now      func() time.Time
	ids      IDGenerator
	features []*record
	requests []Request
	last     int64

	failStatus int
	failCount  int
	deny       bool
}

// ServerOption configures a MapServer.
type ServerOption func(*MapServer)

// WithCredentials makes the server require valid signatures.
func WithCredentials(id, key string) ServerOption {
	return func(s *MapServer) {
		s.credID = id
		k, err := base64.StdEncoding.DecodeString(key)
		if err != nil {
			panic("testutil: bad base64 key: " + err.Error())
		}
		s.credKey = k
	}
}

// WithServerClock sets the clock used for timestamps and expiry checks.
func WithServerClock(now func() time.Time) ServerOption {
	return func(s *MapServer) { s.now = now }
}

// WithIDs sets the feature id generator. Defaults to random UUIDs.
func WithIDs(g IDGenerator) ServerOption {
	return func(s *MapServer) { s.ids = g }
}

// NewMapServer starts a server for mapID and closes it on test cleanup.
func NewMapServer(t testing.TB, mapID string, opts ...ServerOption) *MapServer {
	t.Helper()
	s := &MapServer{
		MapID: mapID,
		now:   time.Now,
		ids:   uuidIDs{},
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	prefix := "/api/v1/map/{map}/"
	mux.HandleFunc("GET "+prefix+"since/{ms}", s.handleSince)
	mux.HandleFunc("POST "+prefix+"{class}", s.handleCreate)
	mux.HandleFunc("POST "+prefix+"{class}/{id}", s.handleEdit)
	mux.HandleFunc("DELETE "+prefix+"{class}/{id}", s.handleDelete)
	mux.HandleFunc("POST /api/v1/acct/{acct}/CollaborativeMap", s.handleCreateMap)

	s.Server = httptest.NewServer(s.middleware(mux))
	t.Cleanup(s.Server.Close)
	return s
}

// Domain returns host:port for session.Config.Domain.
func (s *MapServer) Domain() string {
	u, _ := url.Parse(s.Server.URL)
	return u.Host
}

// FailNext makes the next n requests fail with status. A status of 0
// drops the connection instead, which clients see as a transport error.
func (s *MapServer) FailNext(n, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCount, s.failStatus = n, status
}

// Deny makes every further request fail with 403.
func (s *MapServer) Deny() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deny = true
}

// Put stores f as if another client had created or edited it.
func (s *MapServer) Put(f *feature.Feature) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsert(f.Clone())
}

// Remove deletes a feature as if another client had.
func (s *MapServer) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remove(id)
}

// Feature returns a copy of a stored feature.
func (s *MapServer) Feature(id string) (*feature.Feature, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.index(id); i >= 0 {
		return s.features[i].f.Clone(), true
	}
	return nil, false
}

// Features returns copies of every stored feature.
func (s *MapServer) Features() []*feature.Feature {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*feature.Feature, len(s.features))
	for i, r := range s.features {
		out[i] = r.f.Clone()
	}
	return out
}

// Requests returns every request received so far, failed ones included.
func (s *MapServer) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.requests)
}

// Count returns how many requests used method on a path ending in suffix.
func (s *MapServer) Count(method, suffix string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && strings.HasSuffix(r.Path, suffix) {
			n++
		}
	}
	return n
}

func (s *MapServer) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method: r.Method,
			Path:   r.URL.Path,
			Body:   r.Form.Get("json"),
			Signed: r.Form.Get("signature") != "",
		})
		deny := s.deny
		fail := s.failCount > 0
		status := s.failStatus
		if fail {
			s.failCount--
		}
		s.mu.Unlock()

		switch {
		case deny:
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		case fail && status == 0:
			dropConnection(w)
			return
		case fail:
			http.Error(w, http.StatusText(status), status)
			return
		}

		if !s.verify(r) {
			http.Error(w, "bad signature", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func dropConnection(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "cannot hijack", http.StatusInternalServerError)
		return
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		return
	}
	conn.Close()
}

// verify checks the signature when the server has credentials.
func (s *MapServer) verify(r *http.Request) bool {
	if s.credKey == nil {
		return true
	}
	if r.Form.Get("id") != s.credID {
		return false
	}
	expires, err := strconv.ParseInt(r.Form.Get("expires"), 10, 64)
	if err != nil || expires < s.now().UnixMilli() {
		return false
	}
	body := ""
	if r.Method == http.MethodPost {
		body = r.Form.Get("json")
	}
	want := sign.Sign(s.credKey, r.Method, r.URL.Path, expires, body)
	return hmac.Equal([]byte(want), []byte(r.Form.Get("signature")))
}

func (s *MapServer) checkMap(w http.ResponseWriter, r *http.Request) bool {
	if r.PathValue("map") != s.MapID {
		http.Error(w, "no such map", http.StatusNotFound)
		return false
	}
	return true
}

func (s *MapServer) handleSince(w http.ResponseWriter, r *http.Request) {
	if !s.checkMap(w, r) {
		return
	}
	since, err := strconv.ParseInt(r.PathValue("ms"), 10, 64)
	if err != nil {
		http.Error(w, "bad timestamp", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	ts := s.tick()
	ids := map[string][]string{}
	changed := []*feature.Feature{}
	for _, rec := range s.features {
		class := string(rec.f.Class())
		ids[class] = append(ids[class], rec.f.ID)
		if rec.modified > since {
			changed = append(changed, rec.f.Clone())
		}
	}
	s.mu.Unlock()

	writeOK(w, map[string]any{
		"timestamp": ts,
		"ids":       ids,
		"state": map[string]any{
			"type":     "FeatureCollection",
			"features": changed,
		},
	})
}

func (s *MapServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	if !s.checkMap(w, r) {
		return
	}
	in, ok := decodeFeature(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	in.ID = s.ids.Generate()
	in.Type = "Feature"
	if in.Properties == nil {
		in.Properties = map[string]any{}
	}
	in.Properties["class"] = r.PathValue("class")
	s.upsert(in)
	out := in.Clone()
	s.mu.Unlock()

	writeOK(w, out)
}

func (s *MapServer) handleEdit(w http.ResponseWriter, r *http.Request) {
	if !s.checkMap(w, r) {
		return
	}
	in, ok := decodeFeature(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(r.PathValue("id"))
	if i < 0 {
		http.Error(w, "no such feature", http.StatusNotFound)
		return
	}
	cur := s.features[i].f.Clone()
	if in.Properties != nil {
		cur.Properties = in.Properties
		cur.Properties["class"] = r.PathValue("class")
	}
	if in.Geometry != nil {
		cur.Geometry = in.Geometry
	}
	s.upsert(cur)
	writeOK(w, cur.Clone())
}

func (s *MapServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !s.checkMap(w, r) {
		return
	}
	s.mu.Lock()
	removed := s.remove(r.PathValue("id"))
	s.mu.Unlock()

	if !removed {
		http.Error(w, "no such feature", http.StatusNotFound)
		return
	}
	writeOK(w, map[string]any{"id": r.PathValue("id")})
}

func (s *MapServer) handleCreateMap(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	id := s.ids.Generate()
	s.mu.Unlock()
	writeOK(w, map[string]any{"id": id})
}

// tick returns a server timestamp strictly greater than the last one.
// Callers hold mu.
func (s *MapServer) tick() int64 {
	ts := s.now().UnixMilli()
	if ts <= s.last {
		ts = s.last + 1
	}
	s.last = ts
	return ts
}

// upsert and remove must be called with mu held.
func (s *MapServer) upsert(f *feature.Feature) {
	rec := &record{f: f, modified: s.tick()}
	if i := s.index(f.ID); i >= 0 {
		s.features[i] = rec
		return
	}
	s.features = append(s.features, rec)
}

func (s *MapServer) remove(id string) bool {
	i := s.index(id)
	if i < 0 {
		return false
	}
	s.features = slices.Delete(s.features, i, i+1)
	return true
}

func (s *MapServer) index(id string) int {
	return slices.IndexFunc(s.features, func(r *record) bool { return r.f.ID == id })
}

func decodeFeature(w http.ResponseWriter, r *http.Request) (*feature.Feature, bool) {
	var f feature.Feature
	if err := json.Unmarshal([]byte(r.Form.Get("json")), &f); err != nil {
		http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
		return nil, false
	}
	return &f, true
}

func writeOK(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "result": result})
}
