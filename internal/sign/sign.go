// Package sign builds the HMAC signatures that authenticate requests to a
// hosted map server.
//
// The signed message is
//
//	VERB PATH\nEXPIRES\nBODY
//
// where PATH is the request path after the host, EXPIRES is a millisecond
// epoch and BODY is the JSON payload (empty for anything but POST). The
// signature is base64(HMAC-SHA256(key, message)) with the key itself stored
// base64-encoded in the account credentials.
package sign

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DefaultLease is how long a signature stays valid.
const DefaultLease = 120 * time.Second

// ErrNoCredentials is returned when a Signer is built without an id or key.
var ErrNoCredentials = errors.New("sign: credential id and key are required")

// Params are the wire parameters of a signed request.
type Params struct {
	ID        string
	Expires   int64 // ms since epoch
	Signature string
	JSON      string
}

// ExpiresAt converts Expires to a time.
func (p Params) ExpiresAt() time.Time {
	return time.UnixMilli(p.Expires)
}

// Values encodes the params for a query string or form body.
func (p Params) Values() url.Values {
	v := url.Values{}
	v.Set("id", p.ID)
	v.Set("expires", strconv.FormatInt(p.Expires, 10))
	v.Set("signature", p.Signature)
	v.Set("json", p.JSON)
	return v
}

// Message builds the string that gets signed.
func Message(verb, path string, expires int64, body string) string {
	return fmt.Sprintf("%s %s\n%d\n%s", verb, path, expires, body)
}

// Sign computes base64(HMAC-SHA256(key, Message(...))).
func Sign(key []byte, verb, path string, expires int64, body string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(Message(verb, path, expires, body)))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Signer signs requests for one credential.
type Signer struct {
	id    string
	key   []byte
	lease time.Duration
	now   func() time.Time
}

// Option configures a Signer.
type Option func(*Signer)

// WithLease overrides DefaultLease.
func WithLease(d time.Duration) Option {
	return func(s *Signer) {
		s.lease = d
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		s.now = now
	}
}

// New builds a Signer from a credential id and its base64-encoded key.
func New(id, key string, opts ...Option) (*Signer, error) {
	if id == "" || key == "" {
		return nil, ErrNoCredentials
	}
	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("sign: decode key: %w", err)
	}
	s := &Signer{
		id:    id,
		key:   raw,
		lease: DefaultLease,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ID returns the credential id.
func (s *Signer) ID() string {
	return s.id
}

// Params signs a request expiring one lease from now. The body only takes
// part in POST signatures; other verbs sign and send an empty body.
func (s *Signer) Params(verb, path, body string) Params {
	if verb != http.MethodPost {
		body = ""
	}
	expires := s.now().Add(s.lease).UnixMilli()
	return Params{
		ID:        s.id,
		Expires:   expires,
		Signature: Sign(s.key, verb, path, expires, body),
		JSON:      body,
	}
}

// NeedsResign reports whether p expires within window of now.
func (s *Signer) NeedsResign(p Params, window time.Duration) bool {
	return p.ExpiresAt().Sub(s.now()) < window
}
