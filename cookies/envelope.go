package cookies

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
)

// Payload is a value carried inside a signed cookie. A zero time from either
// method means the bound is not set.
type Payload interface {
	IssuedTime() time.Time
	ExpiryTime() time.Time
}

// ErrExpiredPayload is returned when encoding a payload that is already expired
var ErrExpiredPayload = errors.New("cookie payload already expired")

// ErrCookieTooLarge is returned when an encoded cookie would exceed the size
// browsers are guaranteed to store. Larger cookies are dropped silently.
var ErrCookieTooLarge = errors.New("cookie exceeds browser size limit")

// MaxCookieSize bounds the name=value pair of a single cookie (RFC 6265 §6.1)
const MaxCookieSize = 4096

// Options controls the cookie attributes written by an envelope
type Options struct {
	Secure   bool
	SameSite http.SameSite
	Path     string
}

// Keys are the signing key and the optional encryption key
type Keys struct {
	Hash  []byte
	Block []byte
}

// Envelope signs a JSON payload into a cookie value bound to the cookie name.
// A non-zero ttl bounds the payload age independently of the cookie's own
// lifetime in the browser.
type Envelope[T Payload] struct {
	name  string
	codec *securecookie.SecureCookie
	ttl   time.Duration
	opts  Options
	now   func() time.Time
}

// NewEnvelope creates an envelope for the cookie called name
func NewEnvelope[T Payload](name string, keys Keys, ttl time.Duration, opts Options) *Envelope[T] {
	codec := securecookie.New(keys.Hash, keys.Block)
	codec.SetSerializer(securecookie.JSONEncoder{})
	// size is enforced on the full cookie in Encode and Decode
	codec.MaxLength(0)
	codec.MaxAge(int(ttl / time.Second))

	if opts.Path == "" {
		opts.Path = "/"
	}
	if opts.SameSite == 0 {
		opts.SameSite = http.SameSiteLaxMode
	}

	return &Envelope[T]{
		name:  name,
		codec: codec,
		ttl:   ttl,
		opts:  opts,
		now:   time.Now,
	}
}

// Name returns the cookie name
func (e *Envelope[T]) Name() string {
	return e.name
}

// Encode signs v into a cookie value
func (e *Envelope[T]) Encode(v T) (string, error) {
	if exp := v.ExpiryTime(); !exp.IsZero() && !exp.After(e.now()) {
		return "", ErrExpiredPayload
	}
	value, err := e.codec.Encode(e.name, v)
	if err != nil {
		return "", fmt.Errorf("encode %s cookie: %w", e.name, err)
	}
	if size := len(e.name) + 1 + len(value); size > MaxCookieSize {
		return "", fmt.Errorf("encode %s cookie: %d bytes: %w", e.name, size, ErrCookieTooLarge)
	}
	return value, nil
}

// Decode verifies value and returns its payload. Any signature mismatch,
// malformed payload or expiry yields ok=false.
func (e *Envelope[T]) Decode(value string) (T, bool) {
	var out T
	if value == "" || len(e.name)+1+len(value) > MaxCookieSize {
		return out, false
	}
	if err := e.codec.Decode(e.name, value, &out); err != nil {
		return out, false
	}

	now := e.now()
	if exp := out.ExpiryTime(); !exp.IsZero() && !exp.After(now) {
		var zero T
		return zero, false
	}
	if e.ttl > 0 {
		issued := out.IssuedTime()
		if issued.IsZero() || now.Sub(issued) > e.ttl || issued.After(now.Add(time.Minute)) {
			var zero T
			return zero, false
		}
	}
	return out, true
}

// Write sets the cookie carrying v on w
func (e *Envelope[T]) Write(w http.ResponseWriter, v T) error {
	value, err := e.Encode(v)
	if err != nil {
		return err
	}

	cookie := e.cookie(value)
	if exp := v.ExpiryTime(); !exp.IsZero() {
		cookie.Expires = exp.UTC()
		cookie.MaxAge = int(exp.Sub(e.now()) / time.Second)
		if cookie.MaxAge < 1 {
			cookie.MaxAge = 1
		}
	} else if e.ttl > 0 {
		cookie.MaxAge = int(e.ttl / time.Second)
	}
	http.SetCookie(w, cookie)
	return nil
}

// Read returns the payload of the cookie on r, if present and valid
func (e *Envelope[T]) Read(r *http.Request) (T, bool) {
	c, err := r.Cookie(e.name)
	if err != nil {
		var zero T
		return zero, false
	}
	return e.Decode(c.Value)
}

// Clear expires the cookie on w
func (e *Envelope[T]) Clear(w http.ResponseWriter) {
	cookie := e.cookie("")
	cookie.MaxAge = -1
	cookie.Expires = time.Unix(0, 0)
	http.SetCookie(w, cookie)
}

func (e *Envelope[T]) cookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     e.name,
		Value:    value,
		Path:     e.opts.Path,
		HttpOnly: true,
		Secure:   e.opts.Secure,
		SameSite: e.opts.SameSite,
	}
}
