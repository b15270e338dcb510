// Package authcookie builds and checks the signed "auth" cookie issued at
// registration.
//
// The cookie value is URL-component-escaped JSON:
//
//	{"username":"alice","timestamp":1700000000000,"signature":"<hex>"}
//
// The signature is HMAC-SHA256 over the username only, keyed with the
// administrator password. The timestamp is informational and not covered by
// the signature.
package authcookie

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// Name is the cookie name.
	Name = "auth"
	// TTL is how long the browser keeps the cookie.
	TTL = 7 * 24 * time.Hour
)

// Payload is the decoded cookie content.
type Payload struct {
	Username  string `json:"username"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
}

// Sign returns the lower-case hex HMAC-SHA256 of message keyed by secret.
func Sign(message, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// Build assembles a payload for username issued at now.
func Build(username, secret string, now time.Time) Payload {
	return Payload{
		Username:  username,
		Timestamp: now.UnixMilli(),
		Signature: Sign(username, secret),
	}
}

// Verify reports whether p carries a valid signature for secret.
func Verify(p Payload, secret string) bool {
	if p.Username == "" || p.Signature == "" {
		return false
	}
	expected := Sign(p.Username, secret)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(p.Signature)))
}

// Encode serializes p into a cookie value.
func Encode(p Payload) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal auth payload: %w", err)
	}
	return escapeComponent(string(raw)), nil
}

// Decode parses a cookie value produced by Encode.
func Decode(value string) (Payload, error) {
	var p Payload
	raw, err := url.PathUnescape(value)
	if err != nil {
		return p, fmt.Errorf("unescape auth cookie: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return p, fmt.Errorf("decode auth cookie: %w", err)
	}
	return p, nil
}

// NewCookie wraps an encoded value with the cookie attributes browsers and
// installed web apps expect: readable from script, lax same-site, no Secure
// flag so plain-HTTP self-hosting keeps working.
func NewCookie(value string, now time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     Name,
		Value:    value,
		Path:     "/",
		Expires:  now.Add(TTL),
		SameSite: http.SameSiteLaxMode,
		HttpOnly: false,
		Secure:   false,
	}
}

// FromRequest reads and decodes the auth cookie from r.
func FromRequest(r *http.Request) (Payload, error) {
	c, err := r.Cookie(Name)
	if err != nil {
		return Payload{}, err
	}
	return Decode(c.Value)
}

const upperhex = "0123456789ABCDEF"

// escapeComponent percent-encodes s the way browsers' encodeURIComponent
// does, so cookies stay readable by client code using decodeURIComponent.
func escapeComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s) * 3)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}
