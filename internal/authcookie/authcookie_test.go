package authcookie

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSign_KnownVector(t *testing.T) {
	// RFC 4231 test case 2.
	got := Sign("what do ya want for nothing?", "Jefe")
	assert.Equal(t, "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843", got)
}

func TestSign_Deterministic(t *testing.T) {
	a := Sign("alice", "secret")
	assert.Equal(t, a, Sign("alice", "secret"))
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, Sign("alice", "other-secret"))
	assert.NotEqual(t, a, Sign("bob", "secret"))
}

func TestBuild_SignsUsernameOnly(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	p := Build("alice", "secret", now)

	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, int64(1700000000123), p.Timestamp)
	assert.Equal(t, Sign("alice", "secret"), p.Signature)

	later := Build("alice", "secret", now.Add(time.Hour))
	assert.Equal(t, p.Signature, later.Signature)
}

func TestEncodeDecode(t *testing.T) {
	p := Build("alice smith", "secret", time.UnixMilli(42))

	value, err := Encode(p)
	require.NoError(t, err)
	assert.Equal(t,
		"%7B%22username%22%3A%22alice%20smith%22%2C%22timestamp%22%3A42%2C%22signature%22%3A%22"+p.Signature+"%22%7D",
		value)

	decoded, err := Decode(value)
	require.NoError(t, err)
	assert.Equal(t, p, decoded)
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode("%zz")
	assert.Error(t, err)

	_, err = Decode("not-json")
	assert.Error(t, err)
}

func TestVerify(t *testing.T) {
	p := Build("alice", "secret", time.Now())
	assert.True(t, Verify(p, "secret"))
	assert.False(t, Verify(p, "wrong"))

	tampered := p
	tampered.Username = "mallory"
	assert.False(t, Verify(tampered, "secret"))

	assert.False(t, Verify(Payload{}, "secret"))
}

func TestNewCookie_Attributes(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewCookie("value", now)

	assert.Equal(t, Name, c.Name)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, now.Add(7*24*time.Hour), c.Expires)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.False(t, c.HttpOnly)
	assert.False(t, c.Secure)
}

func TestFromRequest_RoundTrip(t *testing.T) {
	p := Build("alice", "secret", time.UnixMilli(1))
	value, err := Encode(p)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	http.SetCookie(rec, NewCookie(value, time.Now()))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}

	got, err := FromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	_, err = FromRequest(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.ErrorIs(t, err, http.ErrNoCookie)
}
