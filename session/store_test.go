package session

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuth struct {
	token     string
	loginErr  error
	signupErr error
	signups   int
}

func (f *fakeAuth) Login(ctx context.Context, email, password string) (string, error) {
	return f.token, f.loginErr
}

func (f *fakeAuth) Signup(ctx context.Context, username, email, password string) error {
	f.signups++
	return f.signupErr
}

type memTokens map[string]string

func (m memTokens) SaveToken(viewerID, token string) error { m[viewerID] = token; return nil }
func (m memTokens) LoadToken(viewerID string) (string, error) {
	return m[viewerID], nil
}
func (m memTokens) ClearToken(viewerID string) error { delete(m, viewerID); return nil }

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return token
}

func TestLoginNotifiesSubscribers(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"username": "ann"})
	store := NewStore("v1", &fakeAuth{token: token}, nil, quietLogger())

	var seen []State
	unsubscribe := store.Subscribe(func(s State) { seen = append(seen, s) })

	_, ok := store.Token()
	assert.False(t, ok)

	require.NoError(t, store.Login(context.Background(), "ann@example.com", "pw"))
	got, ok := store.Token()
	assert.True(t, ok)
	assert.Equal(t, token, got)
	assert.Equal(t, "ann", store.State().Username)

	store.Logout()
	_, ok = store.Token()
	assert.False(t, ok)

	require.Len(t, seen, 2)
	assert.True(t, seen[0].Authenticated)
	assert.False(t, seen[1].Authenticated)

	unsubscribe()
	require.NoError(t, store.Login(context.Background(), "ann@example.com", "pw"))
	assert.Len(t, seen, 2)
}

func TestLoginFailureLogsOut(t *testing.T) {
	auth := &fakeAuth{token: "opaque"}
	store := NewStore("v1", auth, nil, quietLogger())
	require.NoError(t, store.Login(context.Background(), "a", "b"))

	auth.loginErr = errors.New("invalid credentials")
	err := store.Login(context.Background(), "a", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid credentials")

	_, ok := store.Token()
	assert.False(t, ok)
}

func TestSignupThenLogin(t *testing.T) {
	auth := &fakeAuth{token: "opaque"}
	store := NewStore("v1", auth, nil, quietLogger())

	require.NoError(t, store.Signup(context.Background(), "ann", "a@b.c", "pw"))
	assert.Equal(t, 1, auth.signups)
	assert.True(t, store.State().Authenticated)
	// opaque tokens carry no username
	assert.Equal(t, "", store.State().Username)

	auth.signupErr = errors.New("email taken")
	require.Error(t, store.Signup(context.Background(), "ann", "a@b.c", "pw"))
	assert.False(t, store.State().Authenticated)
}

func TestPersistedToken(t *testing.T) {
	tokens := memTokens{}
	token := signedToken(t, jwt.MapClaims{"sub": "bob"})

	first := NewStore("v1", &fakeAuth{token: token}, tokens, quietLogger())
	require.NoError(t, first.Login(context.Background(), "b", "pw"))
	assert.Equal(t, token, tokens["v1"])

	restored := NewStore("v1", &fakeAuth{}, tokens, quietLogger())
	got, ok := restored.Token()
	assert.True(t, ok)
	assert.Equal(t, token, got)
	assert.Equal(t, "bob", restored.State().Username)

	restored.Logout()
	_, exists := tokens["v1"]
	assert.False(t, exists)
}

func TestUsernameFromToken(t *testing.T) {
	assert.Equal(t, "ann", usernameFromToken("Bearer "+signedToken(t, jwt.MapClaims{"username": "ann", "sub": "1"})))
	assert.Equal(t, "42", usernameFromToken(signedToken(t, jwt.MapClaims{"user_id": float64(42)})))
	assert.Equal(t, "", usernameFromToken("not-a-jwt"))
}
