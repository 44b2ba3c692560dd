package clients

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIdentity struct {
	signUps    atomic.Int32
	refreshes  atomic.Int32
	signUpCode int
	signUpBody string
	refreshErr bool
}

func (f *fakeIdentity) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/toolkit/accounts:signUp", func(w http.ResponseWriter, r *http.Request) {
		f.signUps.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))

		var req signUpRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.ReturnSecureToken)

		w.Header().Set("Content-Type", "application/json")
		if f.signUpCode != 0 {
			w.WriteHeader(f.signUpCode)
			_, _ = w.Write([]byte(f.signUpBody))
			return
		}
		_ = json.NewEncoder(w).Encode(signUpResponse{
			IDToken:      "id-token-1",
			RefreshToken: "refresh-1",
			ExpiresIn:    "3600",
			LocalID:      "anon-uid",
		})
	})
	mux.HandleFunc("/securetoken/token", func(w http.ResponseWriter, r *http.Request) {
		f.refreshes.Add(1)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))

		w.Header().Set("Content-Type", "application/json")
		if f.refreshErr {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":400,"message":"INVALID_REFRESH_TOKEN"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "id-token-2",
			"id_token":      "id-token-2",
			"refresh_token": "refresh-2",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"user_id":       "anon-uid",
		})
	})
	return mux
}

func newTestIdentity(t *testing.T, f *fakeIdentity) *IdentityClient {
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return NewIdentityClient("test-key",
		WithIdentityEndpoints(srv.URL+"/toolkit", srv.URL+"/securetoken"),
		WithIdentityHTTPClient(srv.Client()))
}

func TestSignInAnonymously(t *testing.T) {
	f := &fakeIdentity{}
	c := newTestIdentity(t, f)

	session, err := c.SignInAnonymously(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "anon-uid", session.UID())
	assert.Equal(t, "refresh-1", session.RefreshToken())

	tok, err := session.Token()
	require.NoError(t, err)
	assert.Equal(t, "id-token-1", tok.AccessToken)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.Expiry, time.Minute)
	assert.Equal(t, int32(0), f.refreshes.Load())
}

func TestSignInAnonymouslyAPIError(t *testing.T) {
	f := &fakeIdentity{
		signUpCode: http.StatusBadRequest,
		signUpBody: `{"error":{"code":400,"message":"ADMIN_ONLY_OPERATION"}}`,
	}
	c := newTestIdentity(t, f)

	_, err := c.SignInAnonymously(context.Background())

	var ie *IdentityError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, http.StatusBadRequest, ie.StatusCode)
	assert.Equal(t, "ADMIN_ONLY_OPERATION", ie.Code)
	assert.False(t, ie.Retryable())
}

func TestSignInAnonymouslyServerErrorIsRetryable(t *testing.T) {
	f := &fakeIdentity{signUpCode: http.StatusServiceUnavailable, signUpBody: "unavailable"}
	c := newTestIdentity(t, f)

	_, err := c.SignInAnonymously(context.Background())

	var ie *IdentityError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, http.StatusText(http.StatusServiceUnavailable), ie.Code)
	assert.True(t, ie.Retryable())
}

func TestSignInAnonymouslyTransportErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := NewIdentityClient("test-key", WithIdentityEndpoints(srv.URL, srv.URL))

	_, err := c.SignInAnonymously(context.Background())

	var ie *IdentityError
	require.True(t, errors.As(err, &ie))
	assert.Error(t, ie.Unwrap())
	assert.True(t, ie.Retryable())
}

func TestResume(t *testing.T) {
	f := &fakeIdentity{}
	c := newTestIdentity(t, f)

	session, err := c.Resume(context.Background(), "anon-uid", "refresh-1")
	require.NoError(t, err)

	assert.Equal(t, "anon-uid", session.UID())
	assert.Equal(t, "refresh-2", session.RefreshToken())
	assert.Equal(t, int32(1), f.refreshes.Load())
	assert.Equal(t, int32(0), f.signUps.Load())

	tok, err := session.Token()
	require.NoError(t, err)
	assert.Equal(t, "id-token-2", tok.AccessToken)
}

func TestResumeRejectedRefreshToken(t *testing.T) {
	f := &fakeIdentity{refreshErr: true}
	c := newTestIdentity(t, f)

	_, err := c.Resume(context.Background(), "anon-uid", "stale")

	var ie *IdentityError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "INVALID_REFRESH_TOKEN", ie.Code)
	assert.False(t, ie.Retryable())
}

func TestSessionHTTPClientSendsBearer(t *testing.T) {
	f := &fakeIdentity{}
	c := newTestIdentity(t, f)
	session, err := c.SignInAnonymously(context.Background())
	require.NoError(t, err)

	var got string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
	}))
	defer api.Close()

	resp, err := session.HTTPClient(context.Background()).Get(api.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "Bearer id-token-1", got)
}
