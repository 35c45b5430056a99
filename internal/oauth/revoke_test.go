package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPRevoker_Revoke(t *testing.T) {
	var gotForm map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"token":     r.PostForm.Get("token"),
			"client_id": r.PostForm.Get("client_id"),
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	revoker := NewHTTPRevoker(server.URL+"/oauth2/revoke", server.Client())
	err := revoker.Revoke(context.Background(), "tok1", "cid")

	require.NoError(t, err)
	assert.Equal(t, map[string]string{"token": "tok1", "client_id": "cid"}, gotForm)
}

func TestHTTPRevoker_Revoke_Failures(t *testing.T) {
	t.Run("non_2xx_status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"status":400,"message":"Invalid token"}`, http.StatusBadRequest)
		}))
		defer server.Close()

		err := NewHTTPRevoker(server.URL, server.Client()).Revoke(context.Background(), "tok1", "cid")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRevocationFailed)
		assert.Contains(t, err.Error(), "status 400")
		assert.Contains(t, err.Error(), `"message":"Invalid token"`)
	})

	t.Run("unreachable", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		err := NewHTTPRevoker(url, nil).Revoke(context.Background(), "tok1", "cid")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRevocationFailed)
	})

	t.Run("invalid_endpoint", func(t *testing.T) {
		err := NewHTTPRevoker("://bad", nil).Revoke(context.Background(), "tok1", "cid")
		assert.ErrorIs(t, err, ErrRevocationFailed)
	})
}
