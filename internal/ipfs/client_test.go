package ipfs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPinSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v0/pin/add", r.URL.Path)
		require.Equal(t, "Qm1", r.URL.Query().Get("arg"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(nil)
	err := c.Pin(context.Background(), Node{APIURL: srv.URL}, "Qm1")
	require.NoError(t, err)
}

func TestPinNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(nil)
	err := c.Pin(context.Background(), Node{APIURL: srv.URL}, "Qm1")
	require.Error(t, err)
}

func TestUnpinSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v0/pin/rm", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(nil)
	err := c.Unpin(context.Background(), Node{APIURL: srv.URL}, "Qm1")
	require.NoError(t, err)
}

func TestDagStat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v0/dag/stat", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Size": 12345, "NumBlocks": 3}`))
	}))
	defer srv.Close()

	c := New(nil)
	stat, err := c.DagStat(context.Background(), Node{APIURL: srv.URL}, "Qm1")
	require.NoError(t, err)
	require.Equal(t, int64(12345), stat.Size)
	require.Equal(t, int64(3), stat.NumBlocks)
}

func TestBasicAuthSent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "alice", user)
		require.Equal(t, "secret", pass)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(nil)
	err := c.Pin(context.Background(), Node{APIURL: srv.URL, Login: "alice", Password: "secret"}, "Qm1")
	require.NoError(t, err)
}
