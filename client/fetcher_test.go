package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchMessagesEncodesQuery(t *testing.T) {
	var gotQuery, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"messages":[]}`))
	}))
	defer srv.Close()

	f := NewAPIFetcher(srv.URL, "tok")
	_, err := f.SearchMessages(context.Background(), "50% off & more #tags")
	require.NoError(t, err)

	assert.Equal(t, "50% off & more #tags", gotQuery, "reserved characters must survive the roundtrip")
	assert.Equal(t, "Bearer tok", gotAuth)
}

func TestFetchMessagesRoutesByKeyKind(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		_, _ = w.Write([]byte(`{"messages":[]}`))
	}))
	defer srv.Close()

	f := NewAPIFetcher(srv.URL, "tok")
	for _, key := range []Key{ChannelKey(3), ThreadKey(40), DMKey(2)} {
		_, err := f.FetchMessages(context.Background(), key)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{
		"/api/channels/3/messages",
		"/api/messages/40/thread",
		"/api/dm/2",
	}, paths)

	_, err := f.FetchMessages(context.Background(), Key{Kind: "room", ID: 1})
	require.Error(t, err)
}

func TestFetcherSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := NewAPIFetcher(srv.URL, "tok")
	_, err := f.FetchMessages(context.Background(), ChannelKey(3))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
