package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmitrijs2005/tasksync/internal/common"
	"github.com/dmitrijs2005/tasksync/internal/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_SyncSendsTokenAndDecodes(t *testing.T) {
	var gotAuth string
	var gotReq proto.SyncRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/sync", r.URL.Path)
		gotAuth = r.Header.Get(common.AuthorizationHeaderName)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(proto.SyncResponse{NewWatermark: 12, ServerTime: 5})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/", "tok-1")
	resp, err := c.Sync(context.Background(), &proto.SyncRequest{DeviceID: "dev", LastWatermark: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(12), resp.NewWatermark)
	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Equal(t, "dev", gotReq.DeviceID)

	c.SetToken("tok-2")
	_, err = c.Sync(context.Background(), &proto.SyncRequest{DeviceID: "dev"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-2", gotAuth)
}

func TestHTTPClient_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrUnauthorized},
		{http.StatusBadRequest, ErrRejected},
		{http.StatusRequestEntityTooLarge, ErrBatchTooLarge},
		{http.StatusTooManyRequests, ErrUnavailable},
		{http.StatusInternalServerError, ErrUnavailable},
		{http.StatusBadGateway, ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":"nope"}`))
			}))
			defer srv.Close()

			_, err := NewHTTPClient(srv.URL, "t").Sync(context.Background(), &proto.SyncRequest{DeviceID: "d"})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestHTTPClient_RejectedCarriesServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"batch too large: 2000 > 1000"}`))
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, "t").Sync(context.Background(), &proto.SyncRequest{DeviceID: "d"})
	require.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "batch too large")
}

func TestHTTPClient_UnreachableIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewHTTPClient(url, "t")
	_, err := c.Sync(context.Background(), &proto.SyncRequest{DeviceID: "d"})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, c.Ping(context.Background()), ErrUnavailable)
}

func TestHTTPClient_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewHTTPClient(srv.URL, "t").Sync(ctx, &proto.SyncRequest{DeviceID: "d"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestHTTPClient_GarbageBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, "t").Sync(context.Background(), &proto.SyncRequest{DeviceID: "d"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestHTTPClient_Ping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	assert.NoError(t, NewHTTPClient(srv.URL, "").Ping(context.Background()))
}

func TestNewHTTPClient_AddsScheme(t *testing.T) {
	assert.Equal(t, "http://localhost:8080", NewHTTPClient("localhost:8080/", "").baseURL)
	assert.Equal(t, "https://sync.example.com", NewHTTPClient("https://sync.example.com", "").baseURL)
}

func TestNew(t *testing.T) {
	_, err := New("http", "", "t")
	assert.ErrorIs(t, err, ErrNotConfigured)

	c, err := New("", "localhost:1", "t")
	require.NoError(t, err)
	assert.IsType(t, &HTTPClient{}, c)

	c, err = New("GRPC", "localhost:1", "t")
	require.NoError(t, err)
	assert.IsType(t, &GRPCClient{}, c)
	require.NoError(t, c.Close())

	_, err = New("carrier-pigeon", "localhost:1", "t")
	assert.Error(t, err)
}
