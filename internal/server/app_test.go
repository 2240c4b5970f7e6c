package server

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/dmitrijs2005/tasksync/internal/server/config"
	"github.com/dmitrijs2005/tasksync/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	c := &config.Config{}
	c.LoadDefaults()
	c.EndpointAddrGRPC = ""
	c.LogLevel = "error"
	return c
}

func freeAddr(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())
	return addr
}

func TestOpenRepositoryManager_MemoryWithoutDSN(t *testing.T) {
	m, err := OpenRepositoryManager(context.Background(), testConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	_, ok := m.(*repomanager.InMemoryRepositoryManager)
	assert.True(t, ok)
}

func TestNewApp_BackupDisabledWithoutBucket(t *testing.T) {
	app, err := NewApp(context.Background(), testConfig())
	require.NoError(t, err)
	assert.Nil(t, app.backupService)
	assert.NotNil(t, app.syncService)
	assert.NotNil(t, app.authService)
}

func TestApp_RunServesHealthAndStops(t *testing.T) {
	c := testConfig()
	c.EndpointAddrHTTP = freeAddr(t)

	app, err := NewApp(context.Background(), c)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		app.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + c.EndpointAddrHTTP + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond)

	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop after cancel")
	}
}
