package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devcache/devcache/commons"
)

func testServiceConfig(t *testing.T) *commons.Config {
	t.Helper()

	config := commons.NewDefaultConfig()
	config.Cache.BaseDir = t.TempDir()
	config.Cache.PartitionedStorage.Partitions = 16
	config.Cache.BackgroundWorkers.FlushInterval = 10 * time.Millisecond
	return config
}

func TestServiceLifecycle(t *testing.T) {
	svc, err := NewCacheService(testServiceConfig(t))
	require.NoError(t, err)
	defer svc.Release()

	require.NoError(t, svc.Start())
	assert.Error(t, svc.Start(), "double start must be rejected")

	require.NoError(t, svc.GetManager().Set("entry", []byte("value"), 0, ""))

	// let the stats flush loop run at least once
	time.Sleep(30 * time.Millisecond)

	svc.Stop()

	// the service is restartable after a stop
	require.NoError(t, svc.Start())
	time.Sleep(30 * time.Millisecond)
	svc.Stop()
}
