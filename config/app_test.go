package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/nsid/api"
	"github.com/ceyewan/nsid/idgen"
	"github.com/ceyewan/nsid/ratelimit"
)

func TestLoadApp_Defaults(t *testing.T) {
	app, err := LoadApp(context.Background(), WithConfigPaths(t.TempDir()))
	require.NoError(t, err)

	assert.Equal(t, "info", app.Log.Level)
	assert.Equal(t, "console", app.Log.Format)
	assert.True(t, app.Metrics.Enabled)
	assert.Equal(t, "nsidd", app.Metrics.ServiceName)
	assert.Equal(t, 9090, app.Metrics.Port)
	assert.Equal(t, ":8080", app.HTTP.Addr)
	assert.Equal(t, api.DefaultMaxBatch, app.HTTP.MaxBatch)
	assert.Equal(t, 30*time.Minute, app.HTTP.HandleIdleTimeout)
	assert.Equal(t, 10*time.Second, app.HTTP.ShutdownTimeout)

	assert.False(t, app.RateLimit.Enabled)
	assert.Equal(t, ratelimit.ModeStandalone, app.RateLimit.Mode)
	assert.Equal(t, ratelimit.Limit{Rate: 1000, Burst: 2000}, app.RateLimit.Limit())
	assert.Equal(t, 5*time.Minute, app.RateLimit.IdleTimeout)

	assert.Equal(t, idgen.DefaultBlockSize, app.IDGen.BlockSize)
	assert.Equal(t, idgen.EncodingHex, app.IDGen.Encoding)
	assert.Equal(t, idgen.ReusePolicyContinue, app.IDGen.ReusePolicy)
	assert.Zero(t, app.IDGen.MaxNamespaces)

	assert.False(t, app.Trace.Enabled)
	assert.Equal(t, "nsidd", app.Trace.ServiceName)
	assert.Equal(t, "localhost:4317", app.Trace.Endpoint)
	assert.Equal(t, 1.0, app.Trace.Sampler)

	assert.Equal(t, idgen.DriverRedis, app.Store.Driver)
	assert.Equal(t, "nsid:counter", app.Store.KeyPrefix)
	assert.True(t, app.Store.Breaker.Enabled)
	assert.Equal(t, 10*time.Second, app.Store.Breaker.Timeout)
	assert.Equal(t, uint32(10), app.Store.Breaker.MinimumRequests)

	assert.Equal(t, "127.0.0.1:6379", app.Redis.Addr)
	assert.Equal(t, []string{"127.0.0.1:2379"}, app.Etcd.Endpoints)
	assert.Equal(t, 3306, app.MySQL.Port)
	assert.Equal(t, "postgres", app.Postgres.Username)
	assert.Equal(t, "nsid.db", app.SQLite.Path)
}

func TestLoadApp_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "nsidd.yaml", `
http:
  addr: ":18080"
idgen:
  block_size: 50
  encoding: decimal
  width: 12
  reuse_policy: reject
store:
  driver: sqlite
  breaker:
    enabled: false
    timeout: 3s
sqlite:
  path: /tmp/nsid-test.db
  max_retries: 1
`)
	t.Setenv("NSID_IDGEN_BLOCK_SIZE", "20")
	t.Setenv("NSID_ETCD_ENDPOINTS", "10.0.0.1:2379,10.0.0.2:2379")

	app, err := LoadApp(context.Background(), WithConfigPaths(dir))
	require.NoError(t, err)

	assert.Equal(t, ":18080", app.HTTP.Addr)
	assert.Equal(t, int64(20), app.IDGen.BlockSize)
	assert.Equal(t, idgen.EncodingDecimal, app.IDGen.Encoding)
	assert.Equal(t, 12, app.IDGen.Width)
	assert.Equal(t, idgen.ReusePolicyReject, app.IDGen.ReusePolicy)
	assert.Equal(t, idgen.DriverSQLite, app.Store.Driver)
	assert.False(t, app.Store.Breaker.Enabled)
	assert.Equal(t, 3*time.Second, app.Store.Breaker.Timeout)
	assert.Equal(t, "/tmp/nsid-test.db", app.SQLite.Path)
	assert.Equal(t, 1, app.SQLite.MaxRetries)
	assert.Equal(t, []string{"10.0.0.1:2379", "10.0.0.2:2379"}, app.Etcd.Endpoints)
}

func TestLoadApp_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"block size too large", "idgen:\n  block_size: 2000000\n"},
		{"unknown encoding", "idgen:\n  encoding: base32\n"},
		{"unknown policy", "idgen:\n  reuse_policy: overwrite\n"},
		{"unknown driver", "store:\n  driver: cassandra\n"},
		{"empty http addr", "http:\n  addr: \"\"\n"},
		{"negative max batch", "http:\n  max_batch: -5\n"},
		{"unknown ratelimit mode", "ratelimit:\n  enabled: true\n  mode: cluster\n"},
		{"negative max namespaces", "idgen:\n  max_namespaces: -1\n"},
		{"trace sampler out of range", "trace:\n  enabled: true\n  sampler: 2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, "nsidd.yaml", tt.content)

			_, err := LoadApp(context.Background(), WithConfigPaths(dir))
			require.ErrorIs(t, err, ErrValidationFailed)
			assert.True(t, IsInvalidInput(err))
		})
	}
}

func TestLoadApp_WatchBlockSize(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "nsidd.yaml", "idgen:\n  block_size: 100\n")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	app, err := LoadApp(ctx, WithConfigPaths(dir))
	require.NoError(t, err)

	ch, err := app.Watch(ctx, KeyBlockSize)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("idgen:\n  block_size: 250\n"), 0o644))

	select {
	case ev := <-ch:
		assert.EqualValues(t, 250, ev.Value)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for block_size change")
	}

	_, err = (&AppConfig{}).Watch(ctx, KeyBlockSize)
	assert.ErrorIs(t, err, ErrValidationFailed)
}
