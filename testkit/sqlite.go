package testkit

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ceyewan/nsid/connector"
)

// NewSQLiteConfig 返回位于 t.TempDir() 下的 SQLite 配置，每个测试独立一个文件
func NewSQLiteConfig(t *testing.T) *connector.SQLiteConfig {
	t.Helper()
	return &connector.SQLiteConfig{
		Name: "test-sqlite",
		Path: filepath.Join(t.TempDir(), "nsid.db"),
	}
}

// NewSQLiteConnector 返回已连接的 SQLite 连接器，不依赖容器
func NewSQLiteConnector(t *testing.T) connector.SQLiteConnector {
	t.Helper()
	return OpenSQLite(t, NewSQLiteConfig(t))
}

// OpenSQLite 按给定配置打开 SQLite，用于模拟进程重启后重新打开同一个库文件
func OpenSQLite(t *testing.T, cfg *connector.SQLiteConfig) connector.SQLiteConnector {
	t.Helper()
	conn, err := connector.NewSQLite(cfg, connector.WithLogger(NewLogger()))
	require.NoError(t, err, "failed to create sqlite connector")
	require.NoError(t, conn.Connect(context.Background()), "failed to connect to sqlite")
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}
