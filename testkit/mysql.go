package testkit

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/ceyewan/nsid/connector"
)

// NewMySQLContainerConfig 启动 MySQL 容器并返回连接配置
func NewMySQLContainerConfig(t *testing.T) *connector.MySQLConfig {
	t.Helper()
	SkipIfShort(t)
	ctx := context.Background()

	container, err := mysql.Run(ctx,
		"mysql:8.0",
		mysql.WithDatabase("nsid"),
		mysql.WithUsername("nsid"),
		mysql.WithPassword("nsid_password"),
	)
	require.NoError(t, err, "failed to start mysql container")
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mappedPort, err := container.MappedPort(ctx, "3306")
	require.NoError(t, err)
	port, err := strconv.Atoi(mappedPort.Port())
	require.NoError(t, err)

	cfg := &connector.MySQLConfig{
		Name:     "test-mysql",
		Host:     host,
		Port:     port,
		Username: "nsid",
		Password: "nsid_password",
		Database: "nsid",
	}
	// MySQL 容器就绪后仍可能短暂拒绝连接，交给连接器的重试处理
	cfg.MaxRetries = 15
	cfg.RetryInterval = 2 * time.Second
	cfg.MaxOpenConns = 10
	return cfg
}

// NewMySQLConnector 返回已连接的 MySQL 连接器
func NewMySQLConnector(t *testing.T) connector.MySQLConnector {
	t.Helper()
	conn, err := connector.NewMySQL(NewMySQLContainerConfig(t), connector.WithLogger(NewLogger()))
	require.NoError(t, err, "failed to create mysql connector")
	require.NoError(t, conn.Connect(context.Background()), "failed to connect to mysql")
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}
