package testkit

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/ceyewan/nsid/connector"
)

// NewPostgreSQLContainerConfig 启动 PostgreSQL 容器并返回连接配置
func NewPostgreSQLContainerConfig(t *testing.T) *connector.PostgreSQLConfig {
	t.Helper()
	SkipIfShort(t)
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:17-alpine",
		postgres.WithDatabase("nsid"),
		postgres.WithUsername("nsid"),
		postgres.WithPassword("nsid_password"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mappedPort, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	port, err := strconv.Atoi(mappedPort.Port())
	require.NoError(t, err)

	cfg := &connector.PostgreSQLConfig{
		Name:     "test-postgres",
		Host:     host,
		Port:     port,
		Username: "nsid",
		Password: "nsid_password",
		Database: "nsid",
		SSLMode:  "disable",
	}
	cfg.MaxOpenConns = 10
	return cfg
}

// NewPostgreSQLConnector 返回已连接的 PostgreSQL 连接器
func NewPostgreSQLConnector(t *testing.T) connector.PostgreSQLConnector {
	t.Helper()
	conn, err := connector.NewPostgreSQL(NewPostgreSQLContainerConfig(t), connector.WithLogger(NewLogger()))
	require.NoError(t, err, "failed to create postgres connector")
	require.NoError(t, conn.Connect(context.Background()), "failed to connect to postgres")
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}
