// nsidd 以 HTTP 服务的形式提供按 namespace 划分的唯一 ID。
//
// 配置按以下顺序叠加：默认值、nsidd.yaml、nsidd.<NSID_ENV>.yaml、.env、NSID_ 前缀的环境变量。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ceyewan/nsid/clog"
	"github.com/ceyewan/nsid/config"
	"github.com/ceyewan/nsid/internal/bootstrap"
	"github.com/ceyewan/nsid/xerrors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "nsidd: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadApp(ctx, config.WithConfigPaths(".", "./config", "/etc/nsid"))
	if err != nil {
		return xerrors.Wrap(err, "load config")
	}

	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		return err
	}
	logger := app.Logger

	if err := app.WatchBlockSize(ctx); err != nil {
		logger.Warn("block_size hot reload disabled", clog.Error(err))
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           app.Server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", clog.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !xerrors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-serveErr:
		logger.Error("http server failed", clog.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return xerrors.Combine(err, srv.Shutdown(shutdownCtx), app.Close(shutdownCtx))
}
