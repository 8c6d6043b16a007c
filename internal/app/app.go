package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gowvp/roadeye/internal/conf"
)

// Run 启动 HTTP 服务，ctx 结束后优雅退出
func Run(ctx context.Context, bc *conf.Bootstrap) error {
	handler, cleanUp, err := wireApp(bc)
	if err != nil {
		return err
	}
	defer cleanUp()

	timeout := bc.Server.HTTP.Timeout.Duration()
	svc := http.Server{
		Addr:              fmt.Sprintf(":%d", bc.Server.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       timeout,
		WriteTimeout:      timeout,
		IdleTimeout:       2 * time.Minute,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("http server start", "addr", svc.Addr, "version", bc.BuildVersion)
		if err := svc.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	slog.Info("http server shutdown")
	sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := svc.Shutdown(sctx); err != nil {
		slog.Error("http server shutdown", "err", err)
		return err
	}
	return nil
}
