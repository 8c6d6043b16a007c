package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gowvp/roadeye/internal/app"
	"github.com/gowvp/roadeye/internal/conf"
	"github.com/ixugo/goddd/pkg/system"
)

// 编译时注入 -ldflags "-X main.buildVersion=v1.0.0"
var buildVersion = "dev"

var (
	configPath = flag.String("conf", "configs/config.toml", "配置文件路径")
	debug      = flag.Bool("debug", false, "调试模式")
)

func main() {
	flag.Parse()

	path := *configPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(system.Getwd(), path)
	}
	bc, err := conf.SetupConfig(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "setup config:", err)
		os.Exit(1)
	}
	bc.BuildVersion = buildVersion
	bc.Debug = *debug || bc.Server.Debug

	_, clean, err := app.SetupLog(&bc)
	if err != nil {
		fmt.Fprintln(os.Stderr, "setup log:", err)
		os.Exit(1)
	}
	defer clean()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx, &bc); err != nil {
		slog.Error("app exit", "err", err)
		cancel()
		clean()
		os.Exit(1)
	}
}
