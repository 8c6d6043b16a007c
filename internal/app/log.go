package app

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gowvp/roadeye/internal/conf"
	"github.com/ixugo/goddd/pkg/system"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
)

// SetupLog 日志按天切割写入 Log.Dir，调试模式同时输出到控制台
func SetupLog(bc *conf.Bootstrap) (*slog.Logger, func(), error) {
	cfg := bc.Log
	level := parseLevel(cfg.Level)
	if bc.Debug {
		level = slog.LevelDebug
	}

	writers := make([]io.Writer, 0, 2)
	clean := func() {}
	if cfg.Dir != "" {
		if !filepath.IsAbs(cfg.Dir) {
			cfg.Dir = filepath.Join(system.Getwd(), cfg.Dir)
		}
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, nil, err
		}
		opts := []rotatelogs.Option{rotatelogs.WithLinkName(filepath.Join(cfg.Dir, "roadeye.log"))}
		if d := cfg.MaxAge.Duration(); d > 0 {
			opts = append(opts, rotatelogs.WithMaxAge(d))
		}
		if d := cfg.RotationTime.Duration(); d > 0 {
			opts = append(opts, rotatelogs.WithRotationTime(d))
		}
		r, err := rotatelogs.New(filepath.Join(cfg.Dir, "roadeye_%Y%m%d.log"), opts...)
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, r)
		clean = func() { _ = r.Close() }
	}
	if bc.Debug || len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	log := slog.New(slog.NewJSONHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		AddSource: bc.Debug,
		Level:     level,
	}))
	slog.SetDefault(log)
	return log, clean, nil
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(s)))); err != nil {
		return slog.LevelInfo
	}
	return l
}
