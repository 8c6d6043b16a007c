package ffwork

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Probe 使用 ffprobe 获取首个视频流的分辨率
func Probe(ctx context.Context, path string) (width, height int, err error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "csv=s=x:p=0",
		path,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return 0, 0, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(stderr.String()))
	}
	return parseResolution(string(out))
}

// parseResolution 解析 "1280x720" 格式，部分容器会输出多行，取第一行
func parseResolution(s string) (int, int, error) {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	line = strings.TrimRight(strings.TrimSpace(line), "x")
	ws, hs, ok := strings.Cut(line, "x")
	if !ok {
		return 0, 0, fmt.Errorf("no video stream found")
	}
	w, err := strconv.Atoi(ws)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid width %q", ws)
	}
	h, err := strconv.Atoi(hs)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid height %q", hs)
	}
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("invalid resolution: %dx%d", w, h)
	}
	return w, h, nil
}

// Opener 以 base 为模板按路径打开视频，Path 字段会被覆盖
func Opener(base Config) func(ctx context.Context, path string) (*FrameCapture, error) {
	return func(ctx context.Context, path string) (*FrameCapture, error) {
		cfg := base
		cfg.Path = path
		if cfg.Name == "" {
			cfg.Name = path
		}
		return Open(ctx, cfg)
	}
}
