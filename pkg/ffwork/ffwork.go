package ffwork

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/ixugo/goddd/pkg/queue"
)

type (
	Config struct {
		Path          string // 视频文件路径
		Width, Height int    // 输出分辨率，为 0 时使用 ffprobe 探测到的原始分辨率
		MaxFrames     int    // 最多读取的帧数，0 不限制
		HWAccel       string
		Name          string
	}
	// FrameCapture 通过 ffmpeg 将视频解码为 RGB24 原始帧，按需逐帧读取
	FrameCapture struct {
		Name      string
		config    Config
		frameSize int
		ctx       context.Context
		cancel    context.CancelFunc
		m         sync.Mutex
		cmd       *exec.Cmd
		reader    *bufio.Reader
		closer    io.Closer
		lastFrame time.Time
		wg        sync.WaitGroup
		ffmpegLog *queue.CirQueue[string]
		frames    int
		done      bool
		waitErr   error
	}
	Stats struct {
		Name       string
		FrameCount int
		LastFrame  time.Time
		FrameSize  int
		IsRunning  bool
	}
)

// Open 探测分辨率并启动 ffmpeg 解码进程
func Open(ctx context.Context, cfg Config) (*FrameCapture, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("video path is required")
	}
	if _, err := os.Stat(cfg.Path); err != nil {
		return nil, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		w, h, err := Probe(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		cfg.Width, cfg.Height = w, h
	}
	fc, err := newFrameCapture(cfg)
	if err != nil {
		return nil, err
	}
	if err := fc.start(); err != nil {
		fc.cancel()
		return nil, err
	}
	return fc, nil
}

func newFrameCapture(cfg Config) (*FrameCapture, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid resolution: %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.MaxFrames < 0 {
		return nil, fmt.Errorf("invalid max frames: %d", cfg.MaxFrames)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &FrameCapture{
		Name:      cfg.Name,
		config:    cfg,
		frameSize: cfg.Width * cfg.Height * 3,
		ctx:       ctx,
		cancel:    cancel,
		ffmpegLog: queue.NewCirQueue[string](100),
	}, nil
}

func (fc *FrameCapture) FrameSize() int {
	return fc.frameSize
}

func (fc *FrameCapture) buildFFmpegArgs() []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-threads", "2",
		"-nostdin",
	}
	if fc.config.HWAccel != "" {
		args = append(args, "-hwaccel", fc.config.HWAccel)
	}
	args = append(args, "-i", fc.config.Path)

	args = append(args,
		"-an",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-vf", fmt.Sprintf("scale=%d:%d", fc.config.Width, fc.config.Height),
	)
	if fc.config.MaxFrames > 0 {
		args = append(args, "-frames:v", strconv.Itoa(fc.config.MaxFrames))
	}
	return append(args, "pipe:1")
}

func (fc *FrameCapture) start() error {
	fc.m.Lock()
	defer fc.m.Unlock()

	fc.cmd = exec.CommandContext(fc.ctx, "ffmpeg", fc.buildFFmpegArgs()...)
	stdout, err := fc.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderr, err := fc.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to get stderr pipe: %w", err)
	}
	if err := fc.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	fc.attach(stdout)
	fc.wg.Go(func() { fc.readStderr(stderr) })
	return nil
}

// attach 绑定原始帧数据来源
func (fc *FrameCapture) attach(r io.Reader) {
	fc.reader = bufio.NewReaderSize(r, fc.frameSize*2)
	if c, ok := r.(io.Closer); ok {
		fc.closer = c
	}
	fc.lastFrame = time.Now()
}

// Next 读取下一帧，每次返回新分配的图像，调用方可长期持有
// 流结束或达到 MaxFrames 时返回 io.EOF，之后一直返回 io.EOF
// ctx 取消会打断阻塞中的读取并返回 ctx.Err()，此后不可再读
func (fc *FrameCapture) Next(ctx context.Context) (image.Image, error) {
	fc.m.Lock()
	defer fc.m.Unlock()

	if fc.done {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fc.config.MaxFrames > 0 && fc.frames >= fc.config.MaxFrames {
		fc.done = true
		return nil, io.EOF
	}

	// 阻塞读取期间取消时关闭管道打断读取
	var stop func() bool
	if fc.closer != nil {
		closer := fc.closer
		stop = context.AfterFunc(ctx, func() { _ = closer.Close() })
	}
	buf := make([]byte, fc.frameSize)
	_, err := io.ReadFull(fc.reader, buf)
	if stop != nil && !stop() {
		fc.done = true
		return nil, ctx.Err()
	}
	if err != nil {
		fc.done = true
		// 末尾不完整的帧直接丢弃
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			if werr := fc.wait(); werr != nil && fc.frames == 0 {
				return nil, fmt.Errorf("ffmpeg exited: %w: %s", werr, fc.lastLog())
			}
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read frame: %w", err)
	}

	fc.frames++
	fc.lastFrame = time.Now()
	return decodeRGB24(buf, fc.config.Width, fc.config.Height), nil
}

// decodeRGB24 将 RGB24 紧凑排列的数据转为 RGBA 图像
func decodeRGB24(buf []byte, w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i, j := 0, 0; i+2 < len(buf) && j+3 < len(img.Pix); i, j = i+3, j+4 {
		img.Pix[j] = buf[i]
		img.Pix[j+1] = buf[i+1]
		img.Pix[j+2] = buf[i+2]
		img.Pix[j+3] = 0xff
	}
	return img
}

// wait 等待 ffmpeg 退出，需持有锁
func (fc *FrameCapture) wait() error {
	if fc.cmd == nil || fc.cmd.Process == nil {
		return nil
	}
	fc.wg.Wait()
	if fc.cmd.ProcessState == nil {
		fc.waitErr = fc.cmd.Wait()
	}
	return fc.waitErr
}

// readStderr 读取 ffmpeg 的 stderr 输出用于日志记录
// ffmpeg 的警告和错误信息都会输出到 stderr
func (fc *FrameCapture) readStderr(stderr io.Reader) {
	scan := bufio.NewScanner(stderr)
	for scan.Scan() {
		fc.ffmpegLog.Push(scan.Text())
	}
}

func (fc *FrameCapture) Log() []string {
	return fc.ffmpegLog.Range()
}

func (fc *FrameCapture) lastLog() string {
	lines := fc.ffmpegLog.Range()
	if len(lines) == 0 {
		return "no output"
	}
	return lines[len(lines)-1]
}

// Close 终止解码进程并释放资源，可重复调用
func (fc *FrameCapture) Close() error {
	fc.m.Lock()
	defer fc.m.Unlock()
	fc.done = true

	if cancel := fc.cancel; cancel != nil {
		cancel()
	}
	if fc.closer != nil {
		_ = fc.closer.Close()
	}
	if fc.cmd == nil || fc.cmd.Process == nil || fc.cmd.ProcessState != nil {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- fc.cmd.Wait()
	}()

	select {
	case <-time.After(5 * time.Second):
		if err := fc.cmd.Process.Kill(); err != nil {
			return fmt.Errorf("failed to kill ffmpeg: %w", err)
		}
		<-done
	case <-done:
	}
	fc.wg.Wait()
	return nil
}

func (fc *FrameCapture) GetStats() Stats {
	fc.m.Lock()
	defer fc.m.Unlock()
	return Stats{
		Name:       fc.config.Name,
		FrameCount: fc.frames,
		LastFrame:  fc.lastFrame,
		FrameSize:  fc.frameSize,
		IsRunning:  !fc.done,
	}
}
