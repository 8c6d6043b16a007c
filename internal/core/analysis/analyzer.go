package analysis

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrSourceUnavailable 视频无法打开或无任何可解码帧
var ErrSourceUnavailable = errors.New("frame source unavailable")

// FrameSource 惰性、有限、不可重启的帧序列
// Next 在流结束时返回 io.EOF
type FrameSource interface {
	Next(ctx context.Context) (image.Image, error)
	Close() error
}

// Opener 根据视频路径打开帧源
type Opener func(ctx context.Context, path string) (FrameSource, error)

// IsCancelled 分析是否因调用方取消或超时而中止
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Analyzer 视频事故分析入口，可被多个请求并发使用
// 每次分析的累积状态都是独立的
type Analyzer struct {
	cfg       Config
	det       Detector
	open      Opener
	heuristic Heuristic
	log       *slog.Logger
	onFailure func(index int, err error)
}

type Option func(*Analyzer)

// WithConfig 注入策略参数
func WithConfig(cfg Config) Option {
	return func(a *Analyzer) {
		a.cfg = cfg
	}
}

// WithOpener 注入帧源打开方式，AnalyzeFile 依赖此项
func WithOpener(open Opener) Option {
	return func(a *Analyzer) {
		a.open = open
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(a *Analyzer) {
		a.log = log
	}
}

// WithDetectFailureHook 单帧检测失败时回调，并发模式下会被多个协程调用
func WithDetectFailureHook(fn func(index int, err error)) Option {
	return func(a *Analyzer) {
		a.onFailure = fn
	}
}

// NewAnalyzer 创建分析器，det 必填
func NewAnalyzer(det Detector, opts ...Option) *Analyzer {
	a := Analyzer{
		cfg: DefaultConfig(),
		det: det,
		log: slog.With("module", "analysis"),
	}
	for _, opt := range opts {
		opt(&a)
	}
	a.heuristic = NewHeuristic(a.cfg.VehicleClasses, a.cfg.OverlapThreshold)
	return &a
}

// Config 当前生效的策略参数
func (a *Analyzer) Config() Config {
	return a.cfg
}

// AnalyzeFile 打开视频文件并分析
func (a *Analyzer) AnalyzeFile(ctx context.Context, path string) (*Result, error) {
	if a.open == nil {
		return nil, fmt.Errorf("%w: opener not configured", ErrSourceUnavailable)
	}
	src, err := a.open(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("analysis cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%w: open %s: %w", ErrSourceUnavailable, path, err)
	}
	return a.Analyze(ctx, src)
}

// Analyze 消费帧源直到结束或达到帧数上限，然后给出判定
// 取消或超时返回错误，不会给出判定；src 在任何路径上都会被关闭
func (a *Analyzer) Analyze(ctx context.Context, src FrameSource) (*Result, error) {
	defer func() {
		if err := src.Close(); err != nil {
			a.log.WarnContext(ctx, "close frame source", "err", err)
		}
	}()
	if a.det == nil {
		return nil, errors.New("analysis: detector is required")
	}

	start := time.Now()
	var (
		acc *Accumulator
		err error
	)
	if a.cfg.Workers > 1 {
		acc, err = a.analyzeParallel(ctx, src)
	} else {
		acc, err = a.analyzeSequential(ctx, src)
	}
	if err != nil {
		return nil, err
	}

	out := acc.Result(a.cfg)
	a.log.InfoContext(ctx, "video analyzed",
		"result", out.Result,
		"severity", out.Severity,
		"frames", out.FramesAnalyzed,
		"collision_frames", out.CollisionFrames,
		"max_confidence", out.MaxConfidence,
		"cost", time.Since(start).String(),
	)
	return out, nil
}

func (a *Analyzer) underCap(idx int) bool {
	return a.cfg.FrameCap <= 0 || idx < a.cfg.FrameCap
}

func (a *Analyzer) analyzeSequential(ctx context.Context, src FrameSource) (*Accumulator, error) {
	var acc Accumulator
	for idx := 0; a.underCap(idx); idx++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("analysis cancelled: %w", err)
		}
		img, err := src.Next(ctx)
		if err != nil {
			if err := a.endOfStream(ctx, idx, err); err != nil {
				return nil, err
			}
			break
		}
		f := Frame{Index: idx, Image: img}
		acc.Observe(&f, a.classify(ctx, &f))
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analysis cancelled: %w", err)
	}
	return &acc, nil
}

type frameResult struct {
	frame   *Frame
	verdict FrameVerdict
}

// analyzeParallel 单协程按序读帧，多协程检测，结果按帧序号重排后折叠
// 保证上限按读取帧数计算，证据帧为序号最小的碰撞帧
func (a *Analyzer) analyzeParallel(ctx context.Context, src FrameSource) (*Accumulator, error) {
	g, gctx := errgroup.WithContext(ctx)
	frames := make(chan *Frame, a.cfg.Workers)
	results := make(chan frameResult, a.cfg.Workers)

	var (
		consumed int
		srcErr   error
	)
	g.Go(func() error {
		defer close(frames)
		for idx := 0; a.underCap(idx); idx++ {
			img, err := src.Next(gctx)
			if err != nil {
				srcErr = err
				return nil
			}
			consumed++
			select {
			case frames <- &Frame{Index: idx, Image: img}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	var wg sync.WaitGroup
	for range a.cfg.Workers {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			for f := range frames {
				r := frameResult{frame: f, verdict: a.classify(gctx, f)}
				select {
				case results <- r:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var acc Accumulator
	pending := make(map[int]frameResult, a.cfg.Workers)
	next := 0
	for r := range results {
		pending[r.frame.Index] = r
		for {
			p, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			acc.Observe(p.frame, p.verdict)
			next++
		}
	}

	err := g.Wait()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("analysis cancelled: %w", ctx.Err())
	}
	if err != nil {
		return nil, err
	}
	if srcErr != nil {
		if err := a.endOfStream(ctx, consumed, srcErr); err != nil {
			return nil, err
		}
	}
	return &acc, nil
}

// endOfStream 判断帧源结束是正常结束还是不可用
// 已读到帧后的读取错误按流结束处理，使用已分析的帧给出判定
func (a *Analyzer) endOfStream(ctx context.Context, consumed int, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("analysis cancelled: %w", ctx.Err())
	}
	if consumed == 0 {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: no decodable frame", ErrSourceUnavailable)
		}
		return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	if !errors.Is(err, io.EOF) {
		a.log.WarnContext(ctx, "frame source ended early", "frames", consumed, "err", err)
	}
	return nil
}

// classify 检测单帧并判定，检测失败按无目标处理
func (a *Analyzer) classify(ctx context.Context, f *Frame) FrameVerdict {
	dctx := ctx
	if a.cfg.DetectTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, a.cfg.DetectTimeout)
		defer cancel()
	}

	dets, err := a.det.Detect(dctx, f.Image)
	if err != nil {
		if ctx.Err() == nil {
			a.log.WarnContext(ctx, "detect frame failed, skipped", "index", f.Index, "err", err)
			if a.onFailure != nil {
				a.onFailure(f.Index, err)
			}
		}
		return FrameVerdict{}
	}
	return a.heuristic.Classify(dets)
}
