package accident

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gowvp/roadeye/internal/core/analysis"
	"github.com/gowvp/roadeye/internal/core/notify"
	"github.com/gowvp/roadeye/internal/metrics"
	"github.com/gowvp/roadeye/pkg/geocode"
	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/reason"
)

// Analyzer 视频分析能力
type Analyzer interface {
	AnalyzeFile(ctx context.Context, path string) (*analysis.Result, error)
}

// Geocoder 坐标反查地址
type Geocoder interface {
	Reverse(ctx context.Context, lat, lon float64) (geocode.Place, error)
}

// Location 固定摄像头坐标
type Location struct {
	Latitude  float64
	Longitude float64
}

type IngestInput struct {
	VideoName string // 上传后的文件名
	Path      string // 本地路径
}

type IngestOutput struct {
	Analysis *analysis.Result
	Accident *Accident // 持久化失败时为 nil
}

// Ingestor 上传视频的分析入库流程
type Ingestor struct {
	core     Core
	analyzer Analyzer
	geo      Geocoder
	notifier notify.Notifier
	camera   Location
	timeout  time.Duration
	wg       sync.WaitGroup
}

type IngestOption func(*Ingestor)

func WithGeocoder(geo Geocoder) IngestOption {
	return func(i *Ingestor) {
		i.geo = geo
	}
}

// WithNotifier 判定为事故时异步通知
func WithNotifier(n notify.Notifier) IngestOption {
	return func(i *Ingestor) {
		i.notifier = n
	}
}

func WithCamera(loc Location) IngestOption {
	return func(i *Ingestor) {
		i.camera = loc
	}
}

// WithAnalyzeTimeout 单个视频分析的最长耗时，0 不限制
func WithAnalyzeTimeout(d time.Duration) IngestOption {
	return func(i *Ingestor) {
		i.timeout = d
	}
}

func NewIngestor(core Core, analyzer Analyzer, opts ...IngestOption) *Ingestor {
	i := Ingestor{core: core, analyzer: analyzer}
	for _, opt := range opts {
		opt(&i)
	}
	return &i
}

// Ingest 分析视频、导出证据帧、反查地址并入库，事故时异步通知
// 视频不可读返回 ErrBadRequest，取消或超时返回 context 错误，均不入库
// 入库失败时仍返回判定结果
func (i *Ingestor) Ingest(ctx context.Context, in IngestInput) (*IngestOutput, error) {
	actx := ctx
	if i.timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := i.analyzer.AnalyzeFile(actx, in.Path)
	if err != nil {
		switch {
		case analysis.IsCancelled(err):
			metrics.ObserveAnalysis(metrics.OutcomeCancelled, time.Since(start))
			return nil, err
		case errors.Is(err, analysis.ErrSourceUnavailable):
			metrics.ObserveAnalysis(metrics.OutcomeUnavailable, time.Since(start))
			return nil, reason.ErrBadRequest.Withf("video[%s] unreadable: %s", in.VideoName, err.Error())
		}
		metrics.ObserveAnalysis(metrics.OutcomeError, time.Since(start))
		return nil, reason.ErrServer.Withf("analyze video[%s] err[%s]", in.VideoName, err.Error())
	}
	metrics.ObserveAnalysis(res.Result, time.Since(start))

	now := orm.Now()
	rec := Accident{
		VideoName:          in.VideoName,
		Result:             res.Result,
		Severity:           res.Severity,
		SeverityPercentage: res.SeverityPercentage,
		FramesAnalyzed:     res.FramesAnalyzed,
		CollisionFrames:    res.CollisionFrames,
		Latitude:           i.camera.Latitude,
		Longitude:          i.camera.Longitude,
		Date:               now,
	}

	if res.IsAccident() && res.Evidence != nil {
		rel, err := i.core.SaveEvidence(in.VideoName, res.Evidence.Image, now.Time)
		if err != nil {
			slog.ErrorContext(ctx, "save evidence", "video", in.VideoName, "err", err)
		} else {
			rec.ImagePath = rel
			rec.ImageURL = i.core.EvidenceURL(rel)
		}
	}

	place := i.lookup(ctx)
	rec.Address, rec.City = place.Address, place.City

	out := IngestOutput{Analysis: res}
	if err := i.core.save(ctx, &rec); err != nil {
		return &out, err
	}
	out.Accident = &rec

	if res.IsAccident() && i.notifier != nil {
		alert := NewAlert(&rec)
		i.wg.Go(func() {
			nctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := i.notifier.Notify(nctx, alert); err != nil {
				slog.Error("notify accident", "id", alert.AccidentID, "err", err)
			}
		})
	}
	return &out, nil
}

// Wait 等待已发出的通知结束
func (i *Ingestor) Wait() {
	i.wg.Wait()
}

func (i *Ingestor) lookup(ctx context.Context) geocode.Place {
	if i.geo == nil {
		return geocode.UnknownPlace()
	}
	place, err := i.geo.Reverse(ctx, i.camera.Latitude, i.camera.Longitude)
	if err != nil {
		slog.WarnContext(ctx, "reverse geocode", "lat", i.camera.Latitude, "lon", i.camera.Longitude, "err", err)
		return geocode.UnknownPlace()
	}
	return place
}

// NewAlert 由记录生成通知内容
func NewAlert(a *Accident) notify.Alert {
	return notify.Alert{
		AccidentID:         a.ID,
		VideoName:          a.VideoName,
		Severity:           a.Severity,
		SeverityPercentage: a.SeverityPercentage,
		Location:           a.Address,
		City:               a.City,
		Latitude:           a.Latitude,
		Longitude:          a.Longitude,
		ImageURL:           a.ImageURL,
		Date:               a.Date.Time,
	}
}
