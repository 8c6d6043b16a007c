package rpc

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"

	"github.com/disintegration/imaging"
	"github.com/gowvp/roadeye/internal/core/analysis"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// DetectMethod 远端检测服务的完整方法名
// 请求为 JPEG 编码的单帧，响应为 {detections:[{label,confidence,box:{x1,y1,x2,y2}}]}
const DetectMethod = "/roadeye.analysis.v1.Detector/Detect"

var _ analysis.Detector = (*DetectorClient)(nil)

// DetectorClient 封装 gRPC 检测服务客户端，作为分析流程的检测器
type DetectorClient struct {
	conn      *grpc.ClientConn
	threshold float64
	quality   int
}

type Option func(*DetectorClient)

// WithThreshold 低于阈值的检测结果在客户端丢弃
func WithThreshold(v float32) Option {
	return func(d *DetectorClient) {
		d.threshold = float64(v)
	}
}

// WithJPEGQuality 上传帧的编码质量
func WithJPEGQuality(q int) Option {
	return func(d *DetectorClient) {
		d.quality = q
	}
}

// NewDetectorClient 创建检测客户端实例，并在后台做一次健康检查
func NewDetectorClient(addr string, opts ...Option) (*DetectorClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial detector %s: %w", addr, err)
	}
	d := NewDetectorClientConn(conn, opts...)

	go func() {
		if err := d.HealthCheck(context.Background()); err != nil {
			slog.Error("HealthCheck", "addr", addr, "err", err)
			return
		}
		slog.Info("HealthCheck OK", "addr", addr)
	}()
	return d, nil
}

// NewDetectorClientConn 使用已建立的连接
func NewDetectorClientConn(conn *grpc.ClientConn, opts ...Option) *DetectorClient {
	d := DetectorClient{conn: conn, quality: 85}
	for _, opt := range opts {
		opt(&d)
	}
	return &d
}

// HealthCheck 检测服务是否可用
func (d *DetectorClient) HealthCheck(ctx context.Context) error {
	resp, err := healthpb.NewHealthClient(d.conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("detector not serving: %s", resp.GetStatus())
	}
	return nil
}

// Detect implements [analysis.Detector].
func (d *DetectorClient) Detect(ctx context.Context, img image.Image) ([]analysis.Detection, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(d.quality)); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	var out structpb.Struct
	if err := d.conn.Invoke(ctx, DetectMethod, wrapperspb.Bytes(buf.Bytes()), &out); err != nil {
		return nil, err
	}
	return parseDetections(&out, d.threshold), nil
}

func (d *DetectorClient) Close() error {
	return d.conn.Close()
}

func parseDetections(out *structpb.Struct, threshold float64) []analysis.Detection {
	items := out.GetFields()["detections"].GetListValue().GetValues()
	dets := make([]analysis.Detection, 0, len(items))
	for _, item := range items {
		fields := item.GetStructValue().GetFields()
		conf := fields["confidence"].GetNumberValue()
		if math.IsNaN(conf) || conf < 0 || conf > 1 || conf < threshold {
			continue
		}
		box := fields["box"].GetStructValue().GetFields()
		dets = append(dets, analysis.Detection{
			Label:      fields["label"].GetStringValue(),
			Confidence: conf,
			Box: analysis.Box{
				X1: box["x1"].GetNumberValue(),
				Y1: box["y1"].GetNumberValue(),
				X2: box["x2"].GetNumberValue(),
				Y2: box["y2"].GetNumberValue(),
			},
		})
	}
	return dets
}
