package analysis

import (
	"context"
	"image"
)

// Detection 单个检测目标
type Detection struct {
	Label      string  `json:"label"`      // 物体类别
	Confidence float64 `json:"confidence"` // 置信度 (0.0 - 1.0)
	Box        Box     `json:"box"`        // 像素坐标边界框
}

// Detector 目标检测能力，对同一帧可重复调用，不依赖跨帧状态
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]Detection, error)
}

// DetectorFunc 函数适配为 Detector
type DetectorFunc func(ctx context.Context, img image.Image) ([]Detection, error)

// Detect implements Detector.
func (f DetectorFunc) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	return f(ctx, img)
}
