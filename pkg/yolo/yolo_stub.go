//go:build !gocv

package yolo

import (
	"context"
	"image"
)

// Detector 未启用 gocv 时的占位实现
type Detector struct{}

// New 未启用 gocv 时始终返回 ErrUnsupported
func New(cfg Config) (*Detector, error) {
	return nil, ErrUnsupported
}

func (d *Detector) Detect(context.Context, image.Image) ([]Object, error) {
	return nil, ErrUnsupported
}

func (d *Detector) Close() error { return nil }
