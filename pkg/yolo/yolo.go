//go:build gocv

package yolo

import (
	"context"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// Detector 基于 OpenCV DNN 的 YOLOv8 ONNX 检测器
// gocv.Net 非并发安全，推理串行执行
type Detector struct {
	cfg Config
	m   sync.Mutex
	net gocv.Net
}

// New 加载模型
func New(cfg Config) (*Detector, error) {
	cfg.setDefaults()
	net := gocv.ReadNet(cfg.ModelPath, "")
	if net.Empty() {
		return nil, fmt.Errorf("yolo: load model %s failed", cfg.ModelPath)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, err
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, err
	}
	return &Detector{cfg: cfg, net: net}, nil
}

// Detect 单帧推理，返回经过 NMS 的目标
func (d *Detector) Detect(ctx context.Context, img image.Image) ([]Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("yolo: convert image: %w", err)
	}
	defer src.Close()

	width, height := src.Cols(), src.Rows()
	side := max(width, height)
	square := gocv.NewMatWithSize(side, side, gocv.MatTypeCV8UC3)
	defer square.Close()
	roi := square.Region(image.Rect(0, 0, width, height))
	src.CopyTo(&roi)
	roi.Close()

	size := d.cfg.InputSize
	blob := gocv.BlobFromImage(square, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	d.m.Lock()
	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	d.m.Unlock()
	defer out.Close()

	return d.decode(&out, letterbox(width, height, size), image.Rect(0, 0, width, height)), nil
}

// decode 解析 [1, 4+classes, anchors] 输出
func (d *Detector) decode(out *gocv.Mat, scale float32, bounds image.Rectangle) []Object {
	sizes := out.Size()
	if len(sizes) != 3 {
		return nil
	}
	rows, anchors := sizes[1], sizes[2]

	var (
		rects   []image.Rectangle
		scores  []float32
		classes []int
	)
	for a := range anchors {
		best, cls := float32(0), -1
		for c := 4; c < rows; c++ {
			if s := out.GetFloatAt3(0, c, a); s > best {
				best, cls = s, c-4
			}
		}
		if best < d.cfg.Threshold {
			continue
		}
		r := toRect(
			out.GetFloatAt3(0, 0, a),
			out.GetFloatAt3(0, 1, a),
			out.GetFloatAt3(0, 2, a),
			out.GetFloatAt3(0, 3, a),
			scale, bounds,
		)
		if r.Empty() {
			continue
		}
		rects = append(rects, r)
		scores = append(scores, best)
		classes = append(classes, cls)
	}
	if len(rects) == 0 {
		return nil
	}

	keep := gocv.NMSBoxes(rects, scores, d.cfg.Threshold, d.cfg.NMSThreshold)
	objs := make([]Object, 0, len(keep))
	for _, i := range keep {
		objs = append(objs, Object{Label: ClassName(classes[i]), Score: scores[i], Rect: rects[i]})
	}
	return objs
}

func (d *Detector) Close() error {
	d.m.Lock()
	defer d.m.Unlock()
	return d.net.Close()
}
