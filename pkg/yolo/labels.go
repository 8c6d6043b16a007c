package yolo

import (
	"errors"
	"image"
	"strconv"
)

// ErrUnsupported 当前构建未启用 gocv
var ErrUnsupported = errors.New("yolo: built without gocv tag")

// Object 单个检测目标，坐标为原图像素
type Object struct {
	Label string
	Score float32
	Rect  image.Rectangle
}

type Config struct {
	ModelPath    string  // ONNX 模型路径
	InputSize    int     // 模型输入边长，默认 640
	Threshold    float32 // 置信度阈值
	NMSThreshold float32
}

func (c *Config) setDefaults() {
	if c.InputSize <= 0 {
		c.InputSize = 640
	}
	if c.Threshold <= 0 {
		c.Threshold = 0.25
	}
	if c.NMSThreshold <= 0 {
		c.NMSThreshold = 0.45
	}
}

// cocoLabels YOLOv8 COCO 80 类，沿用 motorbike/aeroplane 等旧命名
var cocoLabels = [...]string{
	"person", "bicycle", "car", "motorbike", "aeroplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack", "umbrella",
	"handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball", "kite", "baseball bat",
	"baseball glove", "skateboard", "surfboard", "tennis racket", "bottle", "wine glass", "cup",
	"fork", "knife", "spoon", "bowl", "banana", "apple", "sandwich", "orange", "broccoli",
	"carrot", "hot dog", "pizza", "donut", "cake", "chair", "sofa", "pottedplant", "bed",
	"diningtable", "toilet", "tvmonitor", "laptop", "mouse", "remote", "keyboard", "cell phone",
	"microwave", "oven", "toaster", "sink", "refrigerator", "book", "clock", "vase", "scissors",
	"teddy bear", "hair drier", "toothbrush",
}

// ClassName 类别序号转名称，越界时返回 class_<id>
func ClassName(id int) string {
	if id < 0 || id >= len(cocoLabels) {
		return "class_" + strconv.Itoa(id)
	}
	return cocoLabels[id]
}

// NumClasses 类别总数
func NumClasses() int { return len(cocoLabels) }

// letterbox 计算将原图放入正方形输入时的缩放比例
func letterbox(w, h, size int) float32 {
	return float32(max(w, h)) / float32(size)
}

// toRect 中心点格式转为原图坐标并裁剪到图像范围内
func toRect(cx, cy, w, h, scale float32, bounds image.Rectangle) image.Rectangle {
	r := image.Rect(
		int((cx-w/2)*scale),
		int((cy-h/2)*scale),
		int((cx+w/2)*scale),
		int((cy+h/2)*scale),
	)
	return r.Intersect(bounds)
}
