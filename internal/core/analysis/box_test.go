package analysis

import (
	"math"
	"testing"
)

func TestIoU(t *testing.T) {
	const eps = 1e-9
	tests := []struct {
		name string
		a, b Box
		want float64
	}{
		{name: "部分重叠低于阈值", a: Box{0, 0, 10, 10}, b: Box{5, 5, 15, 15}, want: 25.0 / 175.0},
		{name: "部分重叠高于阈值", a: Box{0, 0, 10, 10}, b: Box{3, 3, 13, 13}, want: 49.0 / 151.0},
		{name: "完全相同", a: Box{2, 2, 8, 8}, b: Box{2, 2, 8, 8}, want: 1},
		{name: "不相交", a: Box{0, 0, 10, 10}, b: Box{20, 20, 30, 30}, want: 0},
		{name: "仅边相接", a: Box{0, 0, 10, 10}, b: Box{10, 0, 20, 10}, want: 0},
		{name: "包含", a: Box{0, 0, 10, 10}, b: Box{0, 0, 5, 10}, want: 0.5},
		{name: "两个退化框", a: Box{5, 5, 5, 5}, b: Box{5, 5, 5, 5}, want: 0},
		{name: "一个退化框", a: Box{5, 5, 5, 5}, b: Box{0, 0, 10, 10}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IoU(tt.a, tt.b)
			if math.IsNaN(got) || math.Abs(got-tt.want) > eps {
				t.Fatalf("IoU(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestIoUSymmetricAndBounded(t *testing.T) {
	boxes := []Box{
		{0, 0, 10, 10}, {5, 5, 15, 15}, {3, 3, 13, 13}, {0, 0, 0, 0},
		{100, 100, 200, 150}, {120, 90, 210, 160}, {0, 0, 640, 480}, {7, 7, 7, 20},
	}
	for _, a := range boxes {
		for _, b := range boxes {
			ab, ba := IoU(a, b), IoU(b, a)
			if ab != ba {
				t.Fatalf("IoU not symmetric for %v %v: %v != %v", a, b, ab, ba)
			}
			if ab < 0 || ab > 1 || math.IsNaN(ab) {
				t.Fatalf("IoU(%v, %v) = %v out of [0,1]", a, b, ab)
			}
		}
	}
}

func TestBoxArea(t *testing.T) {
	if got := (Box{0, 0, 4, 5}).Area(); got != 20 {
		t.Fatalf("Area = %v", got)
	}
	// 坐标颠倒的框面积按 0 处理
	if got := (Box{10, 10, 0, 0}).Area(); got != 0 {
		t.Fatalf("Area = %v", got)
	}
}
