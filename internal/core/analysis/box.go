package analysis

// Box 像素坐标轴对齐边界框 (x1,y1) 左上 (x2,y2) 右下
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Area 面积，退化框为 0
func (b Box) Area() float64 {
	return max(0, b.X2-b.X1) * max(0, b.Y2-b.Y1)
}

// IoU 计算两个框的交并比，结果在 [0,1]
// 两个框都退化（并集为 0）时返回 0
func IoU(a, b Box) float64 {
	xA := max(a.X1, b.X1)
	yA := max(a.Y1, b.Y1)
	xB := min(a.X2, b.X2)
	yB := min(a.Y2, b.Y2)

	inter := max(0, xB-xA) * max(0, yB-yA)
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
