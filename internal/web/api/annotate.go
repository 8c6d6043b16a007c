package api

import (
	"fmt"
	"image"

	"github.com/fogleman/gg"
	"github.com/gowvp/roadeye/internal/core/analysis"
)

// annotate 在帧上绘制检测框与 "类别 置信度" 标签
func annotate(img image.Image, dets []analysis.Detection) image.Image {
	dc := gg.NewContextForImage(img)
	dc.SetLineWidth(2)
	for _, d := range dets {
		b := d.Box
		dc.SetRGB255(255, 165, 0)
		dc.DrawRectangle(b.X1, b.Y1, b.X2-b.X1, b.Y2-b.Y1)
		dc.Stroke()

		text := fmt.Sprintf("%s %.2f", d.Label, d.Confidence)
		w, h := dc.MeasureString(text)
		x := max(0, b.X1)
		// 标签贴在框的上沿，靠近画面顶部时下移
		y := max(h+6, b.Y1)
		dc.DrawRectangle(x, y-h-6, w+6, h+6)
		dc.Fill()
		dc.SetRGB(1, 1, 1)
		dc.DrawString(text, x+3, y-3)
	}
	return dc.Image()
}
