package analysis

import "math"

// FrameVerdict 单帧判定结果
type FrameVerdict struct {
	Collision     bool        // 是否存在 IoU 超过阈值的车辆对
	MaxConfidence float64     // 本帧车辆检测的最高置信度，与是否碰撞无关
	Vehicles      []Detection // 过滤后的车辆检测
}

// Heuristic 以车辆框重叠作为碰撞的代理信号
type Heuristic struct {
	classes   map[string]struct{}
	threshold float64
}

// NewHeuristic 根据类别白名单与 IoU 阈值创建
func NewHeuristic(classes []string, threshold float64) Heuristic {
	set := make(map[string]struct{}, len(classes))
	for _, c := range classes {
		set[c] = struct{}{}
	}
	return Heuristic{classes: set, threshold: threshold}
}

// Classify 过滤车辆类别后两两计算 IoU，任意一对严格大于阈值即为碰撞帧
func (h Heuristic) Classify(dets []Detection) FrameVerdict {
	var v FrameVerdict
	for _, d := range dets {
		if _, ok := h.classes[d.Label]; !ok {
			continue
		}
		// 置信度非有限值的检测直接丢弃，其余收敛到 [0,1]
		if math.IsNaN(d.Confidence) || math.IsInf(d.Confidence, 0) {
			continue
		}
		d.Confidence = min(max(d.Confidence, 0), 1)
		v.Vehicles = append(v.Vehicles, d)
		v.MaxConfidence = max(v.MaxConfidence, d.Confidence)
	}

	for i := 0; i < len(v.Vehicles) && !v.Collision; i++ {
		for j := i + 1; j < len(v.Vehicles); j++ {
			if IoU(v.Vehicles[i].Box, v.Vehicles[j].Box) > h.threshold {
				v.Collision = true
				break
			}
		}
	}
	return v
}
