package analysis

import "image"

const (
	ResultAccident   = "Accident"
	ResultNoAccident = "No Accident"

	SeverityHigh   = "High"
	SeverityMedium = "Medium"
	SeverityLow    = "Low"
)

// Frame 帧源输出的一帧，Index 从 0 开始
type Frame struct {
	Index int
	Image image.Image
}

// Result 视频最终判定，生成后不再修改
type Result struct {
	Result             string  `json:"result"`
	Severity           string  `json:"severity"`
	SeverityPercentage int     `json:"severityInPercentage"`
	Evidence           *Frame  `json:"-"` // 仅事故时非空
	FramesAnalyzed     int     `json:"frames_analyzed"`
	CollisionFrames    int     `json:"collision_frames"`
	MaxConfidence      float64 `json:"max_confidence"`
}

// IsAccident 是否判定为事故
func (r *Result) IsAccident() bool {
	return r.Result == ResultAccident
}

// Accumulator 跨帧累积状态，仅由单次分析独占使用
type Accumulator struct {
	frames          int
	collisionFrames int
	maxConfidence   float64
	best            *Frame
}

// Observe 按帧序号递增顺序折叠单帧判定
func (a *Accumulator) Observe(f *Frame, v FrameVerdict) {
	a.frames++
	a.maxConfidence = max(a.maxConfidence, v.MaxConfidence)
	if !v.Collision {
		return
	}
	a.collisionFrames++
	// 首个碰撞帧作为证据，之后不再替换
	if a.best == nil {
		a.best = f
	}
}

// CollisionFrames 当前碰撞帧计数
func (a *Accumulator) CollisionFrames() int { return a.collisionFrames }

// MaxConfidence 当前最高车辆置信度
func (a *Accumulator) MaxConfidence() float64 { return a.maxConfidence }

// Best 当前证据帧
func (a *Accumulator) Best() *Frame { return a.best }

// Result 应用判定策略，帧序列结束后调用一次
func (a *Accumulator) Result(cfg Config) *Result {
	out := Result{
		Result:             ResultNoAccident,
		Severity:           SeverityLow,
		SeverityPercentage: int(a.maxConfidence * 100),
		FramesAnalyzed:     a.frames,
		CollisionFrames:    a.collisionFrames,
		MaxConfidence:      a.maxConfidence,
	}
	if a.collisionFrames < cfg.MinCollisionFrames {
		return &out
	}

	out.Result = ResultAccident
	out.Severity = SeverityMedium
	if a.collisionFrames >= cfg.HighSeverityFrames {
		out.Severity = SeverityHigh
	}
	out.Evidence = a.best
	return &out
}
