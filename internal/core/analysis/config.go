package analysis

import "time"

// Config 分析策略参数
type Config struct {
	VehicleClasses     []string      // 参与碰撞判断的类别白名单
	OverlapThreshold   float64       // IoU 严格大于该值视为碰撞
	MinCollisionFrames int           // 碰撞帧数 >= 该值判定为事故
	HighSeverityFrames int           // 碰撞帧数 >= 该值判定为高严重度
	FrameCap           int           // 最多从帧源读取的帧数
	Workers            int           // 并发检测数，<=1 为顺序执行
	DetectTimeout      time.Duration // 单帧检测超时，0 不限制
}

// DefaultConfig 默认策略
func DefaultConfig() Config {
	return Config{
		VehicleClasses:     []string{"car", "truck", "bus", "motorbike"},
		OverlapThreshold:   0.15,
		MinCollisionFrames: 5,
		HighSeverityFrames: 10,
		FrameCap:           150,
		Workers:            1,
	}
}
