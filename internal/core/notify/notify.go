// Package notify 事故告警的对外通知
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Alert 告警内容
type Alert struct {
	AccidentID         int64     `json:"accident_id"`
	VideoName          string    `json:"video_name"`
	Severity           string    `json:"severity"`
	SeverityPercentage int       `json:"severityInPercentage"`
	Location           string    `json:"location"`
	City               string    `json:"city"`
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	ImageURL           string    `json:"image_url"`
	Date               time.Time `json:"date"`
}

// MapsLink 坐标对应的 Google 地图链接
func (a Alert) MapsLink() string {
	return fmt.Sprintf("https://www.google.com/maps/search/?api=1&query=%v,%v", a.Latitude, a.Longitude)
}

// Notifier 告警通道
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// ErrNotConfigured 通知通道未配置
var ErrNotConfigured = errors.New("notifier not configured")

// Multi 依次调用所有通道，错误合并返回
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, a Alert) error {
	errs := make([]error, 0, len(m))
	for _, n := range m {
		if err := n.Notify(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
