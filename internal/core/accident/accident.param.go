package accident

import (
	"github.com/ixugo/goddd/pkg/web"
)

type FindAccidentInput struct {
	web.PagerFilter
	web.DateFilter
	City   string `form:"city"`
	Result string `form:"result"` // Accident / No Accident
}

// AddAccidentInput 手动录入事故记录
type AddAccidentInput struct {
	VideoName          string   `json:"video_name" binding:"required"`
	Result             string   `json:"result"`
	Severity           string   `json:"severity" binding:"required"`
	SeverityPercentage *int     `json:"severityInPercentage" binding:"required"`
	Address            string   `json:"address" binding:"required"`
	City               string   `json:"city" binding:"required"`
	Latitude           *float64 `json:"latitude" binding:"required"`
	Longitude          *float64 `json:"longitude" binding:"required"`
	ImageURL           *string  `json:"image_url" binding:"required"`
}
