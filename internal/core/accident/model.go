package accident

import "github.com/ixugo/goddd/pkg/orm"

// Accident 单次视频分析的结果记录，非事故的分析同样落库
type Accident struct {
	ID                 int64    `gorm:"primaryKey" json:"id"`
	VideoName          string   `gorm:"column:video_name;notNull;default:''" json:"video_name"`
	Result             string   `gorm:"column:result;notNull;default:''" json:"result"`     // Accident / No Accident
	Severity           string   `gorm:"column:severity;notNull;default:''" json:"severity"` // High / Medium / Low
	SeverityPercentage int      `gorm:"column:severity_percentage;notNull;default:0" json:"severityInPercentage"`
	FramesAnalyzed     int      `gorm:"column:frames_analyzed;notNull;default:0" json:"frames_analyzed"`
	CollisionFrames    int      `gorm:"column:collision_frames;notNull;default:0" json:"collision_frames"`
	Address            string   `gorm:"column:address;notNull;default:''" json:"address"`
	City               string   `gorm:"column:city;index;notNull;default:''" json:"city"`
	Latitude           float64  `gorm:"column:latitude;notNull;default:0" json:"latitude"`
	Longitude          float64  `gorm:"column:longitude;notNull;default:0" json:"longitude"`
	ImageURL           string   `gorm:"column:image_url;notNull;default:''" json:"image_url"`
	ImagePath          string   `gorm:"column:image_path;notNull;default:''" json:"-"` // 相对证据目录的路径
	Date               orm.Time `gorm:"column:date;index;notNull" json:"date"`
}

// TableName database table name
func (*Accident) TableName() string {
	return "accidents"
}

// MonthlyCount 按月统计的记录数
type MonthlyCount struct {
	Month string `json:"month"` // YYYY-MM
	Count int    `json:"count"`
}
