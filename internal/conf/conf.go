package conf

import (
	"time"

	"github.com/gowvp/roadeye/internal/core/analysis"
)

// Bootstrap 全局配置，对应 configs/config.toml
type Bootstrap struct {
	Server    Server
	Data      Data
	Analysis  Analysis
	Detector  Detector
	Camera    Camera
	Geocode   Geocode
	Mail      Mail
	Kafka     Kafka
	Log       Log
	Retention Retention

	BuildVersion string `toml:"-"` // 编译版本，由 main 注入
	ConfigPath   string `toml:"-"` // 配置文件路径，保存配置时使用
	Debug        bool   `toml:"-"`
}

type Server struct {
	Debug     bool
	HTTP      ServerHTTP
	UploadDir string `comment:"上传视频保存目录，相对于工作目录"`
	BaseURL   string `comment:"对外访问地址，用于生成证据帧图片 URL"`
}

type ServerHTTP struct {
	Port      int
	Timeout   Duration
	JwtSecret string
}

type Data struct {
	Database Database
	Mongo    Mongo
}

// Mongo 配置 URI 后事故与账号记录存入 MongoDB
type Mongo struct {
	URI      string `comment:"为空则使用 Database，例如 mongodb://127.0.0.1:27017"`
	Database string
	Timeout  Duration
}

type Database struct {
	Dsn             string `comment:"sqlite 文件名，或 postgres:// mysql:// 开头的 DSN"`
	MaxIdleConns    int32
	MaxOpenConns    int32
	ConnMaxLifetime Duration
	SlowThreshold   Duration
}

// Analysis 视频分析策略参数
type Analysis struct {
	VehicleClasses     []string `comment:"参与碰撞判断的车辆类别"`
	OverlapThreshold   float64  `comment:"两车框 IoU 超过该值视为疑似碰撞"`
	MinCollisionFrames int      `comment:"疑似碰撞帧数达到该值判定为事故"`
	HighSeverityFrames int      `comment:"疑似碰撞帧数达到该值判定为高严重度"`
	FrameCap           int      `comment:"每个视频最多分析的帧数"`
	Workers            int      `comment:"并发检测协程数，1 表示顺序分析"`
	DetectTimeout      Duration `comment:"单帧检测超时，0 表示不限制"`
	AnalyzeTimeout     Duration `comment:"单个视频分析总超时，0 表示不限制"`
}

// Detector 检测后端
type Detector struct {
	Backend   string  `comment:"grpc 或 yolo"`
	Addr      string  `comment:"grpc 检测服务地址"`
	ModelPath string  `comment:"yolo onnx 模型路径，需使用 -tags gocv 编译"`
	Threshold float32 `comment:"yolo 置信度阈值"`
}

// Camera 固定机位坐标
type Camera struct {
	Latitude  float64
	Longitude float64
}

type Geocode struct {
	URL       string
	UserAgent string
	Timeout   Duration
}

type Mail struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
	UseSSL   bool
}

type Kafka struct {
	BootstrapServers string `comment:"为空则不启用"`
	Topic            string
	SecurityProtocol string
	SASLMechanism    string
	SASLUsername     string
	SASLPassword     string
}

type Log struct {
	Dir          string
	Level        string
	MaxAge       Duration
	RotationTime Duration
}

// Retention 事故记录保留策略
type Retention struct {
	Days int `comment:"记录保留天数，0 表示永久保留"`
}

// AnalysisConfig 转换为分析核心的配置
func (a Analysis) AnalysisConfig() analysis.Config {
	cfg := analysis.DefaultConfig()
	if len(a.VehicleClasses) > 0 {
		cfg.VehicleClasses = a.VehicleClasses
	}
	if a.OverlapThreshold > 0 {
		cfg.OverlapThreshold = a.OverlapThreshold
	}
	if a.MinCollisionFrames > 0 {
		cfg.MinCollisionFrames = a.MinCollisionFrames
	}
	if a.HighSeverityFrames > 0 {
		cfg.HighSeverityFrames = a.HighSeverityFrames
	}
	if a.FrameCap > 0 {
		cfg.FrameCap = a.FrameCap
	}
	if a.Workers > 0 {
		cfg.Workers = a.Workers
	}
	cfg.DetectTimeout = a.DetectTimeout.Duration()
	return cfg
}

// DefaultConfig 默认配置
func DefaultConfig() Bootstrap {
	def := analysis.DefaultConfig()
	return Bootstrap{
		Server: Server{
			HTTP: ServerHTTP{
				Port:    8080,
				Timeout: Duration(5 * time.Minute),
			},
			UploadDir: "static/videos",
			BaseURL:   "http://127.0.0.1:8080",
		},
		Data: Data{
			Database: Database{
				Dsn:             "configs/data.db",
				MaxIdleConns:    10,
				MaxOpenConns:    50,
				ConnMaxLifetime: Duration(6 * time.Hour),
				SlowThreshold:   Duration(200 * time.Millisecond),
			},
			Mongo: Mongo{
				Database: "accident_db",
				Timeout:  Duration(10 * time.Second),
			},
		},
		Analysis: Analysis{
			VehicleClasses:     def.VehicleClasses,
			OverlapThreshold:   def.OverlapThreshold,
			MinCollisionFrames: def.MinCollisionFrames,
			HighSeverityFrames: def.HighSeverityFrames,
			FrameCap:           def.FrameCap,
			Workers:            def.Workers,
			DetectTimeout:      Duration(10 * time.Second),
			AnalyzeTimeout:     Duration(3 * time.Minute),
		},
		Detector: Detector{
			Backend:   "grpc",
			Addr:      "127.0.0.1:50051",
			ModelPath: "models/yolov8n.onnx",
			Threshold: 0.25,
		},
		Camera: Camera{
			Latitude:  12.9698,
			Longitude: 77.75,
		},
		Geocode: Geocode{
			URL:       "https://nominatim.openstreetmap.org/reverse",
			UserAgent: "AccidentDetectionSystem/1.0",
			Timeout:   Duration(10 * time.Second),
		},
		Mail: Mail{
			Host:   "smtp.gmail.com",
			Port:   465,
			UseSSL: true,
		},
		Kafka: Kafka{
			Topic:            "accident-alerts",
			SecurityProtocol: "PLAINTEXT",
		},
		Log: Log{
			Dir:          "configs/logs",
			Level:        "info",
			MaxAge:       Duration(7 * 24 * time.Hour),
			RotationTime: Duration(24 * time.Hour),
		},
	}
}
