package api

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/wire"
	"github.com/gowvp/roadeye/internal/conf"
	"github.com/gowvp/roadeye/internal/core/accident"
	"github.com/gowvp/roadeye/internal/core/accident/store/accidentdb"
	"github.com/gowvp/roadeye/internal/core/accident/store/accidentmongo"
	"github.com/gowvp/roadeye/internal/core/analysis"
	"github.com/gowvp/roadeye/internal/core/notify"
	"github.com/gowvp/roadeye/internal/core/user"
	"github.com/gowvp/roadeye/internal/core/user/store/userdb"
	"github.com/gowvp/roadeye/internal/core/user/store/usermongo"
	"github.com/gowvp/roadeye/internal/metrics"
	"github.com/gowvp/roadeye/internal/rpc"
	"github.com/gowvp/roadeye/pkg/ffwork"
	"github.com/gowvp/roadeye/pkg/geocode"
	"github.com/gowvp/roadeye/pkg/yolo"
	"github.com/ixugo/goddd/pkg/orm"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

var ProviderSet = wire.NewSet(
	wire.Struct(new(Usecase), "*"),
	NewHTTPHandler,
	NewDetector, NewAnalyzer,
	NewGeocoder, NewNotifier,
	NewAccidentStore, NewAccidentCore, NewIngestor, NewAccidentAPI,
	NewUserStore, NewUserCore, NewUserAPI,
	NewPublicAPI, NewEmailAPI,
)

type Usecase struct {
	Conf        *conf.Bootstrap
	DB          *gorm.DB
	UserAPI     UserAPI
	AccidentAPI AccidentAPI
	PublicAPI   PublicAPI
	EmailAPI    EmailAPI
}

// NewHTTPHandler 生成Gin框架路由内容
func NewHTTPHandler(uc *Usecase) http.Handler {
	cfg := uc.Conf.Server
	if cfg.HTTP.JwtSecret == "" {
		uc.Conf.Server.HTTP.JwtSecret = orm.GenerateRandomString(32)
	}
	if !uc.Conf.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	g := gin.New()
	setupRouter(g, uc) // 设置路由处理函数
	return g
}

// NewDetector 按配置选择检测后端
func NewDetector(bc *conf.Bootstrap) (analysis.Detector, func(), error) {
	cfg := bc.Detector
	switch strings.ToLower(cfg.Backend) {
	case "", "grpc":
		cli, err := rpc.NewDetectorClient(cfg.Addr, rpc.WithThreshold(cfg.Threshold))
		if err != nil {
			return nil, nil, err
		}
		return cli, func() { _ = cli.Close() }, nil
	case "yolo":
		det, err := yolo.New(yolo.Config{ModelPath: cfg.ModelPath, Threshold: cfg.Threshold})
		if err != nil {
			return nil, nil, err
		}
		return yoloDetector{det}, func() { _ = det.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown detector backend %q", cfg.Backend)
}

// yoloDetector 将本地模型输出转换为分析所需的检测结果
type yoloDetector struct {
	*yolo.Detector
}

func (y yoloDetector) Detect(ctx context.Context, img image.Image) ([]analysis.Detection, error) {
	objs, err := y.Detector.Detect(ctx, img)
	if err != nil {
		return nil, err
	}
	dets := make([]analysis.Detection, 0, len(objs))
	for _, o := range objs {
		dets = append(dets, analysis.Detection{
			Label:      o.Label,
			Confidence: float64(o.Score),
			Box: analysis.Box{
				X1: float64(o.Rect.Min.X),
				Y1: float64(o.Rect.Min.Y),
				X2: float64(o.Rect.Max.X),
				Y2: float64(o.Rect.Max.Y),
			},
		})
	}
	return dets, nil
}

// NewAnalyzer 视频分析器，帧源为 ffmpeg 解码
func NewAnalyzer(bc *conf.Bootstrap, det analysis.Detector) *analysis.Analyzer {
	cfg := bc.Analysis.AnalysisConfig()
	return analysis.NewAnalyzer(det,
		analysis.WithConfig(cfg),
		analysis.WithOpener(newOpener(cfg.FrameCap)),
		analysis.WithDetectFailureHook(metrics.DetectFailed),
	)
}

// newOpener 使用 ffmpeg 解码本地视频，maxFrames 为 0 不限制
func newOpener(maxFrames int) analysis.Opener {
	open := ffwork.Opener(ffwork.Config{MaxFrames: maxFrames})
	return func(ctx context.Context, path string) (analysis.FrameSource, error) {
		fc, err := open(ctx, path)
		if err != nil {
			return nil, err
		}
		return fc, nil
	}
}

func NewGeocoder(bc *conf.Bootstrap) *geocode.Client {
	return geocode.NewClient(geocode.Config{
		URL:       bc.Geocode.URL,
		UserAgent: bc.Geocode.UserAgent,
		Timeout:   bc.Geocode.Timeout.Duration(),
	})
}

// NewEmail 邮件通道，未配置收件人时仍返回实例，发送时报错
func NewEmail(bc *conf.Bootstrap) *notify.Email {
	m := bc.Mail
	var to []string
	for v := range strings.SplitSeq(m.To, ",") {
		if v = strings.TrimSpace(v); v != "" {
			to = append(to, v)
		}
	}
	return notify.NewEmail(notify.EmailConfig{
		Host:     m.Host,
		Port:     m.Port,
		Username: m.Username,
		Password: m.Password,
		From:     m.From,
		To:       to,
		UseSSL:   m.UseSSL,
	})
}

// NewNotifier 组合已配置的通知通道
func NewNotifier(bc *conf.Bootstrap) (notify.Multi, func()) {
	var (
		out     notify.Multi
		cleanup = func() {}
	)
	if email := NewEmail(bc); email.Enabled() {
		out = append(out, email)
	}
	if bc.Kafka.BootstrapServers != "" {
		k, err := notify.NewKafka(notify.KafkaConfig{
			BootstrapServers: bc.Kafka.BootstrapServers,
			Topic:            bc.Kafka.Topic,
			SecurityProtocol: bc.Kafka.SecurityProtocol,
			SASLMechanism:    bc.Kafka.SASLMechanism,
			SASLUsername:     bc.Kafka.SASLUsername,
			SASLPassword:     bc.Kafka.SASLPassword,
		})
		if err != nil {
			slog.Error("kafka notifier disabled", "err", err)
		} else {
			out = append(out, k)
			cleanup = k.Close
		}
	}
	return out, cleanup
}

// NewAccidentStore 配置了 MongoDB 时优先使用，否则落到关系型数据库
func NewAccidentStore(db *gorm.DB, mdb *mongo.Database) accident.Storer {
	if mdb != nil {
		store := accidentmongo.NewDB(mdb)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.EnsureIndexes(ctx); err != nil {
			slog.Error("accident_results ensure indexes", "err", err)
		}
		return store
	}
	return accidentdb.NewDB(db).AutoMigrate(orm.GetEnabledAutoMigrate())
}

// NewAccidentCore 创建事故记录核心服务，并启动过期清理协程
func NewAccidentCore(store accident.Storer, bc *conf.Bootstrap) (accident.Core, func()) {
	core := accident.NewCore(store, accident.WithBaseURL(bc.Server.BaseURL))
	ctx, cancel := context.WithCancel(context.Background())
	go core.StartCleanupWorker(ctx, bc.Retention.Days)
	return core, cancel
}

func NewIngestor(bc *conf.Bootstrap, core accident.Core, analyzer *analysis.Analyzer, geo *geocode.Client, n notify.Multi) (*accident.Ingestor, func()) {
	opts := []accident.IngestOption{
		accident.WithGeocoder(geo),
		accident.WithCamera(accident.Location{Latitude: bc.Camera.Latitude, Longitude: bc.Camera.Longitude}),
		accident.WithAnalyzeTimeout(bc.Analysis.AnalyzeTimeout.Duration()),
	}
	if len(n) > 0 {
		opts = append(opts, accident.WithNotifier(n))
	}
	ing := accident.NewIngestor(core, analyzer, opts...)
	return ing, ing.Wait
}

func NewUserStore(db *gorm.DB, mdb *mongo.Database) user.Storer {
	if mdb != nil {
		store := usermongo.NewDB(mdb)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.EnsureIndexes(ctx); err != nil {
			slog.Error("users ensure indexes", "err", err)
		}
		return store
	}
	return userdb.NewDB(db).AutoMigrate(orm.GetEnabledAutoMigrate())
}

func NewUserCore(store user.Storer) user.Core {
	return user.NewCore(store)
}
