package api

import (
	"log/slog"
	"net/http"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gowvp/roadeye/internal/core/accident"
	"github.com/gowvp/roadeye/internal/metrics"
	"github.com/ixugo/goddd/pkg/web"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

var startRuntime = time.Now()

func setupRouter(r *gin.Engine, uc *Usecase) {
	r.Use(
		// 格式化输出到控制台，然后记录到日志
		gin.CustomRecovery(func(c *gin.Context, err any) {
			slog.ErrorContext(c.Request.Context(), "panic", "err", err, "stack", string(debug.Stack()))
			c.AbortWithStatus(http.StatusInternalServerError)
		}),
		web.Metrics(),
		web.Logger(web.IgnorePrefix("/static"),
			web.IgnoreMethod(http.MethodOptions),
			web.IgnorePrefix("/metrics"),
			web.IgnorePrefix("/api/v1/public/detect"), // MJPEG 长连接
		),
		web.LoggerWithBody(web.DefaultBodyLimit,
			web.IgnoreBool(uc.Conf.Debug),
			web.IgnoreMethod(http.MethodOptions),
			web.IgnorePrefix("/static"),
			web.IgnorePrefix("/api/v1/public/upload-video"), // 视频文件
			web.IgnorePrefix("/api/v1/auth"),                // 密码
		),
	)
	go web.CountGoroutines(10*time.Minute, 20)

	r.Use(cors.New(cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders: []string{
			"Accept", "Content-Length", "Content-Type", "Range", "Accept-Language",
			"Origin", "Authorization", "Referer", "User-Agent",
			"Accept-Encoding",
			"Cache-Control", "Pragma", "X-Requested-With",
			"X-Forwarded-For", "X-Real-IP", "X-Request-ID",
		},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
		AllowOriginFunc: func(_ string) bool {
			return true
		},
	}))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"msg": "来到了无人的荒漠"})
	})

	r.GET("/health", web.WrapH(uc.getHealth))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	static := r.Group(accident.EvidenceRoute, gzip.Gzip(gzip.DefaultCompression))
	static.Static("/", uc.AccidentAPI.core.EvidenceDir())

	auth := web.AuthMiddleware(uc.Conf.Server.HTTP.JwtSecret)
	RegisterUser(r, uc.UserAPI)
	RegisterPublic(r, uc.PublicAPI)
	RegisterAccident(r, uc.AccidentAPI, auth)
	RegisterEmail(r, uc.EmailAPI, auth)
}

type getHealthOutput struct {
	Version    string    `json:"version"`
	StartAt    time.Time `json:"start_at"`
	Goroutines int       `json:"goroutines"`
	CPUPercent float64   `json:"cpu_percent"` // 主机 CPU 使用率
	MemPercent float64   `json:"mem_percent"` // 主机内存使用率
	MemUsed    uint64    `json:"mem_used"`
	MemTotal   uint64    `json:"mem_total"`
}

func (uc *Usecase) getHealth(c *gin.Context, _ *struct{}) (getHealthOutput, error) {
	out := getHealthOutput{
		Version:    uc.Conf.BuildVersion,
		StartAt:    startRuntime,
		Goroutines: runtime.NumGoroutine(),
	}
	ctx := c.Request.Context()
	if v, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(v) > 0 {
		out.CPUPercent = v[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		out.MemPercent = vm.UsedPercent
		out.MemUsed = vm.Used
		out.MemTotal = vm.Total
	}
	return out, nil
}
