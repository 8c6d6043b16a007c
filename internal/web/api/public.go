package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gowvp/roadeye/internal/conf"
	"github.com/gowvp/roadeye/internal/core/accident"
	"github.com/gowvp/roadeye/internal/core/analysis"
	"github.com/ixugo/goddd/pkg/system"
	"github.com/ixugo/goddd/pkg/web"
)

type PublicAPI struct {
	uploadDir string
	ingestor  *accident.Ingestor
	detector  analysis.Detector
	open      analysis.Opener
	limiter   func(id string) bool
}

func NewPublicAPI(bc *conf.Bootstrap, ing *accident.Ingestor, det analysis.Detector) PublicAPI {
	return PublicAPI{
		uploadDir: uploadDir(bc.Server.UploadDir),
		ingestor:  ing,
		detector:  det,
		open:      newOpener(0),
		// 每个 IP 约 5 秒一次上传分析
		limiter: web.IDRateLimiter(0.2, 1, 3*time.Minute),
	}
}

func uploadDir(dir string) string {
	if dir == "" {
		dir = "static/videos"
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(system.Getwd(), dir)
}

func RegisterPublic(r gin.IRouter, api PublicAPI) {
	group := r.Group("/api/v1/public")
	group.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Welcome to public API"})
	})
	group.POST("/upload-video", api.uploadVideo)
	group.GET("/video/:filename", api.serveVideo)
	group.GET("/detect/:filename", api.detectVideo)
}

type analysisOutput struct {
	Result             string `json:"result"`
	Severity           string `json:"severity"`
	SeverityPercentage int    `json:"severityInPercentage"`
}

type uploadVideoOutput struct {
	Status     string         `json:"status"`
	Message    string         `json:"message,omitempty"`
	Video      string         `json:"video"`
	Analysis   analysisOutput `json:"analysis"`
	AccidentID string         `json:"accidentId"`
}

func newUploadVideoOutput(video string, res *analysis.Result) uploadVideoOutput {
	return uploadVideoOutput{
		Status: "success",
		Video:  video,
		Analysis: analysisOutput{
			Result:             res.Result,
			Severity:           res.Severity,
			SeverityPercentage: res.SeverityPercentage,
		},
	}
}

func failJSON(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{"status": "error", "message": msg})
}

func (p PublicAPI) uploadVideo(c *gin.Context) {
	if p.limiter != nil && !p.limiter(c.ClientIP()) {
		failJSON(c, http.StatusTooManyRequests, "Too many uploads, try again later")
		return
	}
	file, err := c.FormFile("video")
	if err != nil {
		failJSON(c, http.StatusBadRequest, "No video file received")
		return
	}
	if file.Filename == "" {
		failJSON(c, http.StatusBadRequest, "Empty filename")
		return
	}

	name := uuid.NewString()[:8] + "_" + secureFilename(file.Filename)
	if err := os.MkdirAll(p.uploadDir, 0o755); err != nil {
		web.Fail(c, err)
		return
	}
	path := filepath.Join(p.uploadDir, name)
	if err := c.SaveUploadedFile(file, path); err != nil {
		web.Fail(c, err)
		return
	}

	out, err := p.ingestor.Ingest(c.Request.Context(), accident.IngestInput{VideoName: name, Path: path})
	if err != nil {
		if analysis.IsCancelled(err) {
			failJSON(c, http.StatusRequestTimeout, "Video analysis cancelled")
			return
		}
		// 分析已完成但记录未保存，判定结果照常返回，accidentId 为空
		if out != nil && out.Analysis != nil {
			slog.ErrorContext(c.Request.Context(), "save accident record", "video", name, "err", err)
			resp := newUploadVideoOutput(name, out.Analysis)
			resp.Status = "error"
			resp.Message = "Failed to save accident record"
			c.JSON(http.StatusInternalServerError, resp)
			return
		}
		web.Fail(c, err)
		return
	}

	resp := newUploadVideoOutput(name, out.Analysis)
	resp.AccidentID = strconv.FormatInt(out.Accident.ID, 10)
	c.JSON(http.StatusOK, resp)
}

// videoPath 只接受上传目录下的文件名
func (p PublicAPI) videoPath(filename string) (string, bool) {
	if filename == "" || secureFilename(filename) != filename {
		return "", false
	}
	return filepath.Join(p.uploadDir, filename), true
}

func (p PublicAPI) serveVideo(c *gin.Context) {
	path, ok := p.videoPath(c.Param("filename"))
	if !ok {
		failJSON(c, http.StatusBadRequest, "Invalid filename")
		return
	}
	if _, err := os.Stat(path); err != nil {
		failJSON(c, http.StatusNotFound, "Video not found")
		return
	}
	c.File(path)
}

// detectVideo 逐帧检测并以 MJPEG 推送标注后的画面
func (p PublicAPI) detectVideo(c *gin.Context) {
	path, ok := p.videoPath(c.Param("filename"))
	if !ok {
		failJSON(c, http.StatusBadRequest, "Invalid filename")
		return
	}
	if _, err := os.Stat(path); err != nil {
		failJSON(c, http.StatusNotFound, "Video not found")
		return
	}
	ctx := c.Request.Context()
	src, err := p.open(ctx, path)
	if err != nil {
		web.Fail(c, err)
		return
	}
	defer src.Close()

	rc := http.NewResponseController(c.Writer)
	_ = rc.SetWriteDeadline(time.Time{})

	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)

	var buf bytes.Buffer
	for idx := 0; ; idx++ {
		img, err := src.Next(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				slog.WarnContext(ctx, "detect stream", "video", path, "err", err)
			}
			return
		}
		dets, err := p.detector.Detect(ctx, img)
		if err != nil {
			slog.WarnContext(ctx, "detect frame", "video", path, "index", idx, "err", err)
		}

		buf.Reset()
		if err := imaging.Encode(&buf, annotate(img, dets), imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
			slog.WarnContext(ctx, "encode frame", "index", idx, "err", err)
			continue
		}
		if _, err := fmt.Fprintf(c.Writer, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", buf.Len()); err != nil {
			return
		}
		if _, err := c.Writer.Write(buf.Bytes()); err != nil {
			return
		}
		if _, err := io.WriteString(c.Writer, "\r\n"); err != nil {
			return
		}
		c.Writer.Flush()
	}
}

// secureFilename 仅保留 ASCII 字母数字与 ._- ，去掉路径部分
func secureFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "video"
	}
	return out
}
