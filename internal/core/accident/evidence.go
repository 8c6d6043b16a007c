package accident

import (
	"fmt"
	"image"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/ixugo/goddd/pkg/system"
)

// EvidenceRoute 证据帧静态文件的访问前缀
const EvidenceRoute = "/static/evidence"

func defaultEvidenceDir() string {
	return filepath.Join(system.Getwd(), "configs", "evidence")
}

// EvidenceDir 证据帧存放目录
func (c Core) EvidenceDir() string {
	return c.evidenceDir
}

// SaveEvidence 将证据帧编码为 JPEG 保存到按日期划分的目录
// 返回相对 EvidenceDir 的路径，统一使用 / 分隔
func (c Core) SaveEvidence(videoName string, img image.Image, at time.Time) (string, error) {
	if img == nil {
		return "", fmt.Errorf("evidence image is nil")
	}
	base := filepath.Base(videoName)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." {
		base = "video"
	}

	day := at.Format("20060102")
	name := fmt.Sprintf("accident_%s_%s.jpg", base, strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	dir := filepath.Join(c.evidenceDir, day)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := imaging.Save(img, filepath.Join(dir, name), imaging.JPEGQuality(90)); err != nil {
		return "", fmt.Errorf("save evidence: %w", err)
	}
	return path.Join(day, name), nil
}

// EvidenceURL 证据帧对外访问地址
func (c Core) EvidenceURL(rel string) string {
	if rel == "" {
		return ""
	}
	return strings.TrimRight(c.baseURL, "/") + EvidenceRoute + "/" + rel
}
