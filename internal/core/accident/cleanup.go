package accident

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ixugo/goddd/pkg/web"
)

// StartCleanupWorker 启动定时清理协程，每 24 小时执行一次
// days 参数指定保留的天数，超过该天数的记录及证据帧将被删除
func (c Core) StartCleanupWorker(ctx context.Context, days int) {
	if days <= 0 {
		slog.Info("accident cleanup disabled", "days", days)
		return
	}

	slog.Info("accident cleanup worker started", "retain_days", days)

	// 启动时先执行一次清理
	c.CleanupExpired(ctx, time.Now().AddDate(0, 0, -days))

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.CleanupExpired(ctx, time.Now().AddDate(0, 0, -days))
		}
	}
}

// CleanupExpired 清理 cutoff 之前的记录，先删除本地证据帧，再删除数据库记录
// 返回删除的记录数
func (c Core) CleanupExpired(ctx context.Context, cutoff time.Time) int {
	slog.Info("starting accident cleanup", "cutoff_time", cutoff.Format(time.DateTime))

	// 分批查询并删除，避免一次性加载过多数据
	const batchSize = 100
	totalDeleted := 0
	totalFilesDeleted := 0

	for ctx.Err() == nil {
		var items []*Accident
		err := c.store.Accident().FindBefore(ctx, &items, cutoff, web.PagerFilter{Page: 1, Size: batchSize})
		if err != nil {
			slog.Error("failed to query expired accidents", "err", err)
			break
		}
		if len(items) == 0 {
			break
		}

		ids := make([]int64, 0, len(items))
		for _, a := range items {
			ids = append(ids, a.ID)
			if a.ImagePath == "" {
				continue
			}
			fullPath := filepath.Join(c.evidenceDir, a.ImagePath)
			if err := os.Remove(fullPath); err != nil {
				if !os.IsNotExist(err) {
					slog.Warn("failed to delete evidence", "path", fullPath, "err", err)
				}
			} else {
				totalFilesDeleted++
			}
		}

		if err := c.store.Accident().DelIn(ctx, ids); err != nil {
			slog.Warn("failed to batch delete accidents", "count", len(ids), "err", err)
			break
		}
		totalDeleted += len(ids)
	}

	cleanupEmptyDirs(c.evidenceDir)

	slog.Info("accident cleanup completed",
		"accidents_deleted", totalDeleted,
		"files_deleted", totalFilesDeleted,
	)
	return totalDeleted
}

// cleanupEmptyDirs 递归删除空目录
func cleanupEmptyDirs(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		subDir := filepath.Join(dir, entry.Name())
		cleanupEmptyDirs(subDir)

		subEntries, err := os.ReadDir(subDir)
		if err == nil && len(subEntries) == 0 {
			if err := os.Remove(subDir); err == nil {
				slog.Debug("removed empty directory", "path", subDir)
			}
		}
	}
}
