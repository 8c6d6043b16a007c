package accident

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gowvp/roadeye/internal/core/analysis"
	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/reason"
	"github.com/jinzhu/copier"
)

// FindAccidents 分页查询，按时间倒序；Size 为 0 时返回全部
func (c Core) FindAccidents(ctx context.Context, in *FindAccidentInput) ([]*Accident, int64, error) {
	items := make([]*Accident, 0, 8)
	total, err := c.store.Accident().Find(ctx, &items, in)
	if err != nil {
		return nil, 0, reason.ErrDB.Withf(`Find in[%+v] err[%s]`, in, err.Error())
	}
	return items, total, nil
}

// GetAccident Query a single object
func (c Core) GetAccident(ctx context.Context, id int64) (*Accident, error) {
	out, err := c.LookupAccident(ctx, id)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, reason.ErrNotFound.Withf(`Get id[%v] not found`, id)
	}
	return out, nil
}

// LookupAccident 查询单条记录，不存在时返回 nil, nil
func (c Core) LookupAccident(ctx context.Context, id int64) (*Accident, error) {
	var out Accident
	if err := c.store.Accident().Get(ctx, &out, id); err != nil {
		if orm.IsErrRecordNotFound(err) {
			return nil, nil
		}
		return nil, reason.ErrDB.Withf(`Get id[%v] err[%s]`, id, err.Error())
	}
	return &out, nil
}

// AddAccident Insert into database
func (c Core) AddAccident(ctx context.Context, in *AddAccidentInput) (*Accident, error) {
	var out Accident
	if err := copier.Copy(&out, in); err != nil {
		slog.ErrorContext(ctx, "Copy", "err", err)
	}
	if in.SeverityPercentage != nil {
		out.SeverityPercentage = *in.SeverityPercentage
	}
	if in.Latitude != nil {
		out.Latitude = *in.Latitude
	}
	if in.Longitude != nil {
		out.Longitude = *in.Longitude
	}
	if in.ImageURL != nil {
		out.ImageURL = *in.ImageURL
	}
	// 手动录入的记录默认视为事故
	if out.Result == "" {
		out.Result = analysis.ResultAccident
	}
	out.Date = orm.Now()

	if err := c.store.Accident().Add(ctx, &out); err != nil {
		return nil, reason.ErrDB.Withf(`Add err[%s]`, err.Error())
	}
	return &out, nil
}

// save 持久化分析生成的记录
func (c Core) save(ctx context.Context, a *Accident) error {
	if a.Date.IsZero() {
		a.Date = orm.Now()
	}
	if err := c.store.Accident().Add(ctx, a); err != nil {
		return reason.ErrDB.Withf(`Add err[%s]`, err.Error())
	}
	return nil
}

// DelAccident Delete object，同时删除证据帧
func (c Core) DelAccident(ctx context.Context, id int64) (*Accident, error) {
	var out Accident
	if err := c.store.Accident().Del(ctx, &out, id); err != nil {
		return nil, reason.ErrDB.Withf(`Del id[%v] err[%s]`, id, err.Error())
	}
	if out.ImagePath != "" {
		if err := os.Remove(filepath.Join(c.evidenceDir, out.ImagePath)); err != nil && !os.IsNotExist(err) {
			slog.WarnContext(ctx, "failed to delete evidence", "path", out.ImagePath, "err", err)
		}
	}
	return &out, nil
}

// MonthlySummary 按月统计记录数，月份升序
func (c Core) MonthlySummary(ctx context.Context) ([]MonthlyCount, error) {
	dates, err := c.store.Accident().Dates(ctx)
	if err != nil {
		return nil, reason.ErrDB.Withf(`MonthlySummary err[%s]`, err.Error())
	}

	counts := make(map[string]int)
	for _, d := range dates {
		if d.IsZero() {
			continue
		}
		counts[d.UTC().Format("2006-01")]++
	}

	out := make([]MonthlyCount, 0, len(counts))
	for month, n := range counts {
		out = append(out, MonthlyCount{Month: month, Count: n})
	}
	slices.SortFunc(out, func(a, b MonthlyCount) int {
		return strings.Compare(a.Month, b.Month)
	})
	return out, nil
}
