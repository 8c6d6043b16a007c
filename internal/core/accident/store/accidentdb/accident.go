package accidentdb

import (
	"context"
	"time"

	"github.com/gowvp/roadeye/internal/core/accident"
	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/web"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ accident.AccidentStorer = Accident{}

// Accident Related business namespaces
type Accident DB

// NewAccident instance object
func NewAccident(db *gorm.DB) Accident {
	return Accident{db: db}
}

// Find implements accident.AccidentStorer.
func (d Accident) Find(ctx context.Context, out *[]*accident.Accident, in *accident.FindAccidentInput) (int64, error) {
	db := d.db.WithContext(ctx).Model(new(accident.Accident))
	if in.City != "" {
		db = db.Where("city = ?", in.City)
	}
	if in.Result != "" {
		db = db.Where("result = ?", in.Result)
	}
	if in.StartMs > 0 && in.EndMs > 0 {
		db = db.Where("date >= ? AND date <= ?", in.StartAt(), in.EndAt())
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}

	db = db.Order("date DESC").Order("id DESC")
	if in.Size > 0 {
		db = db.Offset(in.Offset()).Limit(in.Limit())
	}
	return total, db.Find(out).Error
}

// Get implements accident.AccidentStorer.
func (d Accident) Get(ctx context.Context, out *accident.Accident, id int64) error {
	return d.db.WithContext(ctx).Where("id=?", id).First(out).Error
}

// Add implements accident.AccidentStorer.
func (d Accident) Add(ctx context.Context, a *accident.Accident) error {
	return d.db.WithContext(ctx).Create(a).Error
}

// Del implements accident.AccidentStorer.
// 删除成功时 out 为被删除的记录
func (d Accident) Del(ctx context.Context, out *accident.Accident, id int64) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id=?", id).First(out).Error; err != nil {
			return err
		}
		return tx.Delete(new(accident.Accident), "id=?", id).Error
	})
}

// DelIn implements accident.AccidentStorer.
func (d Accident) DelIn(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return d.db.WithContext(ctx).Where("id IN ?", ids).Delete(new(accident.Accident)).Error
}

// FindBefore implements accident.AccidentStorer.
func (d Accident) FindBefore(ctx context.Context, out *[]*accident.Accident, t time.Time, pager web.PagerFilter) error {
	return d.db.WithContext(ctx).
		Where("date < ?", orm.Time{Time: t}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "date"}}).
		Limit(pager.Limit()).
		Find(out).Error
}

// Dates implements accident.AccidentStorer.
func (d Accident) Dates(ctx context.Context) ([]time.Time, error) {
	var dates []orm.Time
	if err := d.db.WithContext(ctx).Model(new(accident.Accident)).Pluck("date", &dates).Error; err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, len(dates))
	for _, v := range dates {
		out = append(out, v.Time)
	}
	return out, nil
}
