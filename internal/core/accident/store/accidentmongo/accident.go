package accidentmongo

import (
	"context"
	"errors"
	"time"

	"github.com/gowvp/roadeye/internal/core/accident"
	"github.com/gowvp/roadeye/internal/data"
	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/web"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/gorm"
)

var _ accident.AccidentStorer = Accident{}

type Accident DB

// document 集合中的文档结构，字段名与 HTTP 输出一致
type document struct {
	ID                 int64     `bson:"_id"`
	VideoName          string    `bson:"video_name"`
	Result             string    `bson:"result"`
	Severity           string    `bson:"severity"`
	SeverityPercentage int       `bson:"severityInPercentage"`
	FramesAnalyzed     int       `bson:"frames_analyzed"`
	CollisionFrames    int       `bson:"collision_frames"`
	Address            string    `bson:"address"`
	City               string    `bson:"city"`
	Latitude           float64   `bson:"latitude"`
	Longitude          float64   `bson:"longitude"`
	ImageURL           string    `bson:"image_url"`
	ImagePath          string    `bson:"image_path"`
	Date               time.Time `bson:"date"`
}

func newDocument(a *accident.Accident) document {
	return document{
		ID:                 a.ID,
		VideoName:          a.VideoName,
		Result:             a.Result,
		Severity:           a.Severity,
		SeverityPercentage: a.SeverityPercentage,
		FramesAnalyzed:     a.FramesAnalyzed,
		CollisionFrames:    a.CollisionFrames,
		Address:            a.Address,
		City:               a.City,
		Latitude:           a.Latitude,
		Longitude:          a.Longitude,
		ImageURL:           a.ImageURL,
		ImagePath:          a.ImagePath,
		Date:               a.Date.Time,
	}
}

func (d document) accident() *accident.Accident {
	return &accident.Accident{
		ID:                 d.ID,
		VideoName:          d.VideoName,
		Result:             d.Result,
		Severity:           d.Severity,
		SeverityPercentage: d.SeverityPercentage,
		FramesAnalyzed:     d.FramesAnalyzed,
		CollisionFrames:    d.CollisionFrames,
		Address:            d.Address,
		City:               d.City,
		Latitude:           d.Latitude,
		Longitude:          d.Longitude,
		ImageURL:           d.ImageURL,
		ImagePath:          d.ImagePath,
		Date:               orm.Time{Time: d.Date},
	}
}

// notFound 转换为 gorm 的错误，上层统一用 orm.IsErrRecordNotFound 判断
func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return gorm.ErrRecordNotFound
	}
	return err
}

func (d Accident) coll() *mongo.Collection {
	return d.db.Collection(collection)
}

func decodeAll(ctx context.Context, cur *mongo.Cursor, out *[]*accident.Accident) error {
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var doc document
		if err := cur.Decode(&doc); err != nil {
			return err
		}
		*out = append(*out, doc.accident())
	}
	return cur.Err()
}

// Find implements accident.AccidentStorer.
func (d Accident) Find(ctx context.Context, out *[]*accident.Accident, in *accident.FindAccidentInput) (int64, error) {
	filter := bson.M{}
	if in.City != "" {
		filter["city"] = in.City
	}
	if in.Result != "" {
		filter["result"] = in.Result
	}
	if in.StartMs > 0 && in.EndMs > 0 {
		filter["date"] = bson.M{"$gte": time.UnixMilli(int64(in.StartMs)), "$lte": time.UnixMilli(int64(in.EndMs))}
	}

	total, err := d.coll().CountDocuments(ctx, filter)
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}

	opts := options.Find().SetSort(bson.D{{Key: "date", Value: -1}, {Key: "_id", Value: -1}})
	if in.Size > 0 {
		opts.SetSkip(int64(in.Offset())).SetLimit(int64(in.Limit()))
	}
	cur, err := d.coll().Find(ctx, filter, opts)
	if err != nil {
		return 0, err
	}
	return total, decodeAll(ctx, cur, out)
}

// Get implements accident.AccidentStorer.
func (d Accident) Get(ctx context.Context, out *accident.Accident, id int64) error {
	var doc document
	if err := d.coll().FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return notFound(err)
	}
	*out = *doc.accident()
	return nil
}

// Add implements accident.AccidentStorer.
func (d Accident) Add(ctx context.Context, a *accident.Accident) error {
	id, err := data.NextSeq(ctx, d.db, collection)
	if err != nil {
		return err
	}
	a.ID = id
	_, err = d.coll().InsertOne(ctx, newDocument(a))
	return err
}

// Del implements accident.AccidentStorer.
func (d Accident) Del(ctx context.Context, out *accident.Accident, id int64) error {
	var doc document
	if err := d.coll().FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return notFound(err)
	}
	*out = *doc.accident()
	return nil
}

// DelIn implements accident.AccidentStorer.
func (d Accident) DelIn(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := d.coll().DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	return err
}

// FindBefore implements accident.AccidentStorer.
func (d Accident) FindBefore(ctx context.Context, out *[]*accident.Accident, t time.Time, pager web.PagerFilter) error {
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}}).SetLimit(int64(pager.Limit()))
	cur, err := d.coll().Find(ctx, bson.M{"date": bson.M{"$lt": t}}, opts)
	if err != nil {
		return err
	}
	return decodeAll(ctx, cur, out)
}

// Dates implements accident.AccidentStorer.
func (d Accident) Dates(ctx context.Context) ([]time.Time, error) {
	cur, err := d.coll().Find(ctx, bson.M{}, options.Find().SetProjection(bson.M{"date": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]time.Time, 0, 8)
	for cur.Next(ctx) {
		var v struct {
			Date time.Time `bson:"date"`
		}
		if err := cur.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, v.Date)
	}
	return out, cur.Err()
}
