// Package accidentmongo 事故记录的 MongoDB 存储
package accidentmongo

import (
	"context"

	"github.com/gowvp/roadeye/internal/core/accident"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collection = "accident_results"

var _ accident.Storer = DB{}

type DB struct {
	db *mongo.Database
}

func NewDB(db *mongo.Database) DB {
	return DB{db: db}
}

func (d DB) Accident() accident.AccidentStorer {
	return (Accident)(d)
}

// EnsureIndexes 创建查询用索引，可重复执行
func (d DB) EnsureIndexes(ctx context.Context) error {
	_, err := d.db.Collection(collection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "date", Value: -1}}},
		{Keys: bson.D{{Key: "city", Value: 1}}},
	}, options.CreateIndexes())
	return err
}
