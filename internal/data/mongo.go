package data

import (
	"context"
	"log/slog"
	"time"

	"github.com/gowvp/roadeye/internal/conf"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// CounterCollection 自增序列集合，{_id: 序列名, seq: 当前值}
const CounterCollection = "counters"

// SetupMongo 未配置 URI 时返回 nil
func SetupMongo(c *conf.Bootstrap) (*mongo.Database, func(), error) {
	cfg := c.Data.Mongo
	if cfg.URI == "" {
		return nil, func() {}, nil
	}
	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI).SetTimeout(timeout))
	if err != nil {
		return nil, nil, err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, err
	}
	name := cfg.Database
	if name == "" {
		name = "accident_db"
	}
	slog.Info("mongo connected", "database", name)
	return client.Database(name), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Disconnect(ctx); err != nil {
			slog.Error("mongo disconnect", "err", err)
		}
	}, nil
}

// NextSeq 原子递增并返回序列 name 的下一个值，从 1 开始
func NextSeq(ctx context.Context, db *mongo.Database, name string) (int64, error) {
	var out struct {
		Seq int64 `bson:"seq"`
	}
	err := db.Collection(CounterCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&out)
	return out.Seq, err
}
