// Package usermongo 账号的 MongoDB 存储
package usermongo

import (
	"context"
	"errors"
	"time"

	"github.com/gowvp/roadeye/internal/core/user"
	"github.com/gowvp/roadeye/internal/data"
	"github.com/ixugo/goddd/pkg/orm"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/gorm"
)

const collection = "users"

var (
	_ user.Storer     = DB{}
	_ user.UserStorer = User{}
)

type DB struct {
	db *mongo.Database
}

func NewDB(db *mongo.Database) DB {
	return DB{db: db}
}

func (d DB) User() user.UserStorer {
	return (User)(d)
}

// EnsureIndexes 邮箱唯一索引
func (d DB) EnsureIndexes(ctx context.Context) error {
	_, err := d.db.Collection(collection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

type User DB

type document struct {
	ID        int64     `bson:"_id"`
	Email     string    `bson:"email"`
	Password  string    `bson:"password"`
	CreatedAt time.Time `bson:"created_at"`
}

// GetByEmail implements user.UserStorer.
func (d User) GetByEmail(ctx context.Context, out *user.User, email string) error {
	var doc document
	if err := d.db.Collection(collection).FindOne(ctx, bson.M{"email": email}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return gorm.ErrRecordNotFound
		}
		return err
	}
	*out = user.User{
		ID:        doc.ID,
		Email:     doc.Email,
		Password:  doc.Password,
		CreatedAt: orm.Time{Time: doc.CreatedAt},
	}
	return nil
}

// Add implements user.UserStorer.
func (d User) Add(ctx context.Context, u *user.User) error {
	id, err := data.NextSeq(ctx, d.db, collection)
	if err != nil {
		return err
	}
	u.ID = id
	_, err = d.db.Collection(collection).InsertOne(ctx, document{
		ID:        u.ID,
		Email:     u.Email,
		Password:  u.Password,
		CreatedAt: u.CreatedAt.Time,
	})
	return err
}
