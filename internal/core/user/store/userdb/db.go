package userdb

import (
	"context"

	"github.com/gowvp/roadeye/internal/core/user"
	"gorm.io/gorm"
)

var (
	_ user.Storer     = DB{}
	_ user.UserStorer = User{}
)

// DB Related business namespaces
type DB struct {
	db *gorm.DB
}

// NewDB instance object
func NewDB(db *gorm.DB) DB {
	return DB{db: db}
}

// User Get business instance
func (d DB) User() user.UserStorer {
	return (User)(d)
}

// AutoMigrate sync database
func (d DB) AutoMigrate(ok bool) DB {
	if !ok {
		return d
	}
	if err := d.db.AutoMigrate(
		new(user.User),
	); err != nil {
		panic(err)
	}
	return d
}

type User DB

// GetByEmail implements user.UserStorer.
func (d User) GetByEmail(ctx context.Context, out *user.User, email string) error {
	return d.db.WithContext(ctx).Where("email=?", email).First(out).Error
}

// Add implements user.UserStorer.
func (d User) Add(ctx context.Context, u *user.User) error {
	return d.db.WithContext(ctx).Create(u).Error
}
