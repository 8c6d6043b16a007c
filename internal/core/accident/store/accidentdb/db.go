package accidentdb

import (
	"github.com/gowvp/roadeye/internal/core/accident"
	"gorm.io/gorm"
)

var _ accident.Storer = DB{}

// DB Related business namespaces
type DB struct {
	db *gorm.DB
}

// NewDB instance object
func NewDB(db *gorm.DB) DB {
	return DB{db: db}
}

// Accident Get business instance
func (d DB) Accident() accident.AccidentStorer {
	return (Accident)(d)
}

// AutoMigrate sync database
func (d DB) AutoMigrate(ok bool) DB {
	if !ok {
		return d
	}
	if err := d.db.AutoMigrate(
		new(accident.Accident),
	); err != nil {
		panic(err)
	}
	return d
}
