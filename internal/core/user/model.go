package user

import "github.com/ixugo/goddd/pkg/orm"

// User 后台账号，以邮箱作为登录名
type User struct {
	ID        int64    `gorm:"primaryKey" json:"id"`
	Email     string   `gorm:"column:email;uniqueIndex;notNull" json:"email"`
	Password  string   `gorm:"column:password;notNull" json:"-"` // bcrypt 哈希
	CreatedAt orm.Time `gorm:"column:created_at;notNull" json:"created_at"`
}

// TableName database table name
func (*User) TableName() string {
	return "users"
}
