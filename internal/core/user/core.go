package user

import (
	"context"
	"errors"
	"strings"

	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/reason"
	"golang.org/x/crypto/bcrypt"
)

// ErrUserExists 邮箱已注册
var ErrUserExists = errors.New("user already exists")

// Storer data persistence
type Storer interface {
	User() UserStorer
}

// UserStorer Instantiation interface
type UserStorer interface {
	GetByEmail(context.Context, *User, string) error
	Add(context.Context, *User) error
}

// Core business domain
type Core struct {
	store Storer
	cost  int
}

type Option func(*Core)

// WithBcryptCost 哈希强度，测试中可调低
func WithBcryptCost(cost int) Option {
	return func(c *Core) {
		c.cost = cost
	}
}

// NewCore create business domain
func NewCore(store Storer, opts ...Option) Core {
	c := Core{store: store, cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register 注册账号，邮箱重复时返回 ErrUserExists
func (c Core) Register(ctx context.Context, email, password string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, reason.ErrBadRequest.Withf("email and password are required")
	}

	var exist User
	err := c.store.User().GetByEmail(ctx, &exist, email)
	if err == nil {
		return nil, ErrUserExists
	}
	if !orm.IsErrRecordNotFound(err) {
		return nil, reason.ErrDB.Withf(`GetByEmail email[%s] err[%s]`, email, err.Error())
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), c.cost)
	if err != nil {
		return nil, reason.ErrServer.Withf(`hash password err[%s]`, err.Error())
	}
	out := User{Email: email, Password: string(hash), CreatedAt: orm.Now()}
	if err := c.store.User().Add(ctx, &out); err != nil {
		return nil, reason.ErrDB.Withf(`Add email[%s] err[%s]`, email, err.Error())
	}
	return &out, nil
}

// Login 校验邮箱与密码
func (c Core) Login(ctx context.Context, email, password string) (*User, error) {
	var out User
	if err := c.store.User().GetByEmail(ctx, &out, normalizeEmail(email)); err != nil {
		if orm.IsErrRecordNotFound(err) {
			return nil, reason.ErrNameOrPasswd
		}
		return nil, reason.ErrDB.Withf(`GetByEmail err[%s]`, err.Error())
	}
	if err := bcrypt.CompareHashAndPassword([]byte(out.Password), []byte(password)); err != nil {
		return nil, reason.ErrNameOrPasswd
	}
	return &out, nil
}
