package accident

import (
	"context"
	"time"

	"github.com/ixugo/goddd/pkg/web"
)

// Storer data persistence
type Storer interface {
	Accident() AccidentStorer
}

// AccidentStorer Instantiation interface
type AccidentStorer interface {
	Find(context.Context, *[]*Accident, *FindAccidentInput) (int64, error)
	Get(context.Context, *Accident, int64) error
	Add(context.Context, *Accident) error
	Del(context.Context, *Accident, int64) error
	DelIn(context.Context, []int64) error

	// FindBefore 查询 date 早于 t 的记录，按时间升序
	FindBefore(ctx context.Context, out *[]*Accident, t time.Time, pager web.PagerFilter) error
	// Dates 所有记录的时间，用于按月统计
	Dates(context.Context) ([]time.Time, error)
}

// Core business domain
type Core struct {
	store       Storer
	evidenceDir string
	baseURL     string
}

type Option func(*Core)

// WithEvidenceDir 证据帧存放目录
func WithEvidenceDir(dir string) Option {
	return func(c *Core) {
		c.evidenceDir = dir
	}
}

// WithBaseURL 对外访问地址，用于拼接证据帧 URL
func WithBaseURL(url string) Option {
	return func(c *Core) {
		c.baseURL = url
	}
}

// NewCore create business domain
func NewCore(store Storer, opts ...Option) Core {
	c := Core{store: store, evidenceDir: defaultEvidenceDir()}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
