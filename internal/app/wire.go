//go:build wireinject

package app

import (
	"net/http"

	"github.com/google/wire"
	"github.com/gowvp/roadeye/internal/conf"
	"github.com/gowvp/roadeye/internal/data"
	"github.com/gowvp/roadeye/internal/web/api"
)

func wireApp(bc *conf.Bootstrap) (http.Handler, func(), error) {
	panic(wire.Build(data.ProviderSet, api.ProviderSet))
}
