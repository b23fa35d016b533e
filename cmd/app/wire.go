//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yanqian/todoauth/internal/bootstrap"
	"github.com/yanqian/todoauth/internal/domain/auth"
	"github.com/yanqian/todoauth/internal/infra/config"
	httpiface "github.com/yanqian/todoauth/internal/interface/http"
)

var coreSet = wire.NewSet(
	config.Load,
	provideLogger,
	provideAuthConfig,
	provideClock,
	provideRegistry,
	provideMetrics,
	provideIdentityProvider,
	provideRepository,
	auth.NewTokenCodec,
	auth.NewService,
)

func initializeApp() (*bootstrap.App, func(), error) {
	wire.Build(
		coreSet,
		provideLimiter,
		wire.Bind(new(prometheus.Gatherer), new(*prometheus.Registry)),
		httpiface.NewHandler,
		httpiface.NewRouter,
		bootstrap.NewApp,
	)
	return nil, nil, nil
}

func initializeAdminTool() (*bootstrap.AdminTool, func(), error) {
	wire.Build(
		coreSet,
		bootstrap.NewAdminTool,
	)
	return nil, nil, nil
}
