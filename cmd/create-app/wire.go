//go:build wireinject

package main

import (
	"github.com/google/wire"
	"go.uber.org/zap"

	"github.com/burugo/tenantdb"
)

// initializeApp builds the client and its collaborators from cfg.
func initializeApp(cfg tenantdb.Config, logger *zap.Logger) (*App, func(), error) {
	wire.Build(
		provideDriver,
		provideRegistry,
		provideCacheStore,
		provideMetrics,
		provideClient,
		wire.Struct(new(App), "*"),
	)
	return nil, nil, nil
}
