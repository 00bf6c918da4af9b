//go:build wireinject
// +build wireinject

package app

import (
	"context"

	"fundledger/internal/config"

	"github.com/google/wire"
)

var providerSet = wire.NewSet(provideAppBuilder)

func buildAppWithWire(ctx context.Context, cfg *config.Config) (*App, error) {
	wire.Build(providerSet, provideAppFromBuilder)
	return nil, nil
}

func buildCoreWithWire(ctx context.Context, cfg *config.Config) (*Core, error) {
	wire.Build(providerSet, provideCoreFromBuilder)
	return nil, nil
}
