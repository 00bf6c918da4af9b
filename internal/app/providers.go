package app

import (
	"context"

	"fundledger/internal/config"
)

func provideAppBuilder(cfg *config.Config) *AppBuilder {
	return NewAppBuilder(cfg)
}

func provideAppFromBuilder(b *AppBuilder, ctx context.Context) (*App, error) {
	return b.Build(ctx)
}

func provideCoreFromBuilder(b *AppBuilder, ctx context.Context) (*Core, error) {
	return b.BuildCore(ctx)
}

// NewCore builds the services without the scheduler and HTTP server.
func NewCore(ctx context.Context, cfg *config.Config) (*Core, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return buildCoreWithWire(ctx, cfg)
}
