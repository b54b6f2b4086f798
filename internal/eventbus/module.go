package eventbus

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the Bus for the fx application.
var Module = fx.Options(
	fx.Provide(NewFx),
)

func NewFx(lifecycle fx.Lifecycle, logger *zap.Logger) *Bus {
	bus := New(logger)
	lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return bus.Close()
		},
	})
	return bus
}
