package gpio

import (
	"context"

	"github.com/abdoElHodaky/cremer-line-core/internal/config"
	"github.com/abdoElHodaky/cremer-line-core/internal/monitoring"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the GPIO Link for the fx application.
var Module = fx.Options(
	fx.Provide(NewFx),
)

func NewFx(lifecycle fx.Lifecycle, cfg *config.Config, logger *zap.Logger, metrics *monitoring.Collector) *Link {
	link := New(Config{
		Address:           cfg.GPIOAddress(),
		HeartbeatTimeout:  cfg.GPIO.HeartbeatTimeout,
		WatchdogInterval:  cfg.GPIO.WatchdogInterval,
		ReconnectMinDelay: cfg.GPIO.ReconnectMinDelay,
		ReconnectMaxDelay: cfg.GPIO.ReconnectMaxDelay,
	}, logger, metrics)

	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go link.Run(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			link.Close()
			return nil
		},
	})

	return link
}
