package autopause

import (
	"context"

	"github.com/abdoElHodaky/cremer-line-core/internal/config"
	"github.com/abdoElHodaky/cremer-line-core/internal/gpio"
	"github.com/abdoElHodaky/cremer-line-core/internal/monitoring"
	"github.com/abdoElHodaky/cremer-line-core/internal/pauses"
	"github.com/abdoElHodaky/cremer-line-core/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the Auto-Pause Detector for the fx application.
var Module = fx.Options(
	fx.Provide(NewFx),
)

func NewFx(lifecycle fx.Lifecycle, cfg *config.Config, link *gpio.Link, pauseEngine *pauses.Engine, st *store.Store, logger *zap.Logger, metrics *monitoring.Collector) (*Detector, error) {
	detector, err := New(Config{
		PonderalPin:          cfg.GPIO.PonderalPin,
		EtiquetaPin:          cfg.GPIO.EtiquetaPin,
		OpenDebounce:         cfg.AutoPause.OpenDebounce,
		CloseDebounce:        cfg.AutoPause.CloseDebounce,
		Cooldown:             cfg.AutoPause.Cooldown,
		ReconciliationPeriod: cfg.AutoPause.ReconciliationPeriod,
		WorkerPoolSize:       cfg.AutoPause.WorkerPoolSize,
	}, link, pauseEngine, st, logger, metrics)
	if err != nil {
		return nil, err
	}

	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			detector.Run(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			detector.Close()
			return nil
		},
	})

	return detector, nil
}
