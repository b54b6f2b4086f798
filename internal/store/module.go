package store

import (
	"context"

	"github.com/abdoElHodaky/cremer-line-core/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the Store for the fx application.
var Module = fx.Options(
	fx.Provide(NewFx),
)

// NewFx opens the database and registers its shutdown hook.
func NewFx(lifecycle fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*Store, error) {
	st, err := Open(cfg.DSN(), logger)
	if err != nil {
		return nil, err
	}

	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("store connected")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("closing store")
			sqlDB, err := st.DB().DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})

	return st, nil
}
