package visibility

import (
	"github.com/abdoElHodaky/cremer-line-core/internal/eventbus"
	"github.com/abdoElHodaky/cremer-line-core/internal/store"
	"github.com/jmoiron/sqlx"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the Visibility Projector for the fx application.
var Module = fx.Options(
	fx.Provide(NewFx),
)

// NewFx wraps the Store's underlying *sql.DB in a sqlx handle for the
// projector's raw read query.
func NewFx(st *store.Store, bus *eventbus.Bus, logger *zap.Logger) (*Projector, error) {
	sqlDB, err := st.DB().DB()
	if err != nil {
		return nil, err
	}
	return New(sqlx.NewDb(sqlDB, "postgres"), bus, logger), nil
}
