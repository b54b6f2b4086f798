// Package visibility is the Visibility Projector (C10): derives the
// single "active visible order" and republishes it whenever any
// upstream component's refresh hook fires (spec §4.10).
//
// The projection query is read-only and join-free, so it is expressed
// directly against sqlx rather than gorm, matching the teacher's
// internal/db/query_cache.go split between the ORM for writes and a
// sqlx handle for hot read paths.
package visibility

import (
	"context"
	"database/sql"
	"time"

	"github.com/abdoElHodaky/cremer-line-core/internal/eventbus"
	"github.com/abdoElHodaky/cremer-line-core/internal/models"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// ActiveOrder is the projection published on the active-order topic.
type ActiveOrder struct {
	OrderID    string     `json:"orderId" db:"id"`
	CodOrder   string     `json:"codOrder" db:"cod_order"`
	Estado     string     `json:"estado" db:"estado"`
	HoraInicio *time.Time `json:"horaInicio" db:"hora_inicio"`
}

// query selects the order meeting one of the two visibility conditions
// (spec §4.10), choosing the most recently started. A PAUSADA order is
// visible only when its open pause's tipo is not FABRICACION_PARCIAL.
const query = `
SELECT o.id, o.cod_order, o.estado, o.hora_inicio
FROM orders o
WHERE o.estado = ?
   OR (
        o.estado = ?
        AND EXISTS (
            SELECT 1 FROM pauses p
            WHERE p.id_order = o.id
              AND p.hora_fin IS NULL
              AND (p.tipo IS NULL OR p.tipo <> ?)
        )
      )
ORDER BY o.hora_inicio DESC NULLS LAST
LIMIT 1
`

// Projector computes and republishes the active-visible-order projection.
type Projector struct {
	db     *sqlx.DB
	bus    *eventbus.Bus
	logger *zap.Logger
}

func New(db *sqlx.DB, bus *eventbus.Bus, logger *zap.Logger) *Projector {
	return &Projector{db: db, bus: bus, logger: logger}
}

// Current returns the active visible order, or nil if none qualifies.
func (p *Projector) Current(ctx context.Context) (*ActiveOrder, error) {
	var row ActiveOrder
	err := p.db.GetContext(ctx, &row, query,
		models.EstadoEnProceso, models.EstadoPausada, models.TipoFabricacionParcial)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// Refresh recomputes the projection and publishes ACTIVE_ORDER_CHANGED.
// It is wired as the refresh hook engines call after iniciar, finalize,
// openPause, closePause and manual pause-state mutations (spec §4.10).
func (p *Projector) Refresh(ctx context.Context) {
	current, err := p.Current(ctx)
	if err != nil {
		p.logger.Error("failed to compute active-order projection", zap.Error(err))
		return
	}
	event := eventbus.Event{
		EventType: eventbus.EventActiveOrderChanged,
		Message:   eventbus.EventActiveOrderChanged,
		Data:      current,
		Timestamp: time.Now(),
	}
	p.bus.Publish(eventbus.TopicActiveOrder, event)
}
