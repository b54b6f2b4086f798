// Package counter is Counter Ingest (C8): attributes falling edges on
// the counter pin to the most-recently-started EN_PROCESO order (spec
// §4.8). It is driven by the GPIO Link's pin-change stream.
package counter

import (
	"context"
	"time"

	coreerrors "github.com/abdoElHodaky/cremer-line-core/internal/errors"
	"github.com/abdoElHodaky/cremer-line-core/internal/eventbus"
	"github.com/abdoElHodaky/cremer-line-core/internal/models"
	"github.com/abdoElHodaky/cremer-line-core/internal/monitoring"
	"github.com/abdoElHodaky/cremer-line-core/internal/store"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Ingest implements Counter Ingest (C8).
type Ingest struct {
	store   *store.Store
	bus     *eventbus.Bus
	logger  *zap.Logger
	metrics *monitoring.Collector
}

func New(st *store.Store, bus *eventbus.Bus, logger *zap.Logger, metrics *monitoring.Collector) *Ingest {
	return &Ingest{store: st, bus: bus, logger: logger, metrics: metrics}
}

// OnFallingEdge is called by the GPIO Link for every 1→0 transition on
// the counter pin. A transaction failure drops the pulse (logged); an
// empty EN_PROCESO set also drops the pulse without error (spec §4.8).
func (ing *Ingest) OnFallingEdge(ctx context.Context) {
	now := time.Now()
	var idOrder string
	var counted bool

	err := ing.store.Atomic(ctx, func(tx *gorm.DB) error {
		orders, err := ing.store.FindOrdersByEstado(tx, models.EstadoEnProceso)
		if err != nil {
			return err
		}
		if len(orders) == 0 {
			return nil
		}
		target := mostRecentlyStarted(orders)

		counterRow, err := ing.store.FindBottleCounterByOrder(tx, target.ID)
		if err != nil {
			return err
		}
		if counterRow == nil {
			counterRow = &models.BottleCounter{
				IDOrder:     target.ID,
				CreatedAt:   now,
				LastUpdated: now,
			}
			counterRow.IsActive = true
			counterRow.Quantity = 1
			counterRow.LastBottleCountedAt = &now
			if err := ing.store.CreateBottleCounter(tx, counterRow); err != nil {
				return err
			}
		} else {
			counterRow.IsActive = true
			counterRow.Quantity++
			counterRow.LastUpdated = now
			counterRow.LastBottleCountedAt = &now
			if err := ing.store.SaveBottleCounter(tx, counterRow); err != nil {
				return err
			}
		}

		idOrder = target.ID
		counted = true
		return nil
	})
	if err != nil {
		ing.logger.Warn("dropped counter pulse", zap.Error(err))
		return
	}
	if !counted {
		ing.logger.Debug("dropped counter pulse: no order in EN_PROCESO")
		return
	}
	ing.metrics.RecordBottleCounterIncrement(idOrder)

	event := eventbus.Event{
		EventType: eventbus.EventBottleCounterUpdate,
		Message:   eventbus.EventBottleCounterUpdate,
		Data:      map[string]interface{}{"idOrder": idOrder},
		Timestamp: time.Now(),
	}
	ing.bus.Publish(eventbus.TopicBottleCounter, event)
	ing.bus.Publish(eventbus.BottleCounterTopic(idOrder), event)
}

func mostRecentlyStarted(orders []models.Order) models.Order {
	best := orders[0]
	for _, o := range orders[1:] {
		if o.HoraInicio == nil {
			continue
		}
		if best.HoraInicio == nil || o.HoraInicio.After(*best.HoraInicio) {
			best = o
		}
	}
	return best
}

// Activate deactivates every counter, then creates or upserts idOrder's
// counter with isActive = true. Called by the Order Engine on iniciar
// (spec §4.8).
func (ing *Ingest) Activate(tx *gorm.DB, idOrder string) error {
	if err := ing.store.DeactivateAllBottleCounters(tx); err != nil {
		return err
	}
	counterRow, err := ing.store.FindBottleCounterByOrder(tx, idOrder)
	if err != nil {
		return err
	}
	now := time.Now()
	if counterRow == nil {
		counterRow = &models.BottleCounter{
			IDOrder:     idOrder,
			IsActive:    true,
			CreatedAt:   now,
			LastUpdated: now,
		}
		return ing.store.CreateBottleCounter(tx, counterRow)
	}
	counterRow.IsActive = true
	counterRow.LastUpdated = now
	return ing.store.SaveBottleCounter(tx, counterRow)
}

// Deactivate sets isActive = false for idOrder's counter. Called by
// the Order Engine on finalize→FINALIZADA (spec §4.8).
func (ing *Ingest) Deactivate(tx *gorm.DB, idOrder string) error {
	counterRow, err := ing.store.FindBottleCounterByOrder(tx, idOrder)
	if err != nil {
		return err
	}
	if counterRow == nil {
		return nil
	}
	counterRow.IsActive = false
	counterRow.LastUpdated = time.Now()
	return ing.store.SaveBottleCounter(tx, counterRow)
}

// Reset zeroes idOrder's counter and clears its last-counted timestamp.
func (ing *Ingest) Reset(ctx context.Context, idOrder string) error {
	return ing.store.Atomic(ctx, func(tx *gorm.DB) error {
		counterRow, err := ing.store.FindBottleCounterByOrder(tx, idOrder)
		if err != nil {
			return err
		}
		if counterRow == nil {
			return coreerrors.Newf(coreerrors.NotFound, "no bottle counter for order %q", idOrder)
		}
		counterRow.Quantity = 0
		counterRow.LastBottleCountedAt = nil
		counterRow.LastUpdated = time.Now()
		return ing.store.SaveBottleCounter(tx, counterRow)
	})
}
