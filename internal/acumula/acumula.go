// Package acumula is the Acumula Engine (C6): the manual post-
// production bookkeeping phase for orders that finalize with
// acumula=true (spec §4.6).
package acumula

import (
	"context"
	"time"

	coreerrors "github.com/abdoElHodaky/cremer-line-core/internal/errors"
	"github.com/abdoElHodaky/cremer-line-core/internal/eventbus"
	"github.com/abdoElHodaky/cremer-line-core/internal/models"
	"github.com/abdoElHodaky/cremer-line-core/internal/store"
	"github.com/abdoElHodaky/cremer-line-core/internal/validation"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Engine implements the Acumula Engine (C6).
type Engine struct {
	store             *store.Store
	bus               *eventbus.Bus
	validator         *validation.Validator
	logger            *zap.Logger
	refreshVisibility func(ctx context.Context)
}

func New(st *store.Store, bus *eventbus.Bus, validator *validation.Validator, logger *zap.Logger) *Engine {
	return &Engine{store: st, bus: bus, validator: validator, logger: logger}
}

// SetVisibilityRefresh wires the projector refresh hook (spec §4.10).
func (e *Engine) SetVisibilityRefresh(fn func(ctx context.Context)) {
	e.refreshVisibility = fn
}

// StartManual requires estado = ESPERA_MANUAL and no open Acumula row.
// Writes Acumula(horaInicio=now) and moves the order to PROCESO_MANUAL.
func (e *Engine) StartManual(ctx context.Context, idOrder string) (*models.Acumula, error) {
	now := time.Now()
	var created *models.Acumula

	err := e.store.Atomic(ctx, func(tx *gorm.DB) error {
		order, err := e.store.FindOrderByID(tx, idOrder)
		if err != nil {
			return err
		}
		if order.Estado != models.EstadoEsperaManual {
			return coreerrors.Newf(coreerrors.InvalidState, "order %q must be ESPERA_MANUAL to start the manual phase, was %s", idOrder, order.Estado)
		}
		if existing, err := e.store.FindAcumula(tx, idOrder); err != nil {
			return err
		} else if existing != nil && existing.Abierta() {
			return coreerrors.Newf(coreerrors.Conflict, "order %q already has an open manual phase", idOrder)
		}

		a := &models.Acumula{IDOrder: idOrder, HoraInicio: now}
		if err := e.store.CreateAcumula(tx, a); err != nil {
			return err
		}

		order.Estado = models.EstadoProcesoManual
		order.Acumula = true
		if err := e.store.SaveOrder(tx, order); err != nil {
			return err
		}

		created = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.publishStateChange(idOrder, models.EstadoProcesoManual)
	if e.refreshVisibility != nil {
		e.refreshVisibility(ctx)
	}
	return created, nil
}

// FinishInput is the payload for FinishManual (spec §4.6).
type FinishInput struct {
	NumCajasManual int `json:"numCajasManual" validate:"gte=0"`
}

// FinishManual requires estado = PROCESO_MANUAL and an open Acumula.
// Metrics are never touched by this operation.
func (e *Engine) FinishManual(ctx context.Context, idOrder string, in FinishInput) (*models.Acumula, error) {
	if err := e.validator.Validate(in); err != nil {
		return nil, err
	}
	now := time.Now()
	var finished *models.Acumula

	err := e.store.Atomic(ctx, func(tx *gorm.DB) error {
		order, err := e.store.FindOrderByID(tx, idOrder)
		if err != nil {
			return err
		}
		if order.Estado != models.EstadoProcesoManual {
			return coreerrors.Newf(coreerrors.InvalidState, "order %q must be PROCESO_MANUAL to finish the manual phase, was %s", idOrder, order.Estado)
		}
		a, err := e.store.FindAcumula(tx, idOrder)
		if err != nil {
			return err
		}
		if a == nil || !a.Abierta() {
			return coreerrors.Newf(coreerrors.InvalidState, "order %q has no open manual phase to finish", idOrder)
		}

		a.HoraFin = &now
		minutes := now.Sub(a.HoraInicio).Minutes()
		a.TiempoTotal = &minutes
		a.NumCajasManual = in.NumCajasManual
		if err := e.store.SaveAcumula(tx, a); err != nil {
			return err
		}

		order.Estado = models.EstadoFinalizada
		if err := e.store.SaveOrder(tx, order); err != nil {
			return err
		}

		finished = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.publishStateChange(idOrder, models.EstadoFinalizada)
	if e.refreshVisibility != nil {
		e.refreshVisibility(ctx)
	}
	return finished, nil
}

func (e *Engine) publishStateChange(idOrder string, estado models.EstadoOrder) {
	event := eventbus.Event{
		EventType: eventbus.EventOrderStateChanged,
		Message:   eventbus.EventOrderStateChanged,
		Data:      map[string]interface{}{"idOrder": idOrder, "estado": estado},
		Timestamp: time.Now(),
	}
	e.bus.Publish(eventbus.TopicOrders, event)
	e.bus.Publish(eventbus.OrderTopic(idOrder), event)
}
