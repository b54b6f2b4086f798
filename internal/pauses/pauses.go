// Package pauses is the Pause Engine (C4): the two-phase open/close
// pause protocol described in spec §4.4, grounded on the same
// Store-transaction-then-publish shape as the order engine.
package pauses

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

// Engine implements the Pause Engine (C4).
type Engine struct {
	store     *store.Store
	bus       *eventbus.Bus
	validator *validation.Validator
	logger    *zap.Logger

	// refreshVisibility is invoked after every open/close so the
	// Visibility Projector (C10) can re-derive its projection, per
	// spec §4.10. Wired by the top-level process assembly to avoid an
	// import cycle between pauses and visibility.
	refreshVisibility func(ctx context.Context)
}

func New(st *store.Store, bus *eventbus.Bus, validator *validation.Validator, logger *zap.Logger) *Engine {
	return &Engine{store: st, bus: bus, validator: validator, logger: logger}
}

// SetVisibilityRefresh wires the projector refresh hook (spec §4.10).
func (e *Engine) SetVisibilityRefresh(fn func(ctx context.Context)) {
	e.refreshVisibility = fn
}

// OpenInput is the payload for OpenPause (spec §4.4).
type OpenInput struct {
	Tipo        *models.TipoPausa `json:"tipo" validate:"omitempty,tipopausa"`
	Descripcion string            `json:"descripcion"`
	Operario    string            `json:"operario"`
}

// OpenPause requires the order be EN_PROCESO with no open pause, then
// writes a new open Pause and moves the order to PAUSADA.
func (e *Engine) OpenPause(ctx context.Context, idOrder string, in OpenInput) (*models.Pause, error) {
	if err := e.validator.Validate(in); err != nil {
		return nil, err
	}
	now := time.Now()
	var created *models.Pause
	var publishTopic string
	var publishEvent eventbus.Event

	err := e.store.Atomic(ctx, func(tx *gorm.DB) error {
		order, err := e.store.FindOrderByID(tx, idOrder)
		if err != nil {
			return err
		}
		if order.Estado != models.EstadoEnProceso {
			return coreerrors.Newf(coreerrors.InvalidState, "order %q must be EN_PROCESO to open a pause, was %s", idOrder, order.Estado)
		}
		if open, err := e.store.FindOpenPause(tx, idOrder); err != nil {
			return err
		} else if open != nil {
			return coreerrors.Newf(coreerrors.Conflict, "order %q already has an open pause", idOrder)
		}

		pause := &models.Pause{
			IDOrder:     idOrder,
			Tipo:        in.Tipo,
			Descripcion: in.Descripcion,
			Operario:    in.Operario,
			HoraInicio:  now,
		}
		if in.Tipo != nil {
			computa := in.Tipo.Computa()
			pause.Computa = &computa
		}
		if err := e.store.CreatePause(tx, pause); err != nil {
			return err
		}

		order.Estado = models.EstadoPausada
		if err := e.store.SaveOrder(tx, order); err != nil {
			return err
		}

		created = pause
		publishTopic, publishEvent = topicFor(pause.Tipo, eventbus.EventPauseCreated, pause)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.bus.Publish(publishTopic, publishEvent)
	if e.refreshVisibility != nil {
		e.refreshVisibility(ctx)
	}
	return created, nil
}

// CloseInput is the payload for ClosePause (spec §4.4).
type CloseInput struct {
	Tipo        *models.TipoPausa `json:"tipo" validate:"omitempty,tipopausa"`
	Descripcion string            `json:"descripcion"`
	Operario    string            `json:"operario"`
}

// ClosePause requires an open Pause for idOrder. A nil stored tipo
// requires the caller to supply one; a supplied tipo differing from the
// stored one replaces it and recomputes computa; descripcion values
// concatenate with " | " (spec §4.4).
func (e *Engine) ClosePause(ctx context.Context, idOrder string, in CloseInput) (*models.Pause, error) {
	if err := e.validator.Validate(in); err != nil {
		return nil, err
	}
	now := time.Now()
	var closed *models.Pause
	var publishTopic string
	var publishEvent eventbus.Event

	err := e.store.Atomic(ctx, func(tx *gorm.DB) error {
		open, err := e.store.FindOpenPause(tx, idOrder)
		if err != nil {
			return err
		}
		if open == nil {
			return coreerrors.Newf(coreerrors.InvalidState, "order %q has no open pause to close", idOrder)
		}

		finalTipo, err := resolveTipo(open, in.Tipo)
		if err != nil {
			return err
		}
		open.Tipo = &finalTipo
		computa := finalTipo.Computa()
		open.Computa = &computa

		if in.Descripcion != "" {
			if open.Descripcion != "" {
				open.Descripcion = open.Descripcion + " | " + in.Descripcion
			} else {
				open.Descripcion = in.Descripcion
			}
		}
		if in.Operario != "" {
			open.Operario = in.Operario
		}

		open.HoraFin = &now
		minutes := now.Sub(open.HoraInicio).Minutes()
		open.TiempoTotalPausa = &minutes

		if err := e.store.SavePause(tx, open); err != nil {
			return err
		}

		order, err := e.store.FindOrderByID(tx, idOrder)
		if err != nil {
			return err
		}
		order.Estado = models.EstadoEnProceso
		if err := e.store.SaveOrder(tx, order); err != nil {
			return err
		}

		closed = open
		publishTopic, publishEvent = topicFor(open.Tipo, eventbus.EventPauseFinished, open)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.bus.Publish(publishTopic, publishEvent)
	if e.refreshVisibility != nil {
		e.refreshVisibility(ctx)
	}
	return closed, nil
}

// CloseActive closes idOrder's open pause using now as the close time,
// used by the Order Engine's finalize auto-close step (spec §4.3 step
// 2). It runs inside the caller's transaction rather than opening one
// of its own.
func CloseActive(tx *gorm.DB, st *store.Store, idOrder string, now time.Time) (*models.Pause, error) {
	open, err := st.FindOpenPause(tx, idOrder)
	if err != nil {
		return nil, err
	}
	if open == nil {
		return nil, nil
	}
	open.HoraFin = &now
	minutes := now.Sub(open.HoraInicio).Minutes()
	open.TiempoTotalPausa = &minutes
	if open.Tipo != nil && open.Computa == nil {
		computa := open.Tipo.Computa()
		open.Computa = &computa
	}
	if err := st.SavePause(tx, open); err != nil {
		return nil, err
	}
	return open, nil
}

func resolveTipo(open *models.Pause, supplied *models.TipoPausa) (models.TipoPausa, error) {
	if open.Tipo == nil {
		if supplied == nil {
			return "", coreerrors.New(coreerrors.InvalidInput, "closing a pause with no stored tipo requires one to be supplied")
		}
		return *supplied, nil
	}
	if supplied != nil {
		return *supplied, nil
	}
	return *open.Tipo, nil
}

func topicFor(tipo *models.TipoPausa, eventType string, pause *models.Pause) (string, eventbus.Event) {
	topic := eventbus.TopicPausesNonPartial
	if tipo != nil && *tipo == models.TipoFabricacionParcial {
		topic = eventbus.TopicFabricacionParcial
	}
	event := eventbus.Event{
		EventType: eventType,
		Message:   eventType,
		Data:      pause,
		Timestamp: time.Now(),
	}
	return topic, event
}
