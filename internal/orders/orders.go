// Package orders is the Order Engine (C3): the order lifecycle state
// machine, derived-field computation, and the per-order serialization
// discipline described in spec §4.3/§5.
package orders

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/abdoElHodaky/cremer-line-core/internal/counter"
	coreerrors "github.com/abdoElHodaky/cremer-line-core/internal/errors"
	"github.com/abdoElHodaky/cremer-line-core/internal/eventbus"
	"github.com/abdoElHodaky/cremer-line-core/internal/metrics"
	"github.com/abdoElHodaky/cremer-line-core/internal/models"
	"github.com/abdoElHodaky/cremer-line-core/internal/pauses"
	"github.com/abdoElHodaky/cremer-line-core/internal/store"
	"github.com/abdoElHodaky/cremer-line-core/internal/validation"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Engine implements the Order Engine (C3).
type Engine struct {
	store     *store.Store
	bus       *eventbus.Bus
	metrics   *metrics.Calculator
	counter   *counter.Ingest
	validator *validation.Validator
	logger    *zap.Logger

	refreshVisibility func(ctx context.Context)

	// locks serializes transitions on a single order: acquired at the
	// start of an operation, released at commit or rollback (spec §5).
	// Cross-order operations never contend on this map.
	locks sync.Map // idOrder -> *sync.Mutex
}

func New(st *store.Store, bus *eventbus.Bus, calc *metrics.Calculator, ing *counter.Ingest, validator *validation.Validator, logger *zap.Logger) *Engine {
	return &Engine{store: st, bus: bus, metrics: calc, counter: ing, validator: validator, logger: logger}
}

// SetVisibilityRefresh wires the projector refresh hook (spec §4.10).
func (e *Engine) SetVisibilityRefresh(fn func(ctx context.Context)) {
	e.refreshVisibility = fn
}

func (e *Engine) lockFor(idOrder string) *sync.Mutex {
	l, _ := e.locks.LoadOrStore(idOrder, &sync.Mutex{})
	return l.(*sync.Mutex)
}

func (e *Engine) withOrderLock(idOrder string, fn func() error) error {
	l := e.lockFor(idOrder)
	l.Lock()
	defer l.Unlock()
	return fn()
}

// CreateInput is the payload for CreateOrder (spec §4.3).
type CreateInput struct {
	CodOrder      string  `json:"codOrder" validate:"required"`
	Operario      string  `json:"operario" validate:"required"`
	Lote          string  `json:"lote" validate:"required"`
	Articulo      string  `json:"articulo" validate:"required"`
	Descripcion   string  `json:"descripcion"`
	Cantidad      int     `json:"cantidad" validate:"gte=1"`
	BotesCaja     int     `json:"botesCaja" validate:"gte=1"`
	StdReferencia float64 `json:"stdReferencia" validate:"gt=0"`
	FormatoBote   string  `json:"formatoBote"`
	Tipo          string  `json:"tipo"`
	UdsBote       int     `json:"udsBote" validate:"gte=0"`
}

// CreateOrder asserts codOrder uniqueness and writes Order(estado=CREADA)
// plus the ExtraData sidecar in one transaction, publishing ORDER_CREATED.
func (e *Engine) CreateOrder(ctx context.Context, in CreateInput) (*models.Order, error) {
	if err := e.validator.Validate(in); err != nil {
		return nil, err
	}
	now := time.Now()
	order := &models.Order{
		CodOrder:      in.CodOrder,
		Operario:      in.Operario,
		Lote:          in.Lote,
		Articulo:      in.Articulo,
		Descripcion:   in.Descripcion,
		Estado:        models.EstadoCreada,
		Cantidad:      in.Cantidad,
		BotesCaja:     in.BotesCaja,
		StdReferencia: in.StdReferencia,
		HoraCreacion:  now,
	}

	err := e.store.Atomic(ctx, func(tx *gorm.DB) error {
		if _, err := e.store.FindOrderByCodOrder(tx, in.CodOrder); err == nil {
			return coreerrors.Newf(coreerrors.AlreadyExists, "order with codOrder %q already exists", in.CodOrder)
		} else if coreerrors.KindOf(err) != coreerrors.NotFound {
			return err
		}

		if err := e.store.CreateOrder(tx, order); err != nil {
			return err
		}
		extra := &models.ExtraData{
			IDOrder:     order.ID,
			FormatoBote: in.FormatoBote,
			Tipo:        in.Tipo,
			UdsBote:     in.UdsBote,
		}
		return e.store.CreateExtraData(tx, extra)
	})
	if err != nil {
		return nil, err
	}

	e.publishOrderEvent(eventbus.EventOrderCreated, order)
	return order, nil
}

// Iniciar requires CREADA and no other order in EN_PROCESO, sets
// horaInicio=now, estado=EN_PROCESO,
// activates the order's counter, publishes ORDER_STATE_CHANGED and
// refreshes the active-order projection (spec §4.3).
func (e *Engine) Iniciar(ctx context.Context, id string) (*models.Order, error) {
	now := time.Now()
	var updated *models.Order

	err := e.withOrderLock(id, func() error {
		return e.store.Atomic(ctx, func(tx *gorm.DB) error {
			order, err := e.store.FindOrderByID(tx, id)
			if err != nil {
				return err
			}
			if order.Estado != models.EstadoCreada {
				return coreerrors.Newf(coreerrors.InvalidState, "order %q must be CREADA to start, was %s", id, order.Estado)
			}
			running, err := e.store.FindOrdersByEstado(tx, models.EstadoEnProceso)
			if err != nil {
				return err
			}
			if len(running) > 0 {
				return coreerrors.Newf(coreerrors.InvalidState, "order %q cannot start while order %q is EN_PROCESO", id, running[0].ID)
			}
			order.HoraInicio = &now
			order.Estado = models.EstadoEnProceso
			if err := e.store.SaveOrder(tx, order); err != nil {
				return err
			}
			if err := e.counter.Activate(tx, id); err != nil {
				return err
			}
			updated = order
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	e.publishOrderEvent(eventbus.EventOrderStateChanged, updated)
	if e.refreshVisibility != nil {
		e.refreshVisibility(ctx)
	}
	return updated, nil
}

// FinalizeInput is the payload for Finalize (spec §4.3).
type FinalizeInput struct {
	BotesBuenos      int  `json:"botesBuenos" validate:"gte=0"`
	BotesMalos       int  `json:"botesMalos" validate:"gte=0"`
	TotalCajasCierre int  `json:"totalCajasCierre" validate:"gte=0"`
	Acumula          bool `json:"acumula"`
}

// Finalize requires estado ∈ {EN_PROCESO, PAUSADA}; if PAUSADA it
// auto-closes the active pause first, asserts no open pause remains,
// sets the finish fields, computes Metricas exactly once, deactivates
// the counter on a terminal FINALIZADA, and publishes
// ORDER_STATE_CHANGED plus an active-order projection refresh.
func (e *Engine) Finalize(ctx context.Context, id string, in FinalizeInput) (*models.Order, error) {
	if err := e.validator.Validate(in); err != nil {
		return nil, err
	}
	now := time.Now()
	var updated *models.Order

	err := e.withOrderLock(id, func() error {
		return e.store.Atomic(ctx, func(tx *gorm.DB) error {
			order, err := e.store.FindOrderByID(tx, id)
			if err != nil {
				return err
			}
			switch order.Estado {
			case models.EstadoEnProceso, models.EstadoPausada:
			default:
				return coreerrors.Newf(coreerrors.InvalidState, "order %q must be EN_PROCESO or PAUSADA to finalize, was %s", id, order.Estado)
			}

			if order.Estado == models.EstadoPausada {
				if _, err := pauses.CloseActive(tx, e.store, id, now); err != nil {
					return err
				}
			}
			if open, err := e.store.FindOpenPause(tx, id); err != nil {
				return err
			} else if open != nil {
				return coreerrors.Newf(coreerrors.InvalidState, "order %q still has an open pause after auto-close", id)
			}

			botesBuenos, botesMalos, totalCajasCierre := in.BotesBuenos, in.BotesMalos, in.TotalCajasCierre
			order.BotesBuenos = &botesBuenos
			order.BotesMalos = &botesMalos
			order.TotalCajasCierre = &totalCajasCierre
			order.HoraFin = &now
			order.Acumula = in.Acumula
			if in.Acumula {
				order.Estado = models.EstadoEsperaManual
			} else {
				order.Estado = models.EstadoFinalizada
			}
			if err := e.store.SaveOrder(tx, order); err != nil {
				return err
			}

			if _, err := e.metrics.CalcAndStore(tx, order, now); err != nil {
				return err
			}

			if order.Estado == models.EstadoFinalizada {
				if err := e.counter.Deactivate(tx, id); err != nil {
					return err
				}
			}

			updated = order
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	e.publishOrderEvent(eventbus.EventOrderStateChanged, updated)
	if e.refreshVisibility != nil {
		e.refreshVisibility(ctx)
	}
	return updated, nil
}

// DeleteInput is the payload for DeleteOrder (SPEC_FULL §4 supplement).
type DeleteInput struct {
	DeletedBy string
	Motivo    string
	IPAddress string
}

// DeleteOrder snapshots the order into OrderDeleteAudit, then deletes
// it and every dependent row in one transaction. An EN_PROCESO order
// cannot be deleted out from under the field I/O pipeline.
func (e *Engine) DeleteOrder(ctx context.Context, id string, in DeleteInput) error {
	return e.withOrderLock(id, func() error {
		return e.store.Atomic(ctx, func(tx *gorm.DB) error {
			order, err := e.store.FindOrderByID(tx, id)
			if err != nil {
				return err
			}
			if order.Estado == models.EstadoEnProceso {
				return coreerrors.Newf(coreerrors.InvalidState, "order %q is EN_PROCESO and cannot be deleted", id)
			}

			snapshot, err := json.Marshal(order)
			if err != nil {
				return coreerrors.Wrap(err, coreerrors.Internal, "snapshotting order for delete audit")
			}
			audit := &models.OrderDeleteAudit{
				ID:        ksuid.New().String(),
				OrderID:   order.ID,
				CodOrder:  order.CodOrder,
				Snapshot:  string(snapshot),
				DeletedBy: in.DeletedBy,
				Motivo:    in.Motivo,
				DeletedAt: time.Now(),
				IPAddress: in.IPAddress,
			}
			if err := e.store.CreateDeleteAudit(tx, audit); err != nil {
				return err
			}
			return e.store.DeleteOrderCascade(tx, id)
		})
	})
}

func (e *Engine) publishOrderEvent(eventType string, order *models.Order) {
	event := eventbus.Event{
		EventType: eventType,
		Message:   eventType,
		Data:      order,
		Timestamp: time.Now(),
	}
	e.bus.Publish(eventbus.TopicOrders, event)
	e.bus.Publish(eventbus.OrderTopic(order.ID), event)
}
