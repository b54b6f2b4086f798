// Package metrics is the Metric Calculator (C5): computes and persists
// the OEE-family figures for a finalized order (spec §4.5). It is
// invoked exactly once per order, from inside the Order Engine's
// finalize transaction, and never recomputes unless explicitly asked
// to via Recalculate.
package metrics

import (
	"math"
	"time"

	coreerrors "github.com/abdoElHodaky/cremer-line-core/internal/errors"
	"github.com/abdoElHodaky/cremer-line-core/internal/models"
	"github.com/abdoElHodaky/cremer-line-core/internal/store"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Calculator computes and stores Metricas rows.
type Calculator struct {
	store  *store.Store
	logger *zap.Logger
}

func New(st *store.Store, logger *zap.Logger) *Calculator {
	return &Calculator{store: st, logger: logger}
}

// Snapshot is the formula output (spec §4.5), independent of whether it
// is persisted.
type Snapshot struct {
	TiempoTotal    float64
	TiempoPausado  float64
	TiempoActivo   float64
	Disponibilidad float64
	Rendimiento    float64
	Calidad        float64
	OEE            float64
	StdReal        float64
	PorCumpPedido  float64
}

func intOrZero(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// compute runs the spec §4.5 formulas for order as of horaFin, given the
// pause totals already summed by computability.
func compute(order *models.Order, horaFin time.Time, tiempoNoComputable, tiempoPausado float64) Snapshot {
	horaInicio := order.HoraInicio
	var tiempoBruto float64
	if horaInicio != nil {
		tiempoBruto = horaFin.Sub(*horaInicio).Minutes()
	}
	tiempoTotal := tiempoBruto - tiempoNoComputable
	tiempoActivo := math.Max(tiempoTotal-tiempoPausado, 1.0)

	var disponibilidad float64
	if tiempoTotal > 0 {
		disponibilidad = tiempoActivo / tiempoTotal
	}

	totalProducido := float64(intOrZero(order.BotesBuenos) + intOrZero(order.BotesMalos))
	produccionEsperada := tiempoActivo * order.StdReferencia

	var rendimiento float64
	if produccionEsperada > 0 {
		rendimiento = totalProducido / produccionEsperada
	}

	var calidad float64
	if totalProducido > 0 {
		calidad = float64(intOrZero(order.BotesBuenos)) / totalProducido
	}

	oee := disponibilidad * rendimiento * calidad

	var stdReal float64
	if tiempoActivo > 0 {
		stdReal = totalProducido / tiempoActivo
	}

	cantidad := order.Cantidad
	if cantidad < 1 {
		cantidad = 1
	}
	porCumpPedido := float64(intOrZero(order.BotesBuenos)) / float64(cantidad)

	return Snapshot{
		TiempoTotal:    tiempoTotal,
		TiempoPausado:  tiempoPausado,
		TiempoActivo:   tiempoActivo,
		Disponibilidad: disponibilidad,
		Rendimiento:    rendimiento,
		Calidad:        calidad,
		OEE:            oee,
		StdReal:        stdReal,
		PorCumpPedido:  porCumpPedido,
	}
}

// pauseTotals sums tiempoTotalPausa over closed pauses for idOrder,
// partitioned by computability (spec §4.5).
func pauseTotals(tx *gorm.DB, st *store.Store, idOrder string) (noComputable, computable float64, err error) {
	pauses, err := st.FindClosedPauses(tx, idOrder)
	if err != nil {
		return 0, 0, err
	}
	for _, p := range pauses {
		if p.TiempoTotalPausa == nil {
			continue
		}
		computa := true
		if p.Computa != nil {
			computa = *p.Computa
		}
		if computa {
			computable += *p.TiempoTotalPausa
		} else {
			noComputable += *p.TiempoTotalPausa
		}
	}
	return noComputable, computable, nil
}

// CalcAndStore computes and persists Metricas for order, idempotently:
// if a row already exists it is returned unchanged (spec §4.5). Must
// be called from inside the caller's Store transaction (tx).
func (c *Calculator) CalcAndStore(tx *gorm.DB, order *models.Order, horaFin time.Time) (*models.Metricas, error) {
	existing, err := c.store.FindMetricas(tx, order.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	tiempoNoComputable, tiempoPausado, err := pauseTotals(tx, c.store, order.ID)
	if err != nil {
		return nil, err
	}

	snap := compute(order, horaFin, tiempoNoComputable, tiempoPausado)
	m := &models.Metricas{
		IDOrder:        order.ID,
		TiempoTotal:    snap.TiempoTotal,
		TiempoPausado:  snap.TiempoPausado,
		TiempoActivo:   snap.TiempoActivo,
		Disponibilidad: snap.Disponibilidad,
		Rendimiento:    snap.Rendimiento,
		Calidad:        snap.Calidad,
		OEE:            snap.OEE,
		StdReal:        snap.StdReal,
		PorCumpPedido:  snap.PorCumpPedido,
		CreatedAt:      horaFin,
	}
	if err := c.store.CreateMetricas(tx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Recalculate deletes and recomputes Metricas for an order already in a
// terminal estado (spec §4.5's explicit recalcularMetricas). The
// deletion is audit-logged before it happens since it destroys the
// original one-shot computation (SPEC_FULL §4).
func (c *Calculator) Recalculate(tx *gorm.DB, order *models.Order) (*models.Metricas, error) {
	switch order.Estado {
	case models.EstadoFinalizada, models.EstadoEsperaManual, models.EstadoProcesoManual:
	default:
		return nil, coreerrors.Newf(coreerrors.InvalidState,
			"order %q must be FINALIZADA, ESPERA_MANUAL or PROCESO_MANUAL to recalculate metrics, was %s", order.ID, order.Estado)
	}
	if order.HoraFin == nil {
		return nil, coreerrors.Newf(coreerrors.InvalidState, "order %q has no horaFin to recalculate metrics against", order.ID)
	}

	prior, err := c.store.FindMetricas(tx, order.ID)
	if err != nil {
		return nil, err
	}
	c.logger.Info("recalculating metrics, discarding existing snapshot",
		zap.String("order_id", order.ID), zap.String("cod_order", order.CodOrder), zap.Any("prior", prior))

	if err := c.store.DeleteMetricas(tx, order.ID); err != nil {
		return nil, err
	}

	tiempoNoComputable, tiempoPausado, err := pauseTotals(tx, c.store, order.ID)
	if err != nil {
		return nil, err
	}
	snap := compute(order, *order.HoraFin, tiempoNoComputable, tiempoPausado)
	m := &models.Metricas{
		IDOrder:        order.ID,
		TiempoTotal:    snap.TiempoTotal,
		TiempoPausado:  snap.TiempoPausado,
		TiempoActivo:   snap.TiempoActivo,
		Disponibilidad: snap.Disponibilidad,
		Rendimiento:    snap.Rendimiento,
		Calidad:        snap.Calidad,
		OEE:            snap.OEE,
		StdReal:        snap.StdReal,
		PorCumpPedido:  snap.PorCumpPedido,
		CreatedAt:      time.Now(),
	}
	if err := c.store.CreateMetricas(tx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Simulate returns a non-persisted Snapshot for a still-running order,
// using horaFin = now (spec §4.5's "simulated variant" for live display).
func (c *Calculator) Simulate(tx *gorm.DB, order *models.Order, now time.Time) (Snapshot, error) {
	tiempoNoComputable, tiempoPausado, err := pauseTotals(tx, c.store, order.ID)
	if err != nil {
		return Snapshot{}, err
	}
	return compute(order, now, tiempoNoComputable, tiempoPausado), nil
}
