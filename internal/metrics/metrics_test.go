package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/abdoElHodaky/cremer-line-core/internal/models"
	"github.com/abdoElHodaky/cremer-line-core/internal/testsupport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func intPtr(i int) *int { return &i }

// seedOrder writes an order that started at t0 and, optionally, a list
// of already-closed pauses against it.
func seedOrder(t *testing.T, tx *gorm.DB, st interface {
	CreateOrder(*gorm.DB, *models.Order) error
	CreatePause(*gorm.DB, *models.Pause) error
}, t0 time.Time) *models.Order {
	t.Helper()
	order := &models.Order{
		CodOrder:      "OF-1",
		Cantidad:      1000,
		BotesCaja:     10,
		StdReferencia: 20.0,
		Estado:        models.EstadoEnProceso,
		HoraInicio:    &t0,
	}
	require.NoError(t, st.CreateOrder(tx, order))
	return order
}

// TestCalcAndStore_S1 replays scenario S1 from the spec: a 60-minute
// order with no pauses.
func TestCalcAndStore_S1(t *testing.T) {
	st := testsupport.NewStore(t)
	calc := New(st, zap.NewNop())

	t0 := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	horaFin := t0.Add(60 * time.Minute)

	var m *models.Metricas
	err := st.Atomic(context.Background(), func(tx *gorm.DB) error {
		order := seedOrder(t, tx, st, t0)
		order.BotesBuenos = intPtr(900)
		order.BotesMalos = intPtr(100)
		order.HoraFin = &horaFin
		require.NoError(t, st.SaveOrder(tx, order))

		var err error
		m, err = calc.CalcAndStore(tx, order, horaFin)
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, 60.0, m.TiempoTotal)
	assert.Equal(t, 0.0, m.TiempoPausado)
	assert.Equal(t, 60.0, m.TiempoActivo)
	assert.Equal(t, 1.0, m.Disponibilidad)
	assert.InDelta(t, 0.8333, m.Rendimiento, 0.0001)
	assert.Equal(t, 0.9, m.Calidad)
	assert.InDelta(t, 0.75, m.OEE, 0.001)
	assert.InDelta(t, 16.6667, m.StdReal, 0.0001)
	assert.Equal(t, 0.9, m.PorCumpPedido)
}

// TestCalcAndStore_S2 replays scenario S2: a 15-minute CAMBIO_TURNO
// pause (non-computable) shrinks tiempoTotal but does not count as
// tiempoPausado.
func TestCalcAndStore_S2(t *testing.T) {
	st := testsupport.NewStore(t)
	calc := New(st, zap.NewNop())

	t0 := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	horaFin := t0.Add(60 * time.Minute)
	pauseStart := t0.Add(10 * time.Minute)
	pauseEnd := t0.Add(25 * time.Minute)

	var m *models.Metricas
	err := st.Atomic(context.Background(), func(tx *gorm.DB) error {
		order := seedOrder(t, tx, st, t0)

		tipo := models.TipoCambioTurno
		computa := false
		minutes := pauseEnd.Sub(pauseStart).Minutes()
		pause := &models.Pause{
			IDOrder:          order.ID,
			Tipo:             &tipo,
			Computa:          &computa,
			HoraInicio:       pauseStart,
			HoraFin:          &pauseEnd,
			TiempoTotalPausa: &minutes,
		}
		require.NoError(t, st.CreatePause(tx, pause))

		order.BotesBuenos = intPtr(800)
		order.BotesMalos = intPtr(0)
		order.HoraFin = &horaFin
		require.NoError(t, st.SaveOrder(tx, order))

		var err error
		m, err = calc.CalcAndStore(tx, order, horaFin)
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, 45.0, m.TiempoTotal)
	assert.Equal(t, 0.0, m.TiempoPausado)
	assert.Equal(t, 45.0, m.TiempoActivo)
	assert.Equal(t, 1.0, m.Disponibilidad)
	assert.InDelta(t, 0.8889, m.Rendimiento, 0.0001)
	assert.Equal(t, 1.0, m.Calidad)
	assert.InDelta(t, 0.8889, m.OEE, 0.0001)
}

// TestCalcAndStore_S5 replays scenario S5: a 15-minute computable
// PARADA_CALIDAD pause in a 25-minute order counts as tiempoPausado and
// leaves tiempoActivo at 10 minutes.
func TestCalcAndStore_S5(t *testing.T) {
	st := testsupport.NewStore(t)
	calc := New(st, zap.NewNop())

	t0 := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	horaFin := t0.Add(25 * time.Minute)
	pauseStart := t0.Add(10 * time.Minute)
	pauseEnd := t0.Add(25 * time.Minute)

	var m *models.Metricas
	err := st.Atomic(context.Background(), func(tx *gorm.DB) error {
		order := seedOrder(t, tx, st, t0)

		tipo := models.TipoParadaCalidad
		computa := true
		minutes := pauseEnd.Sub(pauseStart).Minutes()
		pause := &models.Pause{
			IDOrder:          order.ID,
			Tipo:             &tipo,
			Computa:          &computa,
			HoraInicio:       pauseStart,
			HoraFin:          &pauseEnd,
			TiempoTotalPausa: &minutes,
		}
		require.NoError(t, st.CreatePause(tx, pause))

		order.BotesBuenos = intPtr(50)
		order.BotesMalos = intPtr(0)
		order.HoraFin = &horaFin
		require.NoError(t, st.SaveOrder(tx, order))

		var err error
		m, err = calc.CalcAndStore(tx, order, horaFin)
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, 15.0, m.TiempoPausado)
	assert.Equal(t, 10.0, m.TiempoActivo)
}

// TestCalcAndStore_Idempotent ensures a second call returns the existing
// row unchanged rather than recomputing.
func TestCalcAndStore_Idempotent(t *testing.T) {
	st := testsupport.NewStore(t)
	calc := New(st, zap.NewNop())

	t0 := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	horaFin := t0.Add(60 * time.Minute)

	err := st.Atomic(context.Background(), func(tx *gorm.DB) error {
		order := seedOrder(t, tx, st, t0)
		order.BotesBuenos = intPtr(900)
		order.BotesMalos = intPtr(100)
		order.HoraFin = &horaFin
		require.NoError(t, st.SaveOrder(tx, order))

		first, err := calc.CalcAndStore(tx, order, horaFin)
		require.NoError(t, err)

		order.BotesBuenos = intPtr(1) // mutate after first call
		second, err := calc.CalcAndStore(tx, order, horaFin)
		require.NoError(t, err)

		assert.Equal(t, first.OEE, second.OEE)
		assert.Equal(t, first.PorCumpPedido, second.PorCumpPedido)
		return nil
	})
	require.NoError(t, err)
}

// TestRecalculate_Idempotent runs recalculate twice and expects the
// same result each time (spec §8 property 9).
func TestRecalculate_Idempotent(t *testing.T) {
	st := testsupport.NewStore(t)
	calc := New(st, zap.NewNop())

	t0 := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	horaFin := t0.Add(60 * time.Minute)

	var first, second *models.Metricas
	err := st.Atomic(context.Background(), func(tx *gorm.DB) error {
		order := seedOrder(t, tx, st, t0)
		order.BotesBuenos = intPtr(900)
		order.BotesMalos = intPtr(100)
		order.HoraFin = &horaFin
		order.Estado = models.EstadoFinalizada
		require.NoError(t, st.SaveOrder(tx, order))

		_, err := calc.CalcAndStore(tx, order, horaFin)
		require.NoError(t, err)

		first, err = calc.Recalculate(tx, order)
		require.NoError(t, err)
		second, err = calc.Recalculate(tx, order)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, first.OEE, second.OEE)
	assert.Equal(t, first.TiempoTotal, second.TiempoTotal)
}
