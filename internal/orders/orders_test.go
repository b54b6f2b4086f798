package orders

import (
	"context"
	"testing"

	"github.com/abdoElHodaky/cremer-line-core/internal/counter"
	coreerrors "github.com/abdoElHodaky/cremer-line-core/internal/errors"
	"github.com/abdoElHodaky/cremer-line-core/internal/eventbus"
	"github.com/abdoElHodaky/cremer-line-core/internal/metrics"
	"github.com/abdoElHodaky/cremer-line-core/internal/models"
	"github.com/abdoElHodaky/cremer-line-core/internal/monitoring"
	"github.com/abdoElHodaky/cremer-line-core/internal/store"
	"github.com/abdoElHodaky/cremer-line-core/internal/testsupport"
	"github.com/abdoElHodaky/cremer-line-core/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	st := testsupport.NewStore(t)
	bus := eventbus.New(zap.NewNop())
	mon := monitoring.New()
	calc := metrics.New(st, zap.NewNop())
	ing := counter.New(st, bus, zap.NewNop(), mon)
	return New(st, bus, calc, ing, validation.New(), zap.NewNop()), st
}

func validCreateInput(codOrder string) CreateInput {
	return CreateInput{
		CodOrder:      codOrder,
		Operario:      "juan",
		Lote:          "L1",
		Articulo:      "A1",
		Cantidad:      1000,
		BotesCaja:     10,
		StdReferencia: 20,
	}
}

func TestCreateOrder_Success(t *testing.T) {
	engine, _ := newEngine(t)
	order, err := engine.CreateOrder(context.Background(), validCreateInput("OF-1"))
	require.NoError(t, err)
	assert.Equal(t, models.EstadoCreada, order.Estado)
	assert.Equal(t, 100.0, order.CajasPrevistas())
	assert.Equal(t, 50.0, order.TiempoEstimado())
}

func TestCreateOrder_RejectsInvalidInput(t *testing.T) {
	engine, _ := newEngine(t)
	in := validCreateInput("OF-2")
	in.Cantidad = 0
	_, err := engine.CreateOrder(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, coreerrors.InvalidInput, coreerrors.KindOf(err))
}

func TestCreateOrder_RejectsDuplicateCodOrder(t *testing.T) {
	engine, _ := newEngine(t)
	_, err := engine.CreateOrder(context.Background(), validCreateInput("OF-DUP"))
	require.NoError(t, err)

	_, err = engine.CreateOrder(context.Background(), validCreateInput("OF-DUP"))
	require.Error(t, err)
	assert.Equal(t, coreerrors.AlreadyExists, coreerrors.KindOf(err))
}

func TestIniciar_RequiresCreada(t *testing.T) {
	engine, _ := newEngine(t)
	order, err := engine.CreateOrder(context.Background(), validCreateInput("OF-3"))
	require.NoError(t, err)

	started, err := engine.Iniciar(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EstadoEnProceso, started.Estado)
	require.NotNil(t, started.HoraInicio)

	_, err = engine.Iniciar(context.Background(), order.ID)
	require.Error(t, err)
	assert.Equal(t, coreerrors.InvalidState, coreerrors.KindOf(err))
}

// TestFinalize_AutoClosesActivePause replays scenario S5: finalizing a
// PAUSADA order auto-closes the open pause before computing metrics.
func TestFinalize_AutoClosesActivePause(t *testing.T) {
	engine, st := newEngine(t)
	order, err := engine.CreateOrder(context.Background(), validCreateInput("OF-4"))
	require.NoError(t, err)
	_, err = engine.Iniciar(context.Background(), order.ID)
	require.NoError(t, err)

	// Open a pause directly through the store so Finalize must close it.
	tipo := models.TipoParadaCalidad
	computa := true
	pause := &models.Pause{IDOrder: order.ID, Tipo: &tipo, Computa: &computa}
	require.NoError(t, st.Atomic(context.Background(), func(tx *gorm.DB) error {
		if err := st.CreatePause(tx, pause); err != nil {
			return err
		}
		o, err := st.FindOrderByID(tx, order.ID)
		if err != nil {
			return err
		}
		o.Estado = models.EstadoPausada
		return st.SaveOrder(tx, o)
	}))

	finalized, err := engine.Finalize(context.Background(), order.ID, FinalizeInput{BotesBuenos: 900, BotesMalos: 100})
	require.NoError(t, err)
	assert.Equal(t, models.EstadoFinalizada, finalized.Estado)

	openAfter, err := st.FindOpenPause(st.DB(), order.ID)
	require.NoError(t, err)
	assert.Nil(t, openAfter)
}

func TestFinalize_RoutesToEsperaManualWhenAcumula(t *testing.T) {
	engine, _ := newEngine(t)
	order, err := engine.CreateOrder(context.Background(), validCreateInput("OF-5"))
	require.NoError(t, err)
	_, err = engine.Iniciar(context.Background(), order.ID)
	require.NoError(t, err)

	finalized, err := engine.Finalize(context.Background(), order.ID, FinalizeInput{BotesBuenos: 10, Acumula: true})
	require.NoError(t, err)
	assert.Equal(t, models.EstadoEsperaManual, finalized.Estado)
}

func TestDeleteOrder_RejectsEnProceso(t *testing.T) {
	engine, _ := newEngine(t)
	order, err := engine.CreateOrder(context.Background(), validCreateInput("OF-6"))
	require.NoError(t, err)
	_, err = engine.Iniciar(context.Background(), order.ID)
	require.NoError(t, err)

	err = engine.DeleteOrder(context.Background(), order.ID, DeleteInput{DeletedBy: "admin"})
	require.Error(t, err)
	assert.Equal(t, coreerrors.InvalidState, coreerrors.KindOf(err))
}

func TestDeleteOrder_WritesAuditAndCascades(t *testing.T) {
	engine, st := newEngine(t)
	order, err := engine.CreateOrder(context.Background(), validCreateInput("OF-7"))
	require.NoError(t, err)

	err = engine.DeleteOrder(context.Background(), order.ID, DeleteInput{DeletedBy: "admin", Motivo: "test"})
	require.NoError(t, err)

	_, err = st.FindOrderByID(st.DB(), order.ID)
	require.Error(t, err)
	assert.Equal(t, coreerrors.NotFound, coreerrors.KindOf(err))
}
