package counter

import (
	"context"
	"testing"
	"time"

	"github.com/abdoElHodaky/cremer-line-core/internal/eventbus"
	"github.com/abdoElHodaky/cremer-line-core/internal/models"
	"github.com/abdoElHodaky/cremer-line-core/internal/monitoring"
	"github.com/abdoElHodaky/cremer-line-core/internal/store"
	"github.com/abdoElHodaky/cremer-line-core/internal/testsupport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newIngest(t *testing.T) (*Ingest, *store.Store) {
	t.Helper()
	st := testsupport.NewStore(t)
	bus := eventbus.New(zap.NewNop())
	return New(st, bus, zap.NewNop(), monitoring.New()), st
}

func createEnProcesoOrder(t *testing.T, st *store.Store, codOrder string) string {
	t.Helper()
	var id string
	err := st.Atomic(context.Background(), func(tx *gorm.DB) error {
		order := &models.Order{
			CodOrder: codOrder, Cantidad: 100, BotesCaja: 10, StdReferencia: 5,
			Estado: models.EstadoEnProceso,
		}
		if err := st.CreateOrder(tx, order); err != nil {
			return err
		}
		id = order.ID
		return nil
	})
	require.NoError(t, err)
	return id
}

// TestOnFallingEdge_AttributesToMostRecentlyStarted replays scenario S3:
// two EN_PROCESO orders, the falling edge counts against the one
// started most recently.
func TestOnFallingEdge_AttributesToMostRecentlyStarted(t *testing.T) {
	ing, st := newIngest(t)

	idA := createEnProcesoOrder(t, st, "OF-A")
	idB := createEnProcesoOrder(t, st, "OF-B")

	err := st.Atomic(context.Background(), func(tx *gorm.DB) error {
		earlier, err := st.FindOrderByID(tx, idA)
		if err != nil {
			return err
		}
		later, err := st.FindOrderByID(tx, idB)
		if err != nil {
			return err
		}
		t0 := time.Now()
		t1 := t0.Add(time.Minute)
		earlier.HoraInicio = &t0
		later.HoraInicio = &t1
		if err := st.SaveOrder(tx, earlier); err != nil {
			return err
		}
		return st.SaveOrder(tx, later)
	})
	require.NoError(t, err)

	ing.OnFallingEdge(context.Background())

	counterB, err := st.FindBottleCounterByOrder(st.DB(), idB)
	require.NoError(t, err)
	require.NotNil(t, counterB)
	assert.EqualValues(t, 1, counterB.Quantity)

	counterA, err := st.FindBottleCounterByOrder(st.DB(), idA)
	require.NoError(t, err)
	assert.Nil(t, counterA)
}

// TestOnFallingEdge_DropsPulseWithNoActiveOrder exercises the
// no-EN_PROCESO-order case: the pulse is dropped without error.
func TestOnFallingEdge_DropsPulseWithNoActiveOrder(t *testing.T) {
	ing, _ := newIngest(t)
	ing.OnFallingEdge(context.Background())
}

// TestActivate_DeactivatesOthers enforces the at-most-one-active-counter
// invariant (spec §8 property 6).
func TestActivate_DeactivatesOthers(t *testing.T) {
	ing, st := newIngest(t)
	idA := createEnProcesoOrder(t, st, "OF-C")
	idB := createEnProcesoOrder(t, st, "OF-D")

	err := st.Atomic(context.Background(), func(tx *gorm.DB) error {
		return ing.Activate(tx, idA)
	})
	require.NoError(t, err)
	err = st.Atomic(context.Background(), func(tx *gorm.DB) error {
		return ing.Activate(tx, idB)
	})
	require.NoError(t, err)

	cA, err := st.FindBottleCounterByOrder(st.DB(), idA)
	require.NoError(t, err)
	require.NotNil(t, cA)
	assert.False(t, cA.IsActive)

	cB, err := st.FindBottleCounterByOrder(st.DB(), idB)
	require.NoError(t, err)
	require.NotNil(t, cB)
	assert.True(t, cB.IsActive)
}

func TestReset_ZeroesQuantity(t *testing.T) {
	ing, st := newIngest(t)
	idA := createEnProcesoOrder(t, st, "OF-E")
	ing.OnFallingEdge(context.Background())

	require.NoError(t, ing.Reset(context.Background(), idA))

	c, err := st.FindBottleCounterByOrder(st.DB(), idA)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.EqualValues(t, 0, c.Quantity)
	assert.Nil(t, c.LastBottleCountedAt)
}

func TestReset_NotFoundWhenNoCounter(t *testing.T) {
	ing, st := newIngest(t)
	idA := createEnProcesoOrder(t, st, "OF-F")
	err := ing.Reset(context.Background(), idA)
	require.Error(t, err)
}
