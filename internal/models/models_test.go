package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrder_CajasPrevistas(t *testing.T) {
	o := Order{Cantidad: 1000, BotesCaja: 10}
	assert.Equal(t, 100.0, o.CajasPrevistas())
}

func TestOrder_CajasPrevistas_ZeroBotesCaja(t *testing.T) {
	o := Order{Cantidad: 1000, BotesCaja: 0}
	assert.Equal(t, 0.0, o.CajasPrevistas())
}

func TestOrder_TiempoEstimado(t *testing.T) {
	o := Order{Cantidad: 1000, StdReferencia: 20}
	assert.Equal(t, 50.0, o.TiempoEstimado())
}

func TestOrder_TiempoEstimado_ZeroStdReferencia(t *testing.T) {
	o := Order{Cantidad: 1000, StdReferencia: 0}
	assert.Equal(t, 0.0, o.TiempoEstimado())
}

func TestTipoPausa_Computa(t *testing.T) {
	assert.False(t, TipoCambioTurno.Computa())
	assert.False(t, TipoFabricacionParcial.Computa())
	assert.False(t, TipoParada.Computa())
	assert.True(t, TipoParadaCalidad.Computa())
	assert.True(t, TipoAveriaPonderal.Computa())
	assert.True(t, TipoPausa("SOME_FUTURE_TIPO").Computa())
}

func TestPause_Abierta(t *testing.T) {
	p := Pause{}
	assert.True(t, p.Abierta())
}

func TestAcumula_Abierta(t *testing.T) {
	a := Acumula{}
	assert.True(t, a.Abierta())
}
