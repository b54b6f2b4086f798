// Package models defines the gorm-mapped entities of the packaging-line
// control core (spec §3): Order, Pause, Metricas, Acumula,
// BottleCounter, OrderDeleteAudit and the ExtraData sidecar.
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EstadoOrder is the Order lifecycle state (spec §4.3).
type EstadoOrder string

const (
	EstadoCreada        EstadoOrder = "CREADA"
	EstadoEnProceso     EstadoOrder = "EN_PROCESO"
	EstadoPausada       EstadoOrder = "PAUSADA"
	EstadoFinalizada    EstadoOrder = "FINALIZADA"
	EstadoEsperaManual  EstadoOrder = "ESPERA_MANUAL"
	EstadoProcesoManual EstadoOrder = "PROCESO_MANUAL"
)

// TipoPausa is the closed set of pause classifications (spec §6).
type TipoPausa string

const (
	TipoIncidenciaMaquinaContadora   TipoPausa = "INCIDENCIA_MAQUINA_CONTADORA"
	TipoIncidenciaMaquinaPesadora    TipoPausa = "INCIDENCIA_MAQUINA_PESADORA"
	TipoIncidenciaMaquinaEtiquetadora TipoPausa = "INCIDENCIA_MAQUINA_ETIQUETADORA"
	TipoIncidenciaMaquinaRepercap    TipoPausa = "INCIDENCIA_MAQUINA_REPERCAP"
	TipoIncidenciaMaquinaTaponadora  TipoPausa = "INCIDENCIA_MAQUINA_TAPONADORA"
	TipoIncidenciaMaquinaPosicionadora TipoPausa = "INCIDENCIA_MAQUINA_POSICIONADORA"
	TipoIncidenciaMaquinaEnvasadora  TipoPausa = "INCIDENCIA_MAQUINA_ENVASADORA"
	TipoIncidenciaMaquinaOtros       TipoPausa = "INCIDENCIA_MAQUINA_OTROS"
	TipoFaltaMaterial                TipoPausa = "FALTA_MATERIAL"
	TipoMaterialDefectuoso           TipoPausa = "MATERIAL_DEFECTUOSO"
	TipoMantenimientoEnProceso       TipoPausa = "MANTENIMIENTO_EN_PROCESO"
	TipoLimpiezaEnProceso            TipoPausa = "LIMPIEZA_EN_PROCESO"
	TipoParadaCalidad                TipoPausa = "PARADA_CALIDAD"
	TipoAveriaPonderal               TipoPausa = "AVERIA_PONDERAL"
	TipoAveriaEtiqueta               TipoPausa = "AVERIA_ETIQUETA"
	TipoCambioTurno                  TipoPausa = "CAMBIO_TURNO"
	TipoFabricacionParcial           TipoPausa = "FABRICACION_PARCIAL"
	TipoParada                       TipoPausa = "PARADA"
)

// Computa reports whether a pause of this tipo counts against
// availability (spec §3/§4.4). Unknown future tipos default to true.
func (t TipoPausa) Computa() bool {
	switch t {
	case TipoCambioTurno, TipoFabricacionParcial, TipoParada:
		return false
	default:
		return true
	}
}

// Order is a unit of production work (spec §3).
type Order struct {
	ID        string      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CodOrder  string      `gorm:"type:varchar(64);uniqueIndex" json:"codOrder"`
	Operario  string      `gorm:"type:varchar(128)" json:"operario"`
	Lote      string      `gorm:"type:varchar(64)" json:"lote"`
	Articulo  string      `gorm:"type:varchar(128)" json:"articulo"`
	Descripcion string    `gorm:"type:text" json:"descripcion"`
	Estado    EstadoOrder `gorm:"type:varchar(20);index" json:"estado"`

	Cantidad      int     `json:"cantidad"`
	BotesCaja     int     `json:"botesCaja"`
	StdReferencia float64 `json:"stdReferencia"`

	HoraCreacion time.Time  `json:"horaCreacion"`
	HoraInicio   *time.Time `json:"horaInicio,omitempty"`
	HoraFin      *time.Time `json:"horaFin,omitempty"`

	BotesBuenos       *int `json:"botesBuenos,omitempty"`
	BotesMalos        *int `json:"botesMalos,omitempty"`
	TotalCajasCierre  *int `json:"totalCajasCierre,omitempty"`

	Repercap bool `json:"repercap"`
	Acumula  bool `json:"acumula"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	return nil
}

// TableName returns the table name for the Order model.
func (Order) TableName() string { return "orders" }

// CajasPrevistas is a derived field: cantidad/botesCaja (spec §3).
func (o *Order) CajasPrevistas() float64 {
	if o.BotesCaja == 0 {
		return 0
	}
	return float64(o.Cantidad) / float64(o.BotesCaja)
}

// TiempoEstimado is a derived field: cantidad/stdReferencia, minutes.
func (o *Order) TiempoEstimado() float64 {
	if o.StdReferencia == 0 {
		return 0
	}
	return float64(o.Cantidad) / o.StdReferencia
}

// ExtraData is a one-row-per-order sidecar for descriptive fields
// outside any invariant (SPEC_FULL §4).
type ExtraData struct {
	IDOrder     string `gorm:"primaryKey;type:varchar(36)" json:"idOrder"`
	FormatoBote string `gorm:"type:varchar(64)" json:"formatoBote"`
	Tipo        string `gorm:"type:varchar(64)" json:"tipo"`
	UdsBote     int    `json:"udsBote"`
}

// TableName returns the table name for the ExtraData model.
func (ExtraData) TableName() string { return "order_extra_data" }

// Pause is an interval during which an order is not producing (spec §3).
type Pause struct {
	ID          string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	IDOrder     string     `gorm:"type:varchar(36);index" json:"idOrder"`
	Tipo        *TipoPausa `gorm:"type:varchar(64)" json:"tipo,omitempty"`
	Descripcion string     `gorm:"type:text" json:"descripcion,omitempty"`
	Operario    string     `gorm:"type:varchar(128)" json:"operario,omitempty"`
	Computa     *bool      `json:"computa,omitempty"`

	HoraInicio       time.Time  `json:"horaInicio"`
	HoraFin          *time.Time `json:"horaFin,omitempty"`
	TiempoTotalPausa *float64   `json:"tiempoTotalPausa,omitempty"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

func (p *Pause) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}

// Abierta reports whether the pause has not yet been closed.
func (p *Pause) Abierta() bool { return p.HoraFin == nil }

// TableName returns the table name for the Pause model.
func (Pause) TableName() string { return "pauses" }

// Metricas is the immutable performance snapshot computed exactly once
// per order (spec §3/§4.5).
type Metricas struct {
	IDOrder string `gorm:"primaryKey;type:varchar(36)" json:"idOrder"`

	TiempoTotal    float64 `json:"tiempoTotal"`
	TiempoPausado  float64 `json:"tiempoPausado"`
	TiempoActivo   float64 `json:"tiempoActivo"`
	Disponibilidad float64 `json:"disponibilidad"`
	Rendimiento    float64 `json:"rendimiento"`
	Calidad        float64 `json:"calidad"`
	OEE            float64 `json:"oee"`
	StdReal        float64 `json:"stdReal"`
	PorCumpPedido  float64 `json:"porCumpPedido"`

	CreatedAt time.Time `json:"-"`
}

// TableName returns the table name for the Metricas model.
func (Metricas) TableName() string { return "metricas" }

// Acumula is the post-production manual phase bookkeeping (spec §3/§4.6).
type Acumula struct {
	IDOrder        string     `gorm:"primaryKey;type:varchar(36)" json:"idOrder"`
	HoraInicio     time.Time  `json:"horaInicio"`
	HoraFin        *time.Time `json:"horaFin,omitempty"`
	TiempoTotal    *float64   `json:"tiempoTotal,omitempty"`
	NumCajasManual int        `json:"numCajasManual"`
}

// Abierta reports whether the manual phase is still open.
func (a *Acumula) Abierta() bool { return a.HoraFin == nil }

// TableName returns the table name for the Acumula model.
func (Acumula) TableName() string { return "acumulas" }

// BottleCounter is the per-order falling-edge counter (spec §3/§4.8).
type BottleCounter struct {
	ID                  string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	IDOrder             string     `gorm:"type:varchar(36);uniqueIndex" json:"idOrder"`
	Quantity            int64      `json:"quantity"`
	IsActive            bool       `gorm:"index" json:"isActive"`
	CreatedAt           time.Time  `json:"createdAt"`
	LastUpdated         time.Time  `json:"lastUpdated"`
	LastBottleCountedAt *time.Time `json:"lastBottleCountedAt,omitempty"`
}

func (c *BottleCounter) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// TableName returns the table name for the BottleCounter model.
func (BottleCounter) TableName() string { return "bottle_counters" }

// OrderDeleteAudit is an append-only snapshot written before an Order
// is deleted (spec §3, SPEC_FULL §4). IDs are K-sortable (ksuid) so
// the audit trail iterates in insertion order without a secondary index.
type OrderDeleteAudit struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OrderID   string    `gorm:"type:varchar(36);index" json:"orderId"`
	CodOrder  string    `gorm:"type:varchar(64)" json:"codOrder"`
	Snapshot  string    `gorm:"type:text" json:"snapshot"`
	DeletedBy string    `gorm:"type:varchar(128)" json:"deletedBy"`
	Motivo    string    `gorm:"type:text" json:"motivo"`
	DeletedAt time.Time `json:"deletedAt"`
	IPAddress string    `gorm:"type:varchar(64)" json:"ipAddress,omitempty"`
}

// TableName returns the table name for the OrderDeleteAudit model.
func (OrderDeleteAudit) TableName() string { return "order_delete_audits" }
