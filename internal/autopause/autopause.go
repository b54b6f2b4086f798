// Package autopause is the Auto-Pause Detector (C9): per-pin debounced
// automatic pause open/close with mutual exclusion, cooldown, and
// reconciliation against manual operator actions (spec §4.9).
//
// Timer callbacks run on a panjf2000/ants worker pool (spec §5: "timer
// callbacks run on a worker pool of size ≥ 2"), grounded on the
// teacher's internal/architecture/fx/workerpool/worker_pool.go.
package autopause

import (
	"context"
	"sync"
	"time"

	coreerrors "github.com/abdoElHodaky/cremer-line-core/internal/errors"
	"github.com/abdoElHodaky/cremer-line-core/internal/gpio"
	"github.com/abdoElHodaky/cremer-line-core/internal/models"
	"github.com/abdoElHodaky/cremer-line-core/internal/monitoring"
	"github.com/abdoElHodaky/cremer-line-core/internal/pauses"
	"github.com/abdoElHodaky/cremer-line-core/internal/store"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Signal identifies one of the two watched pins.
type Signal int

const (
	SignalPonderal Signal = iota
	SignalEtiqueta
)

func (s Signal) tipo() models.TipoPausa {
	if s == SignalPonderal {
		return models.TipoAveriaPonderal
	}
	return models.TipoAveriaEtiqueta
}

func (s Signal) String() string {
	if s == SignalPonderal {
		return "ponderal"
	}
	return "etiqueta"
}

// Config carries the fixed, documented timing parameters (spec §4.9).
type Config struct {
	PonderalPin          int
	EtiquetaPin          int
	OpenDebounce         time.Duration
	CloseDebounce        time.Duration
	Cooldown             time.Duration
	ReconciliationPeriod time.Duration
	WorkerPoolSize       int
}

// pinState tracks the per-pin timers for one watched signal.
type pinState struct {
	pin       int
	signal    Signal
	openTimer *time.Timer
	closeTimer *time.Timer
}

// Detector implements the Auto-Pause Detector (C9).
type Detector struct {
	cfg     Config
	link    *gpio.Link
	pauses  *pauses.Engine
	store   *store.Store
	logger  *zap.Logger
	pool    *ants.Pool
	metrics *monitoring.Collector

	mu               sync.Mutex
	pins             map[Signal]*pinState
	outstandingID    string
	outstandingOrder string
	outstandingPin   Signal
	hasOutstanding   bool
	cooldownUntil    time.Time
	cooldownTimer    *time.Timer

	cancel context.CancelFunc
}

// New constructs a Detector. Call Run to register pin handlers and
// start the reconciliation watchdog.
func New(cfg Config, link *gpio.Link, pauseEngine *pauses.Engine, st *store.Store, logger *zap.Logger, metrics *monitoring.Collector) (*Detector, error) {
	size := cfg.WorkerPoolSize
	if size < 2 {
		size = 2
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.Internal, "creating auto-pause worker pool")
	}

	d := &Detector{
		cfg:     cfg,
		link:    link,
		pauses:  pauseEngine,
		store:   st,
		logger:  logger,
		pool:    pool,
		metrics: metrics,
		pins: map[Signal]*pinState{
			SignalPonderal: {pin: cfg.PonderalPin, signal: SignalPonderal},
			SignalEtiqueta: {pin: cfg.EtiquetaPin, signal: SignalEtiqueta},
		},
	}
	return d, nil
}

// Run wires the pin-change handler and starts the reconciliation
// watchdog until ctx is cancelled.
func (d *Detector) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.link.OnChange(func(pin, previous, current int) {
		sig, ok := d.signalForPin(pin)
		if !ok {
			return
		}
		d.submit(func() { d.onTransition(runCtx, sig, previous, current) })
	})

	go d.reconciliationLoop(runCtx)
}

// Close cancels the reconciliation watchdog, all outstanding timers,
// and releases the worker pool. Idempotent.
func (d *Detector) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	d.mu.Lock()
	for _, ps := range d.pins {
		stopTimer(ps.openTimer)
		stopTimer(ps.closeTimer)
	}
	stopTimer(d.cooldownTimer)
	d.mu.Unlock()
	d.pool.Release()
}

func (d *Detector) signalForPin(pin int) (Signal, bool) {
	if pin == d.cfg.PonderalPin {
		return SignalPonderal, true
	}
	if pin == d.cfg.EtiquetaPin {
		return SignalEtiqueta, true
	}
	return 0, false
}

func (d *Detector) submit(fn func()) {
	if err := d.pool.Submit(fn); err != nil {
		d.logger.Error("auto-pause worker pool rejected task", zap.Error(err))
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

func (d *Detector) onTransition(ctx context.Context, sig Signal, previous, current int) {
	d.mu.Lock()
	ps := d.pins[sig]

	if previous == 1 && current == 0 {
		stopTimer(ps.closeTimer)
		ps.closeTimer = nil

		anyScheduled := false
		for _, other := range d.pins {
			if other.openTimer != nil {
				anyScheduled = true
				break
			}
		}
		if !anyScheduled && d.canAutoOpen() {
			ps.openTimer = time.AfterFunc(d.cfg.OpenDebounce, func() {
				d.submit(func() { d.onOpenFire(ctx, sig) })
			})
		}
		d.mu.Unlock()
		return
	}

	if previous == 0 && current == 1 {
		stopTimer(ps.openTimer)
		ps.openTimer = nil

		if d.hasOutstanding && d.outstandingPin == sig {
			ps.closeTimer = time.AfterFunc(d.cfg.CloseDebounce, func() {
				d.submit(func() { d.onCloseFire(ctx, sig) })
			})
		}
		d.mu.Unlock()
		return
	}

	d.mu.Unlock()
}

// canAutoOpen reports whether the global start conditions hold: no
// auto-pause outstanding, no cooldown active (spec §4.9). Caller must
// hold d.mu.
func (d *Detector) canAutoOpen() bool {
	if d.hasOutstanding {
		return false
	}
	if time.Now().Before(d.cooldownUntil) {
		return false
	}
	return true
}

func (d *Detector) currentPinValue(sig Signal) (int, bool) {
	return d.link.PinValue(d.pins[sig].pin)
}

func (d *Detector) onOpenFire(ctx context.Context, sig Signal) {
	d.mu.Lock()
	ps := d.pins[sig]
	ps.openTimer = nil

	value, known := d.currentPinValue(sig)
	if !known || value != 0 || !d.canAutoOpen() {
		d.mu.Unlock()
		return
	}
	if !d.enProcesoNow() {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	orderID := d.activeOrderID(ctx)
	tipo := sig.tipo()
	pause, err := d.pauses.OpenPause(ctx, orderID, pauses.OpenInput{
		Tipo:     &tipo,
		Operario: "auto-pause-detector",
	})
	if err != nil {
		d.logger.Error("auto-pause open failed", zap.String("signal", sig.String()), zap.Error(err))
		return
	}

	d.mu.Lock()
	d.hasOutstanding = true
	d.outstandingID = pause.ID
	d.outstandingOrder = orderID
	d.outstandingPin = sig
	d.mu.Unlock()
	d.metrics.RecordAutoPauseOpen(sig.String())
}

func (d *Detector) onCloseFire(ctx context.Context, sig Signal) {
	d.mu.Lock()
	ps := d.pins[sig]
	ps.closeTimer = nil

	value, known := d.currentPinValue(sig)
	if !d.hasOutstanding || d.outstandingPin != sig {
		d.mu.Unlock()
		return
	}
	if !known || value != 1 {
		d.mu.Unlock()
		return
	}
	orderID := d.outstandingOrder
	d.mu.Unlock()

	tipo := sig.tipo()
	if _, err := d.pauses.ClosePause(ctx, orderID, pauses.CloseInput{Tipo: &tipo, Operario: "auto-pause-detector"}); err != nil {
		d.logger.Error("auto-pause close failed", zap.String("signal", sig.String()), zap.Error(err))
	} else {
		d.metrics.RecordAutoPauseClose(sig.String())
	}
	d.enterCooldown()
}

func (d *Detector) enterCooldown() {
	d.mu.Lock()
	d.hasOutstanding = false
	d.outstandingID = ""
	d.outstandingOrder = ""
	d.cooldownUntil = time.Now().Add(d.cfg.Cooldown)
	stopTimer(d.cooldownTimer)
	d.cooldownTimer = time.AfterFunc(d.cfg.Cooldown, func() {
		d.submit(d.onCooldownExpiry)
	})
	d.mu.Unlock()
}

// onCooldownExpiry re-evaluates both pins; any pin currently at 0
// re-arms an open-timer, first match wins (spec §4.9).
func (d *Detector) onCooldownExpiry() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, sig := range []Signal{SignalPonderal, SignalEtiqueta} {
		if !d.canAutoOpen() {
			return
		}
		value, known := d.currentPinValue(sig)
		if known && value == 0 {
			ps := d.pins[sig]
			s := sig
			ps.openTimer = time.AfterFunc(d.cfg.OpenDebounce, func() {
				d.submit(func() { d.onOpenFire(context.Background(), s) })
			})
			return
		}
	}
}

// reconciliationLoop polls the Store for the outstanding auto-pause;
// if it was closed by someone else, the detector clears its state and
// enters cooldown (spec §4.9).
func (d *Detector) reconciliationLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.ReconciliationPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.reconcileOnce(ctx)
		}
	}
}

func (d *Detector) reconcileOnce(ctx context.Context) {
	d.mu.Lock()
	if !d.hasOutstanding {
		d.mu.Unlock()
		return
	}
	id := d.outstandingID
	sig := d.outstandingPin
	d.mu.Unlock()

	closed, err := d.isPauseClosed(ctx, id)
	if err != nil {
		d.logger.Error("auto-pause reconciliation query failed", zap.Error(err))
		return
	}
	if !closed {
		return
	}

	d.mu.Lock()
	ps := d.pins[sig]
	stopTimer(ps.closeTimer)
	ps.closeTimer = nil
	d.mu.Unlock()
	d.enterCooldown()
}

func (d *Detector) isPauseClosed(ctx context.Context, pauseID string) (bool, error) {
	var closed bool
	err := d.store.Atomic(ctx, func(tx *gorm.DB) error {
		var pause models.Pause
		if err := tx.Where("id = ?", pauseID).First(&pause).Error; err != nil {
			return err
		}
		closed = pause.HoraFin != nil
		return nil
	})
	if err != nil {
		return false, err
	}
	return closed, nil
}

// enProcesoNow and activeOrderID read the Store directly; the detector
// does not hold engine-level locks (spec §5: auto-pause sits above the
// Pause Engine, not inside its transaction).
func (d *Detector) enProcesoNow() bool {
	id := d.activeOrderID(context.Background())
	return id != ""
}

func (d *Detector) activeOrderID(ctx context.Context) string {
	var id string
	_ = d.store.Atomic(ctx, func(tx *gorm.DB) error {
		orders, err := d.store.FindOrdersByEstado(tx, models.EstadoEnProceso)
		if err != nil {
			return err
		}
		if len(orders) > 0 {
			id = orders[0].ID
		}
		return nil
	})
	return id
}
