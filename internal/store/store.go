// Package store is the Store component (C1): transactional persistence
// of Orders, Pauses, Metricas, Acumula, BottleCounters and
// OrderDeleteAudit. It owns durability; every other component reads and
// writes exclusively through it (spec §3/§4.1).
//
// Grounded on the teacher's internal/db/repositories/order_repository.go
// (gorm + zap repository shape) and its UpdatePosition transaction
// idiom, generalized to gorm's Transaction helper so every write path
// shares one transaction boundary regardless of whether the caller is
// an API handler or the GPIO-driven counter-ingest path (spec §9: "the
// counter-ingest path in the source had to sidestep self-invocation").
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	coreerrors "github.com/abdoElHodaky/cremer-line-core/internal/errors"
	"github.com/abdoElHodaky/cremer-line-core/internal/models"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Store is the sole owner of durability for the control core.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open connects to Postgres and runs AutoMigrate for every entity the
// core owns.
func Open(dsn string, logger *zap.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.AutoMigrate(
		&models.Order{},
		&models.ExtraData{},
		&models.Pause{},
		&models.Metricas{},
		&models.Acumula{},
		&models.BottleCounter{},
		&models.OrderDeleteAudit{},
	); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// New wraps an already-open gorm.DB (used by tests with an in-memory
// or pre-migrated database).
func New(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// DB returns the underlying handle for callers (migrations, tests) that
// need it outside the Atomic boundary.
func (s *Store) DB() *gorm.DB { return s.db }

// Atomic runs fn inside a single database transaction. Every write path
// used by the engines calls Atomic exactly once per operation; no
// engine opens nested or cross-component transactions (spec §4.1).
// Any error aborts and rolls back the transaction; the returned error
// wraps unexpected gorm errors as Internal CoreErrors while letting
// already-classified CoreErrors pass through unchanged.
func (s *Store) Atomic(ctx context.Context, fn func(tx *gorm.DB) error) error {
	err := s.db.WithContext(ctx).Transaction(fn)
	if err == nil {
		return nil
	}
	var ce *coreerrors.CoreError
	if coreerrors.As(err, &ce) {
		return ce
	}
	return coreerrors.Wrap(err, coreerrors.Internal, "storage operation failed")
}

// translateNotFound converts gorm.ErrRecordNotFound into a NotFound
// CoreError with the given message, leaving other errors as Internal.
func translateNotFound(err error, message string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return coreerrors.New(coreerrors.NotFound, message)
	}
	return coreerrors.Wrap(err, coreerrors.Internal, message)
}

// --- Order ---

func (s *Store) CreateOrder(tx *gorm.DB, order *models.Order) error {
	if err := tx.Create(order).Error; err != nil {
		if isUniqueViolation(err) {
			return coreerrors.Newf(coreerrors.AlreadyExists, "order with codOrder %q already exists", order.CodOrder).WithCause(err)
		}
		return coreerrors.Wrap(err, coreerrors.Internal, "creating order")
	}
	return nil
}

func (s *Store) CreateExtraData(tx *gorm.DB, data *models.ExtraData) error {
	if err := tx.Create(data).Error; err != nil {
		return coreerrors.Wrap(err, coreerrors.Internal, "creating order extra data")
	}
	return nil
}

// FindOrderByID loads an order for update within tx, re-reading inside
// the write transaction per spec §4.1 ("no optimistic-without-revalidation").
func (s *Store) FindOrderByID(tx *gorm.DB, id string) (*models.Order, error) {
	var order models.Order
	err := tx.Where("id = ?", id).First(&order).Error
	if err != nil {
		return nil, translateNotFound(err, fmt.Sprintf("order %q not found", id))
	}
	return &order, nil
}

func (s *Store) FindOrderByCodOrder(tx *gorm.DB, codOrder string) (*models.Order, error) {
	var order models.Order
	err := tx.Where("cod_order = ?", codOrder).First(&order).Error
	if err != nil {
		return nil, translateNotFound(err, fmt.Sprintf("order %q not found", codOrder))
	}
	return &order, nil
}

func (s *Store) SaveOrder(tx *gorm.DB, order *models.Order) error {
	if err := tx.Save(order).Error; err != nil {
		return coreerrors.Wrap(err, coreerrors.Internal, "saving order")
	}
	return nil
}

// FindOrdersByEstado returns every order currently in one of the given
// states (used to find the single EN_PROCESO order, spec §3).
func (s *Store) FindOrdersByEstado(tx *gorm.DB, estados ...models.EstadoOrder) ([]models.Order, error) {
	var orders []models.Order
	if err := tx.Where("estado IN ?", estados).Order("hora_inicio DESC").Find(&orders).Error; err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.Internal, "listing orders by estado")
	}
	return orders, nil
}

func (s *Store) DeleteOrderCascade(tx *gorm.DB, id string) error {
	if err := tx.Where("id_order = ?", id).Delete(&models.Pause{}).Error; err != nil {
		return coreerrors.Wrap(err, coreerrors.Internal, "deleting pauses")
	}
	if err := tx.Where("id_order = ?", id).Delete(&models.Metricas{}).Error; err != nil {
		return coreerrors.Wrap(err, coreerrors.Internal, "deleting metricas")
	}
	if err := tx.Where("id_order = ?", id).Delete(&models.Acumula{}).Error; err != nil {
		return coreerrors.Wrap(err, coreerrors.Internal, "deleting acumula")
	}
	if err := tx.Where("id_order = ?", id).Delete(&models.BottleCounter{}).Error; err != nil {
		return coreerrors.Wrap(err, coreerrors.Internal, "deleting bottle counter")
	}
	if err := tx.Where("id_order = ?", id).Delete(&models.ExtraData{}).Error; err != nil {
		return coreerrors.Wrap(err, coreerrors.Internal, "deleting extra data")
	}
	if err := tx.Where("id = ?", id).Delete(&models.Order{}).Error; err != nil {
		return coreerrors.Wrap(err, coreerrors.Internal, "deleting order")
	}
	return nil
}

func (s *Store) CreateDeleteAudit(tx *gorm.DB, audit *models.OrderDeleteAudit) error {
	if err := tx.Create(audit).Error; err != nil {
		return coreerrors.Wrap(err, coreerrors.Internal, "creating order delete audit")
	}
	return nil
}

// --- Pause ---

func (s *Store) CreatePause(tx *gorm.DB, pause *models.Pause) error {
	if err := tx.Create(pause).Error; err != nil {
		return coreerrors.Wrap(err, coreerrors.Internal, "creating pause")
	}
	return nil
}

func (s *Store) SavePause(tx *gorm.DB, pause *models.Pause) error {
	if err := tx.Save(pause).Error; err != nil {
		return coreerrors.Wrap(err, coreerrors.Internal, "saving pause")
	}
	return nil
}

// FindOpenPause returns the pause with horaFin = NULL for idOrder, if
// any. At most one such row may exist per order (spec §3 invariant).
func (s *Store) FindOpenPause(tx *gorm.DB, idOrder string) (*models.Pause, error) {
	var pause models.Pause
	err := tx.Where("id_order = ? AND hora_fin IS NULL", idOrder).First(&pause).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, coreerrors.Wrap(err, coreerrors.Internal, "finding open pause")
	}
	return &pause, nil
}

// FindClosedPauses returns every closed pause for idOrder, used by the
// Metric Calculator to sum tiempoTotalPausa partitioned by computa.
func (s *Store) FindClosedPauses(tx *gorm.DB, idOrder string) ([]models.Pause, error) {
	var pauses []models.Pause
	if err := tx.Where("id_order = ? AND hora_fin IS NOT NULL", idOrder).Find(&pauses).Error; err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.Internal, "listing closed pauses")
	}
	return pauses, nil
}

// --- Metricas ---

func (s *Store) FindMetricas(tx *gorm.DB, idOrder string) (*models.Metricas, error) {
	var m models.Metricas
	err := tx.Where("id_order = ?", idOrder).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, coreerrors.Wrap(err, coreerrors.Internal, "finding metricas")
	}
	return &m, nil
}

func (s *Store) CreateMetricas(tx *gorm.DB, m *models.Metricas) error {
	if err := tx.Create(m).Error; err != nil {
		return coreerrors.Wrap(err, coreerrors.Internal, "creating metricas")
	}
	return nil
}

func (s *Store) DeleteMetricas(tx *gorm.DB, idOrder string) error {
	if err := tx.Where("id_order = ?", idOrder).Delete(&models.Metricas{}).Error; err != nil {
		return coreerrors.Wrap(err, coreerrors.Internal, "deleting metricas")
	}
	return nil
}

// --- Acumula ---

func (s *Store) FindAcumula(tx *gorm.DB, idOrder string) (*models.Acumula, error) {
	var a models.Acumula
	err := tx.Where("id_order = ?", idOrder).First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, coreerrors.Wrap(err, coreerrors.Internal, "finding acumula")
	}
	return &a, nil
}

func (s *Store) CreateAcumula(tx *gorm.DB, a *models.Acumula) error {
	if err := tx.Create(a).Error; err != nil {
		return coreerrors.Wrap(err, coreerrors.Internal, "creating acumula")
	}
	return nil
}

func (s *Store) SaveAcumula(tx *gorm.DB, a *models.Acumula) error {
	if err := tx.Save(a).Error; err != nil {
		return coreerrors.Wrap(err, coreerrors.Internal, "saving acumula")
	}
	return nil
}

// --- BottleCounter ---

func (s *Store) FindBottleCounterByOrder(tx *gorm.DB, idOrder string) (*models.BottleCounter, error) {
	var c models.BottleCounter
	err := tx.Where("id_order = ?", idOrder).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, coreerrors.Wrap(err, coreerrors.Internal, "finding bottle counter")
	}
	return &c, nil
}

func (s *Store) CreateBottleCounter(tx *gorm.DB, c *models.BottleCounter) error {
	if err := tx.Create(c).Error; err != nil {
		return coreerrors.Wrap(err, coreerrors.Internal, "creating bottle counter")
	}
	return nil
}

func (s *Store) SaveBottleCounter(tx *gorm.DB, c *models.BottleCounter) error {
	if err := tx.Save(c).Error; err != nil {
		return coreerrors.Wrap(err, coreerrors.Internal, "saving bottle counter")
	}
	return nil
}

// DeactivateAllBottleCounters clears isActive on every counter (used by
// Counter Ingest's activate() before activating a single order's
// counter, spec §4.8 invariant "at most one counter active").
func (s *Store) DeactivateAllBottleCounters(tx *gorm.DB) error {
	if err := tx.Model(&models.BottleCounter{}).Where("is_active = ?", true).Update("is_active", false).Error; err != nil {
		return coreerrors.Wrap(err, coreerrors.Internal, "deactivating bottle counters")
	}
	return nil
}

// isUniqueViolation reports whether err is a postgres unique_violation
// (SQLSTATE 23505) or a SQLite "UNIQUE constraint failed" error. gorm
// surfaces both through the driver error's string form, so a substring
// check is the portable option without importing driver error types.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "23505") || strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint")
}
