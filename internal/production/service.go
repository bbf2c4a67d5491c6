// Package production owns the production-order state machine and the batch
// recorder that turns completion-time grading breakdowns into roll inventory.
package production

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/loomworks/millgo/internal/models"
	"github.com/loomworks/millgo/internal/stockledger"
)

// maxConflictRetries bounds the internal retries on ErrConcurrencyConflict
// before the conflict is surfaced to the caller.
const maxConflictRetries = 2

// Service drives production orders through their lifecycle. Every public
// operation runs as a single database transaction; partial application is
// never observable.
type Service struct {
	db     *gorm.DB
	ledger *stockledger.Ledger
	log    *zap.Logger
}

// NewService creates a production service.
func NewService(db *gorm.DB, ledger *stockledger.Ledger, log *zap.Logger) *Service {
	return &Service{db: db, ledger: ledger, log: log}
}

// lockOrder loads an order under a row lock so concurrent transitions of the
// same order serialize at the store.
func lockOrder(tx *gorm.DB, orderID uint) (*models.ProductionOrder, error) {
	var order models.ProductionOrder
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, orderID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("production order %d not found: %w", orderID, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load production order %d: %w", orderID, err)
	}
	return &order, nil
}

// saveOrder persists the order with an optimistic version bump. A stale
// version means another transaction got there first.
func saveOrder(tx *gorm.DB, order *models.ProductionOrder) error {
	current := order.LockVersion
	order.LockVersion = current + 1
	res := tx.Model(&models.ProductionOrder{}).
		Where("id = ? AND lock_version = ?", order.ID, current).
		Updates(map[string]interface{}{
			"status":           order.Status,
			"produced_qty":     order.ProducedQty,
			"held_from_status": order.HeldFromStatus,
			"started_at":       order.StartedAt,
			"completed_at":     order.CompletedAt,
			"lock_version":     order.LockVersion,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update production order %d: %w", order.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrConcurrencyConflict
	}
	return nil
}

// withConflictRetry re-runs op on ErrConcurrencyConflict, covering both
// optimistic-lock losses and store-level aborts folded in by
// AsConcurrencyConflict. Retrying is safe: the transition guards turn a
// redundant retry into ErrInvalidTransition.
func (s *Service) withConflictRetry(op func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = models.AsConcurrencyConflict(op())
		if !errors.Is(err, models.ErrConcurrencyConflict) || attempt >= maxConflictRetries {
			return err
		}
		s.log.Warn("retrying after concurrency conflict", zap.Int("attempt", attempt+1))
	}
}

// nextBatchNumber yields a batch number the roll numbers derive from. The
// uuid fragment keeps two completions in the same instant from colliding on
// the unique batch_number column.
func nextBatchNumber(now time.Time) string {
	return fmt.Sprintf("B%s-%s", now.Format("20060102"), strings.ToUpper(uuid.NewString()[:8]))
}

func rollNumber(batchNumber string, seq int) string {
	return fmt.Sprintf("%s-%02d", batchNumber, seq)
}

// classifyRoll derives the roll type from grade and declared length. Any
// grade-B/C roll is wastage; an A roll below the fabric's standard length is
// short.
func classifyRoll(grade string, length, standardLength decimal.Decimal) string {
	if grade != models.GradeA {
		return models.RollTypeWastage
	}
	if length.LessThan(standardLength) {
		return models.RollTypeShort
	}
	return models.RollTypeStandard
}

func loadFabric(tx *gorm.DB, fabricID uint) (*models.Fabric, error) {
	var fabric models.Fabric
	if err := tx.First(&fabric, fabricID).Error; err != nil {
		return nil, fmt.Errorf("fabric %d not found: %w", fabricID, err)
	}
	return &fabric, nil
}
