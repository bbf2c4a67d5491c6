// Package allocation satisfies customer demand against the roll ledger.
// The auto path walks matching rolls oldest-first; manual allocation lets an
// operator pick rolls but shares the same mutation path, so every quantity
// change still flows through the stock ledger.
package allocation

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/loomworks/millgo/internal/models"
	"github.com/loomworks/millgo/internal/stockledger"
)

// Engine allocates roll inventory to demand. Each public operation is one
// database transaction; candidate rolls are row-locked so two callers can
// never both consume the same remaining length.
type Engine struct {
	db     *gorm.DB
	ledger *stockledger.Ledger
	log    *zap.Logger
}

// NewEngine creates an allocation engine.
func NewEngine(db *gorm.DB, ledger *stockledger.Ledger, log *zap.Logger) *Engine {
	return &Engine{db: db, ledger: ledger, log: log}
}

// RollAllocation is one (roll, quantity taken) pair of an allocation result.
// Callers use these to produce packing and traceability records.
type RollAllocation struct {
	Roll  models.Roll     `json:"roll"`
	Taken decimal.Decimal `json:"taken"`
}

// RollSelection names a roll and quantity for manual allocation.
type RollSelection struct {
	RollID   uint            `json:"roll_id"`
	Quantity decimal.Decimal `json:"quantity"`
}

func lockDemand(tx *gorm.DB, demandID uint) (*models.Demand, error) {
	var demand models.Demand
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&demand, demandID).Error
	if err != nil {
		return nil, fmt.Errorf("demand %d not found: %w", demandID, err)
	}
	return &demand, nil
}

// take consumes qty from a locked roll, links it to the demand, and persists
// the status that the remaining length dictates.
func take(tx *gorm.DB, roll *models.Roll, qty decimal.Decimal, demandID uint) error {
	roll.ApplyTake(qty, demandID)
	err := tx.Model(&models.Roll{}).Where("id = ?", roll.ID).
		Updates(map[string]interface{}{
			"remaining_length": roll.RemainingLength,
			"status":           roll.Status,
			"demand_id":        demandID,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update roll %s: %w", roll.RollNumber, err)
	}
	return nil
}

// settle applies the allocation total to the demand and debits stock, both on
// the same transaction as the roll mutations.
func (e *Engine) settle(tx *gorm.DB, demand *models.Demand, total decimal.Decimal) error {
	demand.QtyAllocated = demand.QtyAllocated.Add(total)
	demand.RefreshStatus()
	err := tx.Model(&models.Demand{}).Where("id = ?", demand.ID).
		Updates(map[string]interface{}{
			"qty_allocated": demand.QtyAllocated,
			"status":        demand.Status,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update demand %s: %w", demand.DemandNumber, err)
	}
	return e.ledger.Debit(tx, demand.FabricID, demand.Color, total,
		models.MovementAllocation, models.RefTypeDemand, demand.ID)
}

// Allocate satisfies up to targetQuantity of the demand from matching rolls,
// oldest first. Color mismatch is a non-match, never a fallback, and only
// A-grade rolls feed the auto path. Returns the (roll, taken) pairs; if the
// requirement was positive and nothing could be taken, ErrNoAvailableStock.
func (e *Engine) Allocate(demandID uint, targetQuantity decimal.Decimal, authorized bool) ([]RollAllocation, error) {
	if !authorized {
		return nil, models.ErrNotAuthorized
	}
	var result []RollAllocation
	err := e.db.Transaction(func(tx *gorm.DB) error {
		result = nil
		demand, err := lockDemand(tx, demandID)
		if err != nil {
			return err
		}

		remaining := decimal.Min(targetQuantity, demand.Remaining())
		if !remaining.IsPositive() {
			// Nothing left to allocate; a no-op success.
			return nil
		}

		// FIFO by creation time; identical timestamps break ties on roll
		// number so allocation stays deterministic.
		var candidates []models.Roll
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("fabric_id = ? AND color = ? AND grade = ? AND status IN ? AND remaining_length > 0 AND reserved_order_id IS NULL",
				demand.FabricID, demand.Color, models.GradeA,
				[]string{models.RollStatusAvailable, models.RollStatusPartiallyAllocated}).
			Order("created_at ASC, roll_number ASC").
			Find(&candidates).Error
		if err != nil {
			return fmt.Errorf("failed to fetch candidate rolls: %w", err)
		}

		total := decimal.Zero
		for i := range candidates {
			if !remaining.IsPositive() {
				break
			}
			roll := &candidates[i]
			qty := decimal.Min(roll.RemainingLength, remaining)
			if err := take(tx, roll, qty, demand.ID); err != nil {
				return err
			}
			remaining = remaining.Sub(qty)
			total = total.Add(qty)
			result = append(result, RollAllocation{Roll: *roll, Taken: qty})
		}

		if total.IsZero() {
			return models.ErrNoAvailableStock
		}

		if err := e.settle(tx, demand, total); err != nil {
			return err
		}

		e.log.Info("demand allocated",
			zap.String("demand", demand.DemandNumber),
			zap.String("allocated", total.String()),
			zap.Int("rolls", len(result)))
		return nil
	})
	if err != nil {
		return nil, models.AsConcurrencyConflict(err)
	}
	return result, nil
}

// ManualAllocate applies operator-chosen roll selections to a demand. FIFO is
// only the default selection policy, so any grade and any mix of rolls is
// allowed here, but the invariant path is identical: capped takes, status
// updates, demand settlement, and the stock debit with its movement record.
// Selections are locked in ascending roll order so two overlapping manual
// allocations can never deadlock each other at the store.
func (e *Engine) ManualAllocate(demandID uint, selections []RollSelection, authorized bool) ([]RollAllocation, error) {
	if !authorized {
		return nil, models.ErrNotAuthorized
	}
	if len(selections) == 0 {
		return nil, fmt.Errorf("manual allocation requires at least one roll selection")
	}
	sort.Slice(selections, func(i, j int) bool { return selections[i].RollID < selections[j].RollID })
	var result []RollAllocation
	err := e.db.Transaction(func(tx *gorm.DB) error {
		result = nil
		demand, err := lockDemand(tx, demandID)
		if err != nil {
			return err
		}

		remaining := demand.Remaining()
		total := decimal.Zero
		for _, sel := range selections {
			if !sel.Quantity.IsPositive() {
				return fmt.Errorf("selection quantity must be positive for roll %d", sel.RollID)
			}
			var roll models.Roll
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&roll, sel.RollID).Error
			if err != nil {
				return fmt.Errorf("roll %d not found: %w", sel.RollID, err)
			}
			if !roll.Allocatable() {
				return fmt.Errorf("roll %s is not allocatable (status %s)", roll.RollNumber, roll.Status)
			}
			if roll.FabricID != demand.FabricID || roll.Color != demand.Color {
				return fmt.Errorf("roll %s does not match demand fabric/color", roll.RollNumber)
			}
			qty := decimal.Min(decimal.Min(sel.Quantity, roll.RemainingLength), remaining)
			if !qty.IsPositive() {
				continue
			}
			if err := take(tx, &roll, qty, demand.ID); err != nil {
				return err
			}
			remaining = remaining.Sub(qty)
			total = total.Add(qty)
			result = append(result, RollAllocation{Roll: roll, Taken: qty})
		}

		if total.IsZero() {
			return models.ErrNoAvailableStock
		}
		if err := e.settle(tx, demand, total); err != nil {
			return err
		}

		e.log.Info("demand manually allocated",
			zap.String("demand", demand.DemandNumber),
			zap.String("allocated", total.String()),
			zap.Int("rolls", len(result)))
		return nil
	})
	if err != nil {
		return nil, models.AsConcurrencyConflict(err)
	}
	return result, nil
}

// ArchiveExhausted flags fully consumed rolls of a fabric so listings and
// candidate queries skip them. Archival is bookkeeping only; quantities are
// untouched, so nothing is written to the movement log. Re-running it is a
// no-op.
func (e *Engine) ArchiveExhausted(fabricID uint, authorized bool) (int64, error) {
	if !authorized {
		return 0, models.ErrNotAuthorized
	}
	res := e.db.Model(&models.Roll{}).
		Where("fabric_id = ? AND archived = ? AND remaining_length = 0 AND status IN ?",
			fabricID, false,
			[]string{models.RollStatusAllocated, models.RollStatusUsed}).
		Update("archived", true)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to archive rolls: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		e.log.Info("exhausted rolls archived",
			zap.Uint("fabric_id", fabricID),
			zap.Int64("rolls", res.RowsAffected))
	}
	return res.RowsAffected, nil
}
