// Package stockledger maintains the per-fabric stock aggregates and the
// append-only movement log. It is the only place quantity totals are mutated,
// which keeps the aggregate re-derivable from the roll ledger.
package stockledger

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/loomworks/millgo/internal/models"
)

// Ledger adjusts stock aggregates and appends movements. Both writes happen
// on the transaction handed in by the caller, never on a connection of its
// own, so a quantity change and its audit record commit or roll back together.
type Ledger struct{}

// New returns a stock ledger.
func New() *Ledger {
	return &Ledger{}
}

// Credit increases the fabric+color aggregate by qty (qty must be positive)
// and appends a movement with the positive delta.
func (l *Ledger) Credit(tx *gorm.DB, fabricID uint, color string, qty decimal.Decimal, movementType, refType string, refID uint) error {
	if !qty.IsPositive() {
		return fmt.Errorf("credit quantity must be positive, got %s", qty)
	}
	return l.apply(tx, fabricID, color, qty, movementType, refType, refID)
}

// Debit decreases the fabric+color aggregate by qty (qty must be positive)
// and appends a movement with the negative delta.
func (l *Ledger) Debit(tx *gorm.DB, fabricID uint, color string, qty decimal.Decimal, movementType, refType string, refID uint) error {
	if !qty.IsPositive() {
		return fmt.Errorf("debit quantity must be positive, got %s", qty)
	}
	return l.apply(tx, fabricID, color, qty.Neg(), movementType, refType, refID)
}

func (l *Ledger) apply(tx *gorm.DB, fabricID uint, color string, delta decimal.Decimal, movementType, refType string, refID uint) error {
	var agg models.StockAggregate
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("fabric_id = ? AND color = ?", fabricID, color).
		First(&agg).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		agg = models.StockAggregate{FabricID: fabricID, Color: color, Quantity: decimal.Zero}
		if err := tx.Create(&agg).Error; err != nil {
			return fmt.Errorf("failed to create stock aggregate: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to load stock aggregate: %w", err)
	}

	agg.Quantity = agg.Quantity.Add(delta)
	if err := tx.Model(&agg).Update("quantity", agg.Quantity).Error; err != nil {
		return fmt.Errorf("failed to update stock aggregate: %w", err)
	}

	movement := models.StockMovement{
		MovementUID:  uuid.New().String(),
		FabricID:     fabricID,
		Color:        color,
		Quantity:     delta,
		MovementType: movementType,
		RefType:      refType,
		RefID:        refID,
	}
	if err := tx.Create(&movement).Error; err != nil {
		return fmt.Errorf("failed to append stock movement: %w", err)
	}
	return nil
}

// Recompute re-derives every aggregate of the fabric from the roll ledger and
// overwrites the cached rows. Intended for repair and for verifying that the
// materialized view never diverged.
func (l *Ledger) Recompute(db *gorm.DB, fabricID uint) error {
	type rollup struct {
		Color string
		Total decimal.Decimal
	}

	return db.Transaction(func(tx *gorm.DB) error {
		var rows []rollup
		err := tx.Model(&models.Roll{}).
			Select("color, COALESCE(SUM(remaining_length), 0) AS total").
			Where("fabric_id = ? AND status IN ?", fabricID,
				[]string{models.RollStatusAvailable, models.RollStatusPartiallyAllocated}).
			Group("color").
			Scan(&rows).Error
		if err != nil {
			return fmt.Errorf("failed to sum roll ledger: %w", err)
		}

		derived := make(map[string]decimal.Decimal, len(rows))
		for _, r := range rows {
			derived[r.Color] = r.Total
		}

		var aggs []models.StockAggregate
		if err := tx.Where("fabric_id = ?", fabricID).Find(&aggs).Error; err != nil {
			return fmt.Errorf("failed to load stock aggregates: %w", err)
		}

		seen := make(map[string]bool, len(aggs))
		for i := range aggs {
			want := derived[aggs[i].Color]
			seen[aggs[i].Color] = true
			if !aggs[i].Quantity.Equal(want) {
				if err := tx.Model(&aggs[i]).Update("quantity", want).Error; err != nil {
					return fmt.Errorf("failed to repair stock aggregate: %w", err)
				}
			}
		}
		for color, total := range derived {
			if seen[color] {
				continue
			}
			agg := models.StockAggregate{FabricID: fabricID, Color: color, Quantity: total}
			if err := tx.Create(&agg).Error; err != nil {
				return fmt.Errorf("failed to create stock aggregate: %w", err)
			}
		}
		return nil
	})
}
