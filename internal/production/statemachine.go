package production

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/loomworks/millgo/internal/models"
)

// Start moves a pending order to in_progress and stamps the start time.
// Coating orders must already have their upstream input rolls reserved;
// reservation is a precondition of Start, not part of it.
func (s *Service) Start(orderID uint, authorized bool) error {
	if !authorized {
		return models.ErrNotAuthorized
	}
	return s.withConflictRetry(func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			order, err := lockOrder(tx, orderID)
			if err != nil {
				return err
			}
			if order.Status != models.OrderStatusPending {
				return fmt.Errorf("cannot start order %s from status %s: %w",
					order.OrderNumber, order.Status, models.ErrInvalidTransition)
			}

			if order.Kind == models.OrderKindCoating && order.UpstreamOrderID != nil {
				var reserved int64
				if err := tx.Model(&models.Roll{}).
					Where("reserved_order_id = ?", order.ID).
					Count(&reserved).Error; err != nil {
					return fmt.Errorf("failed to check reservations: %w", err)
				}
				if reserved == 0 {
					return fmt.Errorf("coating order %s has no reserved input rolls: %w",
						order.OrderNumber, models.ErrInvalidTransition)
				}
			}

			now := time.Now().UTC()
			order.Status = models.OrderStatusInProgress
			order.StartedAt = &now
			if err := saveOrder(tx, order); err != nil {
				return err
			}
			s.log.Info("production order started",
				zap.String("order", order.OrderNumber), zap.String("kind", order.Kind))
			return nil
		})
	})
}

// Hold parks a pending or in-progress order, remembering where it came from.
func (s *Service) Hold(orderID uint, authorized bool) error {
	if !authorized {
		return models.ErrNotAuthorized
	}
	return s.withConflictRetry(func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			order, err := lockOrder(tx, orderID)
			if err != nil {
				return err
			}
			if order.Status != models.OrderStatusPending && order.Status != models.OrderStatusInProgress {
				return fmt.Errorf("cannot hold order %s from status %s: %w",
					order.OrderNumber, order.Status, models.ErrInvalidTransition)
			}
			order.HeldFromStatus = order.Status
			order.Status = models.OrderStatusOnHold
			return saveOrder(tx, order)
		})
	})
}

// Resume returns an on-hold order to the state it was held from.
func (s *Service) Resume(orderID uint, authorized bool) error {
	if !authorized {
		return models.ErrNotAuthorized
	}
	return s.withConflictRetry(func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			order, err := lockOrder(tx, orderID)
			if err != nil {
				return err
			}
			if order.Status != models.OrderStatusOnHold {
				return fmt.Errorf("cannot resume order %s from status %s: %w",
					order.OrderNumber, order.Status, models.ErrInvalidTransition)
			}
			order.Status = order.HeldFromStatus
			if order.Status == "" {
				order.Status = models.OrderStatusPending
			}
			order.HeldFromStatus = ""
			return saveOrder(tx, order)
		})
	})
}

// ReserveInputs FIFO-selects allocatable rolls of the upstream order's fabric
// and marks them reserved for the coating order, up to the order's required
// quantity. Already-reserved rolls count toward the target, so re-running the
// reservation is a no-op once covered.
func (s *Service) ReserveInputs(orderID uint, authorized bool) ([]models.Roll, error) {
	if !authorized {
		return nil, models.ErrNotAuthorized
	}
	var reserved []models.Roll
	err := s.db.Transaction(func(tx *gorm.DB) error {
		reserved = reserved[:0]
		order, err := lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		if order.Kind != models.OrderKindCoating || order.UpstreamOrderID == nil {
			return fmt.Errorf("order %s is not a linked coating order: %w",
				order.OrderNumber, models.ErrInvalidTransition)
		}
		if order.Status != models.OrderStatusPending {
			return fmt.Errorf("cannot reserve inputs for order %s from status %s: %w",
				order.OrderNumber, order.Status, models.ErrInvalidTransition)
		}

		var upstream models.ProductionOrder
		if err := tx.First(&upstream, *order.UpstreamOrderID).Error; err != nil {
			return fmt.Errorf("upstream order not found: %w", err)
		}

		covered := decimal.Zero
		var already []models.Roll
		if err := tx.Where("reserved_order_id = ?", order.ID).Find(&already).Error; err != nil {
			return fmt.Errorf("failed to load existing reservations: %w", err)
		}
		for _, r := range already {
			covered = covered.Add(r.RemainingLength)
		}
		reserved = append(reserved, already...)
		if covered.GreaterThanOrEqual(order.RequiredQty) {
			return nil
		}

		var candidates []models.Roll
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("fabric_id = ? AND color = ? AND status IN ? AND remaining_length > 0 AND reserved_order_id IS NULL",
				upstream.FabricID, order.Color,
				[]string{models.RollStatusAvailable, models.RollStatusPartiallyAllocated}).
			Order("created_at ASC, roll_number ASC").
			Find(&candidates).Error
		if err != nil {
			return fmt.Errorf("failed to fetch candidate rolls: %w", err)
		}

		for i := range candidates {
			if covered.GreaterThanOrEqual(order.RequiredQty) {
				break
			}
			roll := &candidates[i]
			roll.ReservedOrderID = &order.ID
			if err := tx.Model(roll).Update("reserved_order_id", order.ID).Error; err != nil {
				return fmt.Errorf("failed to reserve roll %s: %w", roll.RollNumber, err)
			}
			covered = covered.Add(roll.RemainingLength)
			reserved = append(reserved, *roll)
		}

		if covered.LessThan(order.RequiredQty) {
			return fmt.Errorf("upstream stock covers only %s of %s: %w",
				covered, order.RequiredQty, models.ErrNoAvailableStock)
		}

		s.log.Info("input rolls reserved",
			zap.String("order", order.OrderNumber),
			zap.Int("rolls", len(reserved)),
			zap.String("covered", covered.String()))
		return nil
	})
	if err != nil {
		return nil, models.AsConcurrencyConflict(err)
	}
	return reserved, nil
}

// Complete finishes an in-progress order: the batch recorder materializes the
// output rolls and credits stock, then the order is closed and linked
// downstream orders are unblocked. All of it commits atomically. A repeated
// call on a completed order is rejected, never reprocessed.
func (s *Service) Complete(orderID uint, input CompletionInput, authorized bool) (*models.ProductionBatch, error) {
	if !authorized {
		return nil, models.ErrNotAuthorized
	}
	var batch *models.ProductionBatch
	err := s.withConflictRetry(func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			order, err := lockOrder(tx, orderID)
			if err != nil {
				return err
			}
			if order.Status != models.OrderStatusInProgress {
				return fmt.Errorf("cannot complete order %s from status %s: %w",
					order.OrderNumber, order.Status, models.ErrInvalidTransition)
			}

			switch order.Kind {
			case models.OrderKindWeaving:
				batch, err = s.recordWeavingBatch(tx, order, input.Weaving)
			case models.OrderKindCoating:
				if input.Coating == nil {
					return fmt.Errorf("coating completion requires input usage and output breakdown")
				}
				batch, err = s.recordCoatingBatch(tx, order, input.Coating)
			default:
				return fmt.Errorf("unknown order kind %q", order.Kind)
			}
			if err != nil {
				return err
			}

			now := time.Now().UTC()
			order.Status = models.OrderStatusCompleted
			order.ProducedQty = batch.TotalLength
			order.CompletedAt = &now
			if err := saveOrder(tx, order); err != nil {
				return err
			}

			if err := cascade(tx, order.ID); err != nil {
				return err
			}

			s.log.Info("production order completed",
				zap.String("order", order.OrderNumber),
				zap.String("batch", batch.BatchNumber),
				zap.String("produced", batch.TotalLength.String()))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// CascadeOnCompletion unblocks downstream orders of an already-completed
// weaving order. Complete runs the same cascade in its own transaction; this
// entry point exists so a retry after a partial caller failure stays safe;
// re-running it on already-pending orders is a no-op.
func (s *Service) CascadeOnCompletion(orderID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var order models.ProductionOrder
		if err := tx.First(&order, orderID).Error; err != nil {
			return fmt.Errorf("production order %d not found: %w", orderID, err)
		}
		if order.Status != models.OrderStatusCompleted {
			return fmt.Errorf("cascade source %s is not completed: %w",
				order.OrderNumber, models.ErrInvalidTransition)
		}
		return cascade(tx, orderID)
	})
}

// cascade transitions every waiting_materials order linked to the given
// upstream order to pending. Query-then-update inside the caller's
// transaction; idempotent because the WHERE clause only matches orders still
// waiting.
func cascade(tx *gorm.DB, upstreamID uint) error {
	res := tx.Model(&models.ProductionOrder{}).
		Where("upstream_order_id = ? AND status = ?", upstreamID, models.OrderStatusWaitingMaterials).
		Updates(map[string]interface{}{
			"status":       models.OrderStatusPending,
			"lock_version": gorm.Expr("lock_version + 1"),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to cascade completion: %w", res.Error)
	}
	return nil
}
