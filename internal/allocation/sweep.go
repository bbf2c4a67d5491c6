package allocation

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/loomworks/millgo/internal/models"
)

// SweepResult summarizes one demand's outcome in a sweep.
type SweepResult struct {
	DemandID    uint             `json:"demand_id"`
	Allocations []RollAllocation `json:"allocations,omitempty"`
	Exhausted   bool             `json:"exhausted"`
}

// SweepPendingDemand serves every unmet or partially met demand for the
// fabric, oldest demand first, so the earliest customer commitment gets the
// oldest stock. Each demand is allocated in its own transaction; a demand
// whose color has no stock is skipped, later demands of other colors still
// get their chance.
func (e *Engine) SweepPendingDemand(fabricID uint, authorized bool) ([]SweepResult, error) {
	if !authorized {
		return nil, models.ErrNotAuthorized
	}

	var demands []models.Demand
	err := e.db.
		Where("fabric_id = ? AND status IN ?", fabricID,
			[]string{models.DemandStatusUnmet, models.DemandStatusPartiallyMet}).
		Order("created_at ASC, id ASC").
		Find(&demands).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending demands: %w", err)
	}

	results := make([]SweepResult, 0, len(demands))
	for _, d := range demands {
		allocations, err := e.Allocate(d.ID, d.Remaining(), authorized)
		if errors.Is(err, models.ErrNoAvailableStock) {
			results = append(results, SweepResult{DemandID: d.ID, Exhausted: true})
			continue
		}
		if err != nil {
			return results, err
		}
		results = append(results, SweepResult{DemandID: d.ID, Allocations: allocations})
	}

	e.log.Info("pending demand swept",
		zap.Uint("fabric_id", fabricID),
		zap.Int("demands", len(demands)))
	return results, nil
}

// NextUnmetDemand returns the oldest demand for the fabric that still has an
// unallocated remainder: the single deterministic "which line needs
// allocation" rule callers share instead of ad hoc filtering.
func (e *Engine) NextUnmetDemand(fabricID uint) (*models.Demand, error) {
	var demand models.Demand
	err := e.db.
		Where("fabric_id = ? AND status IN ?", fabricID,
			[]string{models.DemandStatusUnmet, models.DemandStatusPartiallyMet}).
		Order("created_at ASC, id ASC").
		First(&demand).Error
	if err != nil {
		return nil, fmt.Errorf("no unmet demand for fabric %d: %w", fabricID, err)
	}
	return &demand, nil
}
