package production

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/loomworks/millgo/internal/models"
)

// conservationTolerance is the slack allowed between consumed input and
// declared output on a coating completion. Fabric measurement on the shop
// floor rounds to a tenth of a unit.
var conservationTolerance = decimal.RequireFromString("0.1")

// LoomEntry is one loom's declared output on a weaving completion. Weaving
// carries no input-side balance check: raw fiber usage is not tracked at roll
// granularity, so the declared length is simply credited.
type LoomEntry struct {
	Loom   string          `json:"loom"`
	Length decimal.Decimal `json:"length"`
	Grade  string          `json:"grade"`
}

// RollUsage declares how much of one reserved input roll a coating run
// consumed.
type RollUsage struct {
	RollID       uint            `json:"roll_id"`
	QuantityUsed decimal.Decimal `json:"quantity_used"`
}

// WastageRoll is a grade-B/C output roll.
type WastageRoll struct {
	Length decimal.Decimal `json:"length"`
	Grade  string          `json:"grade"`
}

// CoatingInput is the grading breakdown of a coating completion: the consumed
// input rolls plus the declared output mix.
type CoatingInput struct {
	Inputs        []RollUsage       `json:"inputs"`
	FullRollCount int               `json:"full_roll_count"`
	ShortRolls    []decimal.Decimal `json:"short_rolls"`
	WastageRolls  []WastageRoll     `json:"wastage_rolls"`
}

// CompletionInput carries the grading breakdown for Complete. Exactly one of
// the two sections applies, matching the order's kind.
type CompletionInput struct {
	Weaving []LoomEntry   `json:"weaving,omitempty"`
	Coating *CoatingInput `json:"coating,omitempty"`
}

func validGrade(g string) bool {
	return g == models.GradeA || g == models.GradeB || g == models.GradeC
}

// recordWeavingBatch credits each loom's declared roll as new raw inventory.
func (s *Service) recordWeavingBatch(tx *gorm.DB, order *models.ProductionOrder, entries []LoomEntry) (*models.ProductionBatch, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("weaving completion requires at least one loom entry")
	}
	for _, e := range entries {
		if !e.Length.IsPositive() {
			return nil, fmt.Errorf("loom entry length must be positive, got %s", e.Length)
		}
		if !validGrade(e.Grade) {
			return nil, fmt.Errorf("invalid grade %q", e.Grade)
		}
	}

	fabric, err := loadFabric(tx, order.FabricID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	batch := &models.ProductionBatch{
		BatchNumber: nextBatchNumber(now),
		OrderID:     order.ID,
		FabricID:    order.FabricID,
		Color:       order.Color,
	}

	payload, err := json.Marshal(CompletionInput{Weaving: entries})
	if err != nil {
		return nil, fmt.Errorf("failed to encode grading breakdown: %w", err)
	}
	batch.Breakdown = datatypes.JSON(payload)

	total := decimal.Zero
	gradeTotals := map[string]decimal.Decimal{}
	for _, e := range entries {
		total = total.Add(e.Length)
		gradeTotals[e.Grade] = gradeTotals[e.Grade].Add(e.Length)
	}
	batch.TotalLength = total
	batch.GradeATotal = gradeTotals[models.GradeA]
	batch.GradeBTotal = gradeTotals[models.GradeB]
	batch.GradeCTotal = gradeTotals[models.GradeC]

	if err := tx.Create(batch).Error; err != nil {
		return nil, fmt.Errorf("failed to create production batch: %w", err)
	}

	for i, e := range entries {
		roll := models.Roll{
			RollNumber:      rollNumber(batch.BatchNumber, i+1),
			FabricID:        order.FabricID,
			FabricKind:      fabric.Kind,
			Color:           order.Color,
			Grade:           e.Grade,
			RollType:        classifyRoll(e.Grade, e.Length, fabric.StandardLength),
			TotalLength:     e.Length,
			RemainingLength: e.Length,
			Status:          models.RollStatusAvailable,
			BatchID:         batch.ID,
		}
		if err := tx.Create(&roll).Error; err != nil {
			return nil, fmt.Errorf("failed to create roll %s: %w", roll.RollNumber, err)
		}
	}

	if err := s.ledger.Credit(tx, order.FabricID, order.Color, total,
		models.MovementProductionIn, models.RefTypeOrder, order.ID); err != nil {
		return nil, err
	}

	s.log.Info("weaving batch recorded",
		zap.String("batch", batch.BatchNumber),
		zap.Int("rolls", len(entries)),
		zap.String("total", total.String()))
	return batch, nil
}

// recordCoatingBatch consumes the reserved input rolls and materializes the
// declared output mix, enforcing the conservation invariant first: consumed
// input and declared output must balance within tolerance or nothing is
// written.
func (s *Service) recordCoatingBatch(tx *gorm.DB, order *models.ProductionOrder, input *CoatingInput) (*models.ProductionBatch, error) {
	if len(input.Inputs) == 0 {
		return nil, fmt.Errorf("coating completion requires consumed input rolls")
	}

	fabric, err := loadFabric(tx, order.FabricID)
	if err != nil {
		return nil, err
	}

	sumIn := decimal.Zero
	inputRolls := make([]*models.Roll, 0, len(input.Inputs))
	for _, usage := range input.Inputs {
		if !usage.QuantityUsed.IsPositive() {
			return nil, fmt.Errorf("quantity used must be positive for roll %d", usage.RollID)
		}
		var roll models.Roll
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&roll, usage.RollID).Error
		if err != nil {
			return nil, fmt.Errorf("input roll %d not found: %w", usage.RollID, err)
		}
		if roll.Status == models.RollStatusUsed {
			return nil, fmt.Errorf("input roll %s already consumed", roll.RollNumber)
		}
		if roll.ReservedOrderID == nil || *roll.ReservedOrderID != order.ID {
			return nil, fmt.Errorf("input roll %s is not reserved for order %s", roll.RollNumber, order.OrderNumber)
		}
		if usage.QuantityUsed.GreaterThan(roll.RemainingLength) {
			return nil, fmt.Errorf("roll %s has %s remaining, cannot use %s",
				roll.RollNumber, roll.RemainingLength, usage.QuantityUsed)
		}
		sumIn = sumIn.Add(usage.QuantityUsed)
		inputRolls = append(inputRolls, &roll)
	}

	if input.FullRollCount < 0 {
		return nil, fmt.Errorf("full roll count cannot be negative")
	}
	sumOut := fabric.StandardLength.Mul(decimal.NewFromInt(int64(input.FullRollCount)))
	gradeA := sumOut
	for _, l := range input.ShortRolls {
		if !l.IsPositive() {
			return nil, fmt.Errorf("short roll length must be positive, got %s", l)
		}
		sumOut = sumOut.Add(l)
		gradeA = gradeA.Add(l)
	}
	gradeB, gradeC := decimal.Zero, decimal.Zero
	for _, w := range input.WastageRolls {
		if !w.Length.IsPositive() {
			return nil, fmt.Errorf("wastage roll length must be positive, got %s", w.Length)
		}
		switch w.Grade {
		case models.GradeB:
			gradeB = gradeB.Add(w.Length)
		case models.GradeC:
			gradeC = gradeC.Add(w.Length)
		default:
			return nil, fmt.Errorf("wastage roll grade must be B or C, got %q", w.Grade)
		}
		sumOut = sumOut.Add(w.Length)
	}

	// The conservation invariant: fabric must not appear or disappear across
	// the coating run. Checked before any row is written.
	if sumIn.Sub(sumOut).Abs().GreaterThan(conservationTolerance) {
		return nil, fmt.Errorf("consumed %s but declared %s: %w",
			sumIn, sumOut, models.ErrUnbalancedProduction)
	}

	// Input rolls are fully consumed regardless of rounding slack; their
	// remaining length leaves the allocatable raw inventory.
	rawDebit := decimal.Zero
	var rawFabricID uint
	for _, roll := range inputRolls {
		rawDebit = rawDebit.Add(roll.RemainingLength)
		rawFabricID = roll.FabricID
		if err := tx.Model(roll).Updates(map[string]interface{}{
			"status":           models.RollStatusUsed,
			"remaining_length": decimal.Zero,
		}).Error; err != nil {
			return nil, fmt.Errorf("failed to consume roll %s: %w", roll.RollNumber, err)
		}
	}
	if rawDebit.IsPositive() {
		if err := s.ledger.Debit(tx, rawFabricID, order.Color, rawDebit,
			models.MovementAllocation, models.RefTypeOrder, order.ID); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	batch := &models.ProductionBatch{
		BatchNumber: nextBatchNumber(now),
		OrderID:     order.ID,
		FabricID:    order.FabricID,
		Color:       order.Color,
		TotalLength: sumOut,
		GradeATotal: gradeA,
		GradeBTotal: gradeB,
		GradeCTotal: gradeC,
	}
	payload, err := json.Marshal(CompletionInput{Coating: input})
	if err != nil {
		return nil, fmt.Errorf("failed to encode grading breakdown: %w", err)
	}
	batch.Breakdown = datatypes.JSON(payload)
	if err := tx.Create(batch).Error; err != nil {
		return nil, fmt.Errorf("failed to create production batch: %w", err)
	}

	seq := 0
	createRoll := func(length decimal.Decimal, grade string) error {
		seq++
		roll := models.Roll{
			RollNumber:      rollNumber(batch.BatchNumber, seq),
			FabricID:        order.FabricID,
			FabricKind:      fabric.Kind,
			Color:           order.Color,
			Grade:           grade,
			RollType:        classifyRoll(grade, length, fabric.StandardLength),
			TotalLength:     length,
			RemainingLength: length,
			Status:          models.RollStatusAvailable,
			BatchID:         batch.ID,
		}
		if err := tx.Create(&roll).Error; err != nil {
			return fmt.Errorf("failed to create roll %s: %w", roll.RollNumber, err)
		}
		return nil
	}
	for i := 0; i < input.FullRollCount; i++ {
		if err := createRoll(fabric.StandardLength, models.GradeA); err != nil {
			return nil, err
		}
	}
	for _, l := range input.ShortRolls {
		if err := createRoll(l, models.GradeA); err != nil {
			return nil, err
		}
	}
	for _, w := range input.WastageRolls {
		if err := createRoll(w.Length, w.Grade); err != nil {
			return nil, err
		}
	}

	if err := s.ledger.Credit(tx, order.FabricID, order.Color, sumOut,
		models.MovementProductionIn, models.RefTypeOrder, order.ID); err != nil {
		return nil, err
	}

	s.log.Info("coating batch recorded",
		zap.String("batch", batch.BatchNumber),
		zap.Int("inputs", len(inputRolls)),
		zap.Int("rolls", seq),
		zap.String("total", sumOut.String()))
	return batch, nil
}
