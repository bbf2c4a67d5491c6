package allocation_test

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/loomworks/millgo/internal/allocation"
	"github.com/loomworks/millgo/internal/models"
	"github.com/loomworks/millgo/internal/stockledger"
	"github.com/loomworks/millgo/internal/testutil"
)

func TestMain(m *testing.M) {
	os.Exit(testutil.Run(m))
}

func newEngine(db *gorm.DB) *allocation.Engine {
	return allocation.NewEngine(db, stockledger.New(), zap.NewNop())
}

func makeFabric(t *testing.T, db *gorm.DB, code string) *models.Fabric {
	t.Helper()
	fabric := &models.Fabric{
		Code:           code,
		Name:           code,
		Kind:           models.FabricKindFinished,
		StandardLength: decimal.NewFromInt(50),
	}
	require.NoError(t, db.Create(fabric).Error)
	return fabric
}

// seedBatch creates the completed order and batch that seeded rolls hang off.
func seedBatch(t *testing.T, db *gorm.DB, fabric *models.Fabric) *models.ProductionBatch {
	t.Helper()
	order := &models.ProductionOrder{
		OrderNumber: "WO-SEED-" + fabric.Code,
		Kind:        models.OrderKindWeaving,
		FabricID:    fabric.ID,
		Color:       "navy",
		RequiredQty: decimal.NewFromInt(100),
		Status:      models.OrderStatusCompleted,
	}
	require.NoError(t, db.Create(order).Error)
	batch := &models.ProductionBatch{
		BatchNumber: "B-SEED-" + fabric.Code,
		OrderID:     order.ID,
		FabricID:    fabric.ID,
		Color:       "navy",
		TotalLength: decimal.NewFromInt(100),
	}
	require.NoError(t, db.Create(batch).Error)
	return batch
}

var rollSeq int

// seedRoll inserts a roll with an explicit creation time so tests control the
// FIFO order, and keeps the stock aggregate in step.
func seedRoll(t *testing.T, db *gorm.DB, batch *models.ProductionBatch, color, grade string, length int64, createdAt time.Time) *models.Roll {
	t.Helper()
	rollSeq++
	qty := decimal.NewFromInt(length)
	roll := &models.Roll{
		RollNumber:      fmt.Sprintf("R-%s-%03d", batch.BatchNumber, rollSeq),
		FabricID:        batch.FabricID,
		FabricKind:      models.FabricKindFinished,
		Color:           color,
		Grade:           grade,
		RollType:        models.RollTypeStandard,
		TotalLength:     qty,
		RemainingLength: qty,
		Status:          models.RollStatusAvailable,
		BatchID:         batch.ID,
		CreatedAt:       createdAt,
	}
	require.NoError(t, db.Create(roll).Error)
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return stockledger.New().Credit(tx, batch.FabricID, color, qty,
			models.MovementProductionIn, models.RefTypeOrder, batch.OrderID)
	}))
	return roll
}

func makeDemand(t *testing.T, db *gorm.DB, fabric *models.Fabric, color string, qty int64) *models.Demand {
	t.Helper()
	rollSeq++
	demand := &models.Demand{
		DemandNumber: fmt.Sprintf("D-%04d", rollSeq),
		FabricID:     fabric.ID,
		Color:        color,
		QtyRequested: decimal.NewFromInt(qty),
		QtyAllocated: decimal.Zero,
		Status:       models.DemandStatusUnmet,
	}
	require.NoError(t, db.Create(demand).Error)
	return demand
}

func reloadRoll(t *testing.T, db *gorm.DB, id uint) *models.Roll {
	t.Helper()
	var roll models.Roll
	require.NoError(t, db.First(&roll, id).Error)
	return &roll
}

func reloadDemand(t *testing.T, db *gorm.DB, id uint) *models.Demand {
	t.Helper()
	var demand models.Demand
	require.NoError(t, db.First(&demand, id).Error)
	return &demand
}

func stockQty(t *testing.T, db *gorm.DB, fabricID uint, color string) decimal.Decimal {
	t.Helper()
	var agg models.StockAggregate
	err := db.Where("fabric_id = ? AND color = ?", fabricID, color).First(&agg).Error
	if err == gorm.ErrRecordNotFound {
		return decimal.Zero
	}
	require.NoError(t, err)
	return agg.Quantity
}
