package allocation_test

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/millgo/internal/allocation"
	"github.com/loomworks/millgo/internal/models"
	"github.com/loomworks/millgo/internal/testutil"
)

func TestAllocateFIFO(t *testing.T) {
	db := testutil.OpenDB(t)
	engine := newEngine(db)
	fabric := makeFabric(t, db, "PU-FIFO")
	batch := seedBatch(t, db, fabric)

	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	r1 := seedRoll(t, db, batch, "navy", models.GradeA, 20, base)
	r2 := seedRoll(t, db, batch, "navy", models.GradeA, 30, base.Add(time.Minute))
	demand := makeDemand(t, db, fabric, "navy", 25)

	result, err := engine.Allocate(demand.ID, decimal.NewFromInt(25), true)
	require.NoError(t, err)
	require.Len(t, result, 2)

	// Oldest roll drains first, the newer one covers the remainder.
	assert.Equal(t, r1.ID, result[0].Roll.ID)
	assert.True(t, result[0].Taken.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, r2.ID, result[1].Roll.ID)
	assert.True(t, result[1].Taken.Equal(decimal.NewFromInt(5)))

	first := reloadRoll(t, db, r1.ID)
	assert.Equal(t, models.RollStatusAllocated, first.Status)
	assert.True(t, first.RemainingLength.IsZero())

	second := reloadRoll(t, db, r2.ID)
	assert.Equal(t, models.RollStatusPartiallyAllocated, second.Status)
	assert.True(t, second.RemainingLength.Equal(decimal.NewFromInt(25)))

	d := reloadDemand(t, db, demand.ID)
	assert.Equal(t, models.DemandStatusFullyMet, d.Status)
	assert.True(t, d.QtyAllocated.Equal(decimal.NewFromInt(25)))

	assert.True(t, stockQty(t, db, fabric.ID, "navy").Equal(decimal.NewFromInt(25)))
}

func TestAllocateTieBreaksOnRollNumber(t *testing.T) {
	db := testutil.OpenDB(t)
	engine := newEngine(db)
	fabric := makeFabric(t, db, "PU-TIE")
	batch := seedBatch(t, db, fabric)

	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	a := seedRoll(t, db, batch, "navy", models.GradeA, 10, at)
	b := seedRoll(t, db, batch, "navy", models.GradeA, 10, at)
	demand := makeDemand(t, db, fabric, "navy", 10)

	result, err := engine.Allocate(demand.ID, decimal.NewFromInt(10), true)
	require.NoError(t, err)
	require.Len(t, result, 1)
	if a.RollNumber < b.RollNumber {
		assert.Equal(t, a.ID, result[0].Roll.ID)
	} else {
		assert.Equal(t, b.ID, result[0].Roll.ID)
	}
}

func TestAllocateCapsAtRequested(t *testing.T) {
	db := testutil.OpenDB(t)
	engine := newEngine(db)
	fabric := makeFabric(t, db, "PU-CAP")
	batch := seedBatch(t, db, fabric)
	seedRoll(t, db, batch, "navy", models.GradeA, 100, time.Now().UTC())
	demand := makeDemand(t, db, fabric, "navy", 30)

	// Asking for more than the demand needs still stops at the requested total.
	result, err := engine.Allocate(demand.ID, decimal.NewFromInt(500), true)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.True(t, result[0].Taken.Equal(decimal.NewFromInt(30)))

	d := reloadDemand(t, db, demand.ID)
	assert.Equal(t, models.DemandStatusFullyMet, d.Status)
	assert.True(t, d.QtyAllocated.Equal(decimal.NewFromInt(30)))
}

func TestAllocateFulfilledDemandIsNoOp(t *testing.T) {
	db := testutil.OpenDB(t)
	engine := newEngine(db)
	fabric := makeFabric(t, db, "PU-NOOP")
	batch := seedBatch(t, db, fabric)
	seedRoll(t, db, batch, "navy", models.GradeA, 50, time.Now().UTC())
	demand := makeDemand(t, db, fabric, "navy", 20)

	_, err := engine.Allocate(demand.ID, decimal.NewFromInt(20), true)
	require.NoError(t, err)

	// A second pass has nothing left to do and succeeds with no allocations.
	result, err := engine.Allocate(demand.ID, decimal.NewFromInt(20), true)
	require.NoError(t, err)
	assert.Empty(t, result)
	assert.True(t, reloadDemand(t, db, demand.ID).QtyAllocated.Equal(decimal.NewFromInt(20)))
}

func TestAllocateNoStock(t *testing.T) {
	db := testutil.OpenDB(t)
	engine := newEngine(db)
	fabric := makeFabric(t, db, "PU-EMPTY")
	demand := makeDemand(t, db, fabric, "navy", 20)

	_, err := engine.Allocate(demand.ID, decimal.NewFromInt(20), true)
	assert.ErrorIs(t, err, models.ErrNoAvailableStock)
	assert.Equal(t, models.DemandStatusUnmet, reloadDemand(t, db, demand.ID).Status)
}

func TestAllocateColorIsNeverAFallback(t *testing.T) {
	db := testutil.OpenDB(t)
	engine := newEngine(db)
	fabric := makeFabric(t, db, "PU-COLOR")
	batch := seedBatch(t, db, fabric)
	crimson := seedRoll(t, db, batch, "crimson", models.GradeA, 100, time.Now().UTC())
	demand := makeDemand(t, db, fabric, "navy", 20)

	_, err := engine.Allocate(demand.ID, decimal.NewFromInt(20), true)
	assert.ErrorIs(t, err, models.ErrNoAvailableStock)
	assert.True(t, reloadRoll(t, db, crimson.ID).RemainingLength.Equal(decimal.NewFromInt(100)))
}

func TestAllocateSkipsNonAGradeAndReservedRolls(t *testing.T) {
	db := testutil.OpenDB(t)
	engine := newEngine(db)
	fabric := makeFabric(t, db, "PU-SKIP")
	batch := seedBatch(t, db, fabric)

	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	graded := seedRoll(t, db, batch, "navy", models.GradeB, 100, base)
	reserved := seedRoll(t, db, batch, "navy", models.GradeA, 100, base.Add(time.Minute))
	require.NoError(t, db.Model(reserved).Update("reserved_order_id", batch.OrderID).Error)
	eligible := seedRoll(t, db, batch, "navy", models.GradeA, 40, base.Add(2*time.Minute))
	demand := makeDemand(t, db, fabric, "navy", 30)

	result, err := engine.Allocate(demand.ID, decimal.NewFromInt(30), true)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, eligible.ID, result[0].Roll.ID)
	assert.True(t, reloadRoll(t, db, graded.ID).RemainingLength.Equal(decimal.NewFromInt(100)))
	assert.True(t, reloadRoll(t, db, reserved.ID).RemainingLength.Equal(decimal.NewFromInt(100)))
}

func TestAllocateRequiresAuthorization(t *testing.T) {
	db := testutil.OpenDB(t)
	engine := newEngine(db)
	fabric := makeFabric(t, db, "PU-AUTH")
	demand := makeDemand(t, db, fabric, "navy", 20)

	_, err := engine.Allocate(demand.ID, decimal.NewFromInt(20), false)
	assert.ErrorIs(t, err, models.ErrNotAuthorized)
}

func TestManualAllocateAnyGrade(t *testing.T) {
	db := testutil.OpenDB(t)
	engine := newEngine(db)
	fabric := makeFabric(t, db, "PU-MAN")
	batch := seedBatch(t, db, fabric)
	wastage := seedRoll(t, db, batch, "navy", models.GradeB, 40, time.Now().UTC())
	demand := makeDemand(t, db, fabric, "navy", 25)

	result, err := engine.ManualAllocate(demand.ID, []allocation.RollSelection{
		{RollID: wastage.ID, Quantity: decimal.NewFromInt(25)},
	}, true)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.True(t, result[0].Taken.Equal(decimal.NewFromInt(25)))

	roll := reloadRoll(t, db, wastage.ID)
	assert.Equal(t, models.RollStatusPartiallyAllocated, roll.Status)
	assert.True(t, roll.RemainingLength.Equal(decimal.NewFromInt(15)))
	assert.Equal(t, models.DemandStatusFullyMet, reloadDemand(t, db, demand.ID).Status)
	assert.True(t, stockQty(t, db, fabric.ID, "navy").Equal(decimal.NewFromInt(15)))
}

func TestManualAllocateCapsAtDemandRemainder(t *testing.T) {
	db := testutil.OpenDB(t)
	engine := newEngine(db)
	fabric := makeFabric(t, db, "PU-MANCAP")
	batch := seedBatch(t, db, fabric)
	roll := seedRoll(t, db, batch, "navy", models.GradeA, 100, time.Now().UTC())
	demand := makeDemand(t, db, fabric, "navy", 10)

	result, err := engine.ManualAllocate(demand.ID, []allocation.RollSelection{
		{RollID: roll.ID, Quantity: decimal.NewFromInt(60)},
	}, true)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.True(t, result[0].Taken.Equal(decimal.NewFromInt(10)))
	assert.True(t, reloadRoll(t, db, roll.ID).RemainingLength.Equal(decimal.NewFromInt(90)))
}

func TestManualAllocateRejectsMismatchedRoll(t *testing.T) {
	db := testutil.OpenDB(t)
	engine := newEngine(db)
	fabric := makeFabric(t, db, "PU-MIS")
	other := makeFabric(t, db, "PU-OTHER")
	batch := seedBatch(t, db, other)
	roll := seedRoll(t, db, batch, "navy", models.GradeA, 50, time.Now().UTC())
	demand := makeDemand(t, db, fabric, "navy", 20)

	_, err := engine.ManualAllocate(demand.ID, []allocation.RollSelection{
		{RollID: roll.ID, Quantity: decimal.NewFromInt(20)},
	}, true)
	assert.Error(t, err)
	assert.True(t, reloadRoll(t, db, roll.ID).RemainingLength.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, models.DemandStatusUnmet, reloadDemand(t, db, demand.ID).Status)
}

func TestConcurrentAllocationsNeverOverconsume(t *testing.T) {
	db := testutil.OpenDB(t)
	engine := newEngine(db)
	fabric := makeFabric(t, db, "PU-RACE")
	batch := seedBatch(t, db, fabric)
	roll := seedRoll(t, db, batch, "navy", models.GradeA, 50, time.Now().UTC())

	d1 := makeDemand(t, db, fabric, "navy", 30)
	d2 := makeDemand(t, db, fabric, "navy", 30)

	// Both allocations race for the same roll; the row lock serializes them,
	// so together they can never take more than the roll holds.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []uint{d1.ID, d2.ID} {
		wg.Add(1)
		go func(slot int, demandID uint) {
			defer wg.Done()
			_, errs[slot] = engine.Allocate(demandID, decimal.NewFromInt(30), true)
		}(i, id)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	after := reloadRoll(t, db, roll.ID)
	assert.True(t, after.RemainingLength.IsZero())
	assert.Equal(t, models.RollStatusAllocated, after.Status)

	total := reloadDemand(t, db, d1.ID).QtyAllocated.
		Add(reloadDemand(t, db, d2.ID).QtyAllocated)
	assert.True(t, total.Equal(decimal.NewFromInt(50)),
		"allocated %s from a 50 roll", total)
	assert.True(t, stockQty(t, db, fabric.ID, "navy").IsZero())
}

func TestManualAllocateLocksRollsInStableOrder(t *testing.T) {
	db := testutil.OpenDB(t)
	engine := newEngine(db)
	fabric := makeFabric(t, db, "PU-ORDER")
	batch := seedBatch(t, db, fabric)
	at := time.Now().UTC()
	first := seedRoll(t, db, batch, "navy", models.GradeA, 20, at)
	second := seedRoll(t, db, batch, "navy", models.GradeA, 20, at)
	demand := makeDemand(t, db, fabric, "navy", 40)

	// Selections arrive in reverse; the engine still locks and applies them
	// in ascending roll order so overlapping callers cannot deadlock.
	result, err := engine.ManualAllocate(demand.ID, []allocation.RollSelection{
		{RollID: second.ID, Quantity: decimal.NewFromInt(20)},
		{RollID: first.ID, Quantity: decimal.NewFromInt(20)},
	}, true)
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, first.ID, result[0].Roll.ID)
	assert.Equal(t, second.ID, result[1].Roll.ID)
	assert.Equal(t, models.DemandStatusFullyMet, reloadDemand(t, db, demand.ID).Status)
}

func TestArchiveExhaustedRolls(t *testing.T) {
	db := testutil.OpenDB(t)
	engine := newEngine(db)
	fabric := makeFabric(t, db, "PU-ARCH")
	batch := seedBatch(t, db, fabric)
	drained := seedRoll(t, db, batch, "navy", models.GradeA, 30, time.Now().UTC())
	live := seedRoll(t, db, batch, "navy", models.GradeA, 40, time.Now().UTC())
	demand := makeDemand(t, db, fabric, "navy", 30)

	_, err := engine.Allocate(demand.ID, decimal.NewFromInt(30), true)
	require.NoError(t, err)

	archived, err := engine.ArchiveExhausted(fabric.ID, true)
	require.NoError(t, err)
	assert.EqualValues(t, 1, archived)

	assert.True(t, reloadRoll(t, db, drained.ID).Archived)
	assert.False(t, reloadRoll(t, db, live.ID).Archived)

	// Nothing left to archive on a second pass.
	archived, err = engine.ArchiveExhausted(fabric.ID, true)
	require.NoError(t, err)
	assert.Zero(t, archived)

	_, err = engine.ArchiveExhausted(fabric.ID, false)
	assert.ErrorIs(t, err, models.ErrNotAuthorized)
}

func TestAllocationWritesMovementRecords(t *testing.T) {
	db := testutil.OpenDB(t)
	engine := newEngine(db)
	fabric := makeFabric(t, db, "PU-MOVE")
	batch := seedBatch(t, db, fabric)
	seedRoll(t, db, batch, "navy", models.GradeA, 50, time.Now().UTC())
	demand := makeDemand(t, db, fabric, "navy", 30)

	_, err := engine.Allocate(demand.ID, decimal.NewFromInt(30), true)
	require.NoError(t, err)

	var movement models.StockMovement
	err = db.Where("fabric_id = ? AND movement_type = ? AND ref_type = ? AND ref_id = ?",
		fabric.ID, models.MovementAllocation, models.RefTypeDemand, demand.ID).
		First(&movement).Error
	require.NoError(t, err)
	assert.True(t, movement.Quantity.Equal(decimal.NewFromInt(-30)))
	assert.NotEmpty(t, movement.MovementUID)
}
