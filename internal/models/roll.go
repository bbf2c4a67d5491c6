package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Roll status values. A roll is available only while its full length remains
// and no demand has touched it; exhausted rolls are allocated; coating inputs
// end up used.
const (
	RollStatusAvailable          = "available"
	RollStatusPartiallyAllocated = "partially_allocated"
	RollStatusAllocated          = "allocated"
	RollStatusUsed               = "used"
)

// Quality grades assigned at completion time.
const (
	GradeA = "A"
	GradeB = "B"
	GradeC = "C"
)

// Roll type derived from grade and declared length.
const (
	RollTypeStandard = "standard_length"
	RollTypeShort    = "short"
	RollTypeWastage  = "wastage"
)

// Roll is a physical, uniquely numbered unit of fabric. TotalLength is fixed
// at creation; only the allocation engine mutates RemainingLength and Status.
type Roll struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	RollNumber      string          `gorm:"unique;not null" json:"roll_number"`
	FabricID        uint            `gorm:"not null;index" json:"fabric_id"`
	FabricKind      string          `gorm:"type:varchar(20);not null" json:"fabric_kind"`
	Color           string          `gorm:"type:varchar(50);not null;index" json:"color"`
	Grade           string          `gorm:"type:varchar(1);not null" json:"grade"`
	RollType        string          `gorm:"type:varchar(20);not null" json:"roll_type"`
	TotalLength     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_length"`
	RemainingLength decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"remaining_length"`
	Status          string          `gorm:"type:varchar(30);not null;default:'available';index" json:"status"`
	BatchID         uint            `gorm:"not null;index" json:"batch_id"`
	DemandID        *uint           `gorm:"index" json:"demand_id,omitempty"`
	ReservedOrderID *uint           `gorm:"index" json:"reserved_order_id,omitempty"`
	Archived        bool            `gorm:"default:false" json:"archived"`
	CreatedAt       time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`

	Fabric *Fabric          `gorm:"foreignKey:FabricID" json:"fabric,omitempty"`
	Batch  *ProductionBatch `gorm:"foreignKey:BatchID" json:"batch,omitempty"`
}

// TableName specifies the table name for Roll model
func (Roll) TableName() string {
	return "rolls"
}

// Allocatable reports whether the roll can still feed customer demand.
func (r *Roll) Allocatable() bool {
	return (r.Status == RollStatusAvailable || r.Status == RollStatusPartiallyAllocated) &&
		r.RemainingLength.IsPositive() &&
		r.ReservedOrderID == nil
}

// ApplyTake consumes qty from the roll and keeps status consistent with the
// remaining length. qty must already be capped at RemainingLength.
func (r *Roll) ApplyTake(qty decimal.Decimal, demandID uint) {
	r.RemainingLength = r.RemainingLength.Sub(qty)
	d := demandID
	r.DemandID = &d
	if r.RemainingLength.IsZero() {
		r.Status = RollStatusAllocated
	} else {
		r.Status = RollStatusPartiallyAllocated
	}
}
