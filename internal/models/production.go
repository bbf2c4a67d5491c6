package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Production order kinds: raw weaving feeds finish coating.
const (
	OrderKindWeaving = "raw_weaving"
	OrderKindCoating = "finish_coating"
)

// Production order lifecycle states. A coating order with an upstream link
// starts in waiting_materials and only reaches pending once the upstream
// weaving order completes.
const (
	OrderStatusWaitingMaterials = "waiting_materials"
	OrderStatusPending          = "pending"
	OrderStatusInProgress       = "in_progress"
	OrderStatusOnHold           = "on_hold"
	OrderStatusCompleted        = "completed"
)

// ProductionOrder is a unit of manufacturing work.
type ProductionOrder struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	OrderNumber     string          `gorm:"unique;not null" json:"order_number"`
	Kind            string          `gorm:"type:varchar(20);not null;index" json:"kind"`
	FabricID        uint            `gorm:"not null;index" json:"fabric_id"`
	Color           string          `gorm:"type:varchar(50);not null" json:"color"`
	RequiredQty     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"required_qty"`
	ProducedQty     decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"produced_qty"`
	Status          string          `gorm:"type:varchar(30);not null;default:'pending';index" json:"status"`
	UpstreamOrderID *uint           `gorm:"index" json:"upstream_order_id,omitempty"`
	DemandID        *uint           `gorm:"index" json:"demand_id,omitempty"`
	HeldFromStatus  string          `gorm:"type:varchar(30)" json:"-"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	Notes           string          `json:"notes"`
	LockVersion     int64           `gorm:"not null;default:1" json:"-"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`

	Fabric        *Fabric          `gorm:"foreignKey:FabricID" json:"fabric,omitempty"`
	UpstreamOrder *ProductionOrder `gorm:"foreignKey:UpstreamOrderID" json:"upstream_order,omitempty"`
}

// TableName specifies the table name for ProductionOrder model
func (ProductionOrder) TableName() string {
	return "production_orders"
}

// ProductionBatch records one completion event: the grading breakdown that
// produced a set of rolls. The raw breakdown payload is kept as JSONB for
// audit and re-verification.
type ProductionBatch struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	BatchNumber string          `gorm:"unique;not null" json:"batch_number"`
	OrderID     uint            `gorm:"not null;index" json:"order_id"`
	FabricID    uint            `gorm:"not null;index" json:"fabric_id"`
	Color       string          `gorm:"type:varchar(50);not null" json:"color"`
	TotalLength decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_length"`
	GradeATotal decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"grade_a_total"`
	GradeBTotal decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"grade_b_total"`
	GradeCTotal decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"grade_c_total"`
	Breakdown   datatypes.JSON  `gorm:"type:jsonb" json:"breakdown"`
	CreatedAt   time.Time       `json:"created_at"`

	Order *ProductionOrder `gorm:"foreignKey:OrderID" json:"order,omitempty"`
	Rolls []Roll           `gorm:"foreignKey:BatchID" json:"rolls,omitempty"`
}

// TableName specifies the table name for ProductionBatch model
func (ProductionBatch) TableName() string {
	return "production_batches"
}
