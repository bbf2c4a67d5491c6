package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stock movement types. production_in credits a completed batch, allocation
// debits customer allocations, return credits stock handed back.
const (
	MovementProductionIn = "production_in"
	MovementAllocation   = "allocation"
	MovementReturn       = "return"
)

// Movement reference types.
const (
	RefTypeOrder  = "order"
	RefTypeDemand = "demand"
)

// StockAggregate caches the total remaining length per fabric+color. It is a
// materialized view over the roll ledger, never the source of truth; every
// mutation goes through the stock ledger inside the same transaction that
// mutates the rolls.
type StockAggregate struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	FabricID  uint            `gorm:"not null;uniqueIndex:idx_stock_fabric_color" json:"fabric_id"`
	Color     string          `gorm:"type:varchar(50);not null;uniqueIndex:idx_stock_fabric_color" json:"color"`
	Quantity  decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"quantity"`
	UpdatedAt time.Time       `json:"updated_at"`

	Fabric *Fabric `gorm:"foreignKey:FabricID" json:"fabric,omitempty"`
}

// TableName specifies the table name for StockAggregate model
func (StockAggregate) TableName() string {
	return "stock_aggregates"
}

// StockMovement is an append-only audit record of one quantity change.
// Rows are never updated or deleted.
type StockMovement struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	MovementUID  string          `gorm:"type:varchar(36);unique;not null" json:"movement_uid"`
	FabricID     uint            `gorm:"not null;index" json:"fabric_id"`
	Color        string          `gorm:"type:varchar(50);not null" json:"color"`
	Quantity     decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"quantity"` // signed delta
	MovementType string          `gorm:"type:varchar(20);not null;index" json:"movement_type"`
	RefType      string          `gorm:"type:varchar(20);not null" json:"ref_type"`
	RefID        uint            `gorm:"not null;index" json:"ref_id"`
	CreatedAt    time.Time       `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for StockMovement model
func (StockMovement) TableName() string {
	return "stock_movements"
}
