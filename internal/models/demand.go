package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Demand status derives deterministically from the two quantities.
const (
	DemandStatusUnmet        = "unmet"
	DemandStatusPartiallyMet = "partially_met"
	DemandStatusFullyMet     = "fully_met"
)

// Demand is a quantity of a specific fabric+color owed to a customer.
// Only the allocation engine mutates QtyAllocated and Status.
type Demand struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	DemandNumber string          `gorm:"unique;not null" json:"demand_number"`
	FabricID     uint            `gorm:"not null;index" json:"fabric_id"`
	Color        string          `gorm:"type:varchar(50);not null" json:"color"`
	QtyRequested decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"qty_requested"`
	QtyAllocated decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"qty_allocated"`
	Status       string          `gorm:"type:varchar(20);not null;default:'unmet';index" json:"status"`
	CustomerRef  string          `json:"customer_ref"`
	CreatedAt    time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`

	Fabric *Fabric `gorm:"foreignKey:FabricID" json:"fabric,omitempty"`
}

// TableName specifies the table name for Demand model
func (Demand) TableName() string {
	return "demands"
}

// Remaining returns the still-unallocated quantity.
func (d *Demand) Remaining() decimal.Decimal {
	return d.QtyRequested.Sub(d.QtyAllocated)
}

// RefreshStatus recomputes the status from the quantities.
func (d *Demand) RefreshStatus() {
	switch {
	case d.QtyAllocated.GreaterThanOrEqual(d.QtyRequested):
		d.Status = DemandStatusFullyMet
	case d.QtyAllocated.IsPositive():
		d.Status = DemandStatusPartiallyMet
	default:
		d.Status = DemandStatusUnmet
	}
}
