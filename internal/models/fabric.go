package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FabricKind distinguishes greige (loom output) from coated finished fabric.
const (
	FabricKindRaw      = "raw"
	FabricKindFinished = "finished"
)

// Fabric is a catalogue entry for one weave/coating article.
// Finished fabrics reference the raw fabric that feeds their coating line.
type Fabric struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	Code           string          `gorm:"unique;not null" json:"code"`
	Name           string          `gorm:"not null" json:"name"`
	Kind           string          `gorm:"type:varchar(20);not null;index" json:"kind"`
	StandardLength decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"standard_length"`
	RawFabricID    *uint           `gorm:"index" json:"raw_fabric_id,omitempty"`
	IsActive       bool            `gorm:"default:true" json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`

	RawFabric *Fabric `gorm:"foreignKey:RawFabricID" json:"raw_fabric,omitempty"`
}

// TableName specifies the table name for Fabric model
func (Fabric) TableName() string {
	return "fabrics"
}
