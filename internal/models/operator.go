package models

import "time"

// OperatorAuth holds the bcrypt hash of the shared operator PIN that gates
// state-mutating operations. Real authentication lives in the application
// layer; the engine only needs the authorized-or-not answer.
type OperatorAuth struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PINHash   string    `gorm:"not null" json:"-"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for OperatorAuth model
func (OperatorAuth) TableName() string {
	return "operator_auth"
}
