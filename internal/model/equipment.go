package model

import "time"

// EquipmentModel identifies a haul truck model.
type EquipmentModel string

const (
	Model797F  EquipmentModel = "797F"
	Model798AC EquipmentModel = "798AC"

	// ModelAll is the applicability filter for reference data shared by every model.
	ModelAll EquipmentModel = "ALL"
)

// KnownModels lists the models the fleet is made of, in display order.
var KnownModels = []EquipmentModel{Model797F, Model798AC}

// IsKnown reports whether m is one of KnownModels.
func (m EquipmentModel) IsKnown() bool {
	for _, k := range KnownModels {
		if k == m {
			return true
		}
	}
	return false
}

// Applies reports whether a reference-data filter matches the given equipment model.
func (m EquipmentModel) Applies(to EquipmentModel) bool {
	return m == ModelAll || m == to
}

// Equipment represents a CAEX haul truck.
type Equipment struct {
	ID        int64          `gorm:"primaryKey" json:"id"`
	Number    int            `gorm:"uniqueIndex;not null" json:"number"`
	Model     EquipmentModel `gorm:"size:16;index;not null" json:"model"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
}

// EquipmentInfo is an Equipment enriched with a summary of its inspections.
type EquipmentInfo struct {
	Equipment
	TotalInspections   int64            `json:"total_inspections"`
	LastInspectionAt   *time.Time       `json:"last_inspection_at"`
	LastInspectionType *InspectionType  `json:"last_inspection_type"`
	LastState          *InspectionState `json:"last_state"`
	HasPending         bool             `json:"has_pending"`
}

// TableName keeps the uncountable noun as the table name.
func (Equipment) TableName() string {
	return "equipment"
}
