package model

import "time"

// InspectionType distinguishes incoming from outgoing inspections.
type InspectionType string

const (
	TypeReception InspectionType = "RECEPTION"
	TypeDelivery  InspectionType = "DELIVERY"
)

// InspectionState is the lifecycle state of an inspection.
type InspectionState string

const (
	StateOpen           InspectionState = "OPEN"
	StatePendingClosure InspectionState = "PENDING_CLOSURE"
	StateClosed         InspectionState = "CLOSED"
)

// Inspection is a checklist run against one piece of equipment.
type Inspection struct {
	ID              int64           `gorm:"primaryKey" json:"id"`
	EquipmentID     int64           `gorm:"index;not null" json:"equipment_id"`
	Type            InspectionType  `gorm:"size:16;index;not null" json:"type"`
	State           InspectionState `gorm:"size:16;index;not null" json:"state"`
	InspectorName   string          `gorm:"size:128;not null" json:"inspector_name"`
	SupervisorName  string          `gorm:"size:128;not null" json:"supervisor_name"`
	GeneralComments string          `gorm:"type:text;not null;default:''" json:"general_comments"`
	CreatedAt       time.Time       `gorm:"index;not null" json:"created_at"`
	CompletedAt     *time.Time      `json:"completed_at"`

	// Set only on DELIVERY inspections. Unique: one delivery per reception.
	ReceptionID *int64 `gorm:"uniqueIndex" json:"reception_id,omitempty"`

	// Associations
	Equipment Equipment `gorm:"constraint:OnDelete:CASCADE" json:"equipment"`
}

// NextState returns the state a successful close moves the inspection to.
func (i *Inspection) NextState() InspectionState {
	if i.Type == TypeReception {
		return StatePendingClosure
	}
	return StateClosed
}
