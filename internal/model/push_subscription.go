package model

import "time"

// PushSubscription holds the information for a browser push subscription
// of a supervisor following a set of trucks.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`

	// Associations
	Equipment []*Equipment `gorm:"many2many:subscription_equipment_mapping;"`
}
