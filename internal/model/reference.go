package model

// Category groups questions of the checklist. Seeded once.
type Category struct {
	ID    int64          `gorm:"primaryKey" json:"id"`
	Name  string         `gorm:"uniqueIndex;size:128;not null" json:"name"`
	Order int            `gorm:"column:display_order;not null" json:"order"`
	Model EquipmentModel `gorm:"size:16;not null" json:"model"`

	Questions []Question `gorm:"foreignKey:CategoryID" json:"-"`
}

// Question is a single checklist item. Seeded once.
type Question struct {
	ID         int64          `gorm:"primaryKey" json:"id"`
	CategoryID int64          `gorm:"index;not null" json:"category_id"`
	Text       string         `gorm:"size:512;not null" json:"text"`
	Order      int            `gorm:"column:display_order;not null" json:"order"`
	Model      EquipmentModel `gorm:"size:16;not null" json:"model"`

	Category Category `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
