package store

import "caex-inspector-backend/internal/model"

// InspectionFilter narrows ListInspections. Zero values do not filter.
type InspectionFilter struct {
	States      []model.InspectionState
	Type        model.InspectionType
	Model       model.EquipmentModel
	EquipmentID int64
}

// AnswerFilter narrows answer listings. InspectionID is required.
type AnswerFilter struct {
	InspectionID int64
	States       []model.AnswerState
	CategoryID   int64
}

// HistoryQuery selects past answers of the same truck and question.
type HistoryQuery struct {
	EquipmentID         int64
	QuestionID          int64
	ExcludeInspectionID int64
	States              []model.AnswerState
}

// applicableModels returns the reference-data filters that match m.
func applicableModels(m model.EquipmentModel) []model.EquipmentModel {
	return []model.EquipmentModel{model.ModelAll, m}
}

// EquipmentStat aggregates the inspections of one truck.
type EquipmentStat struct {
	EquipmentID int64
	Total       int64
	Active      int64
}
