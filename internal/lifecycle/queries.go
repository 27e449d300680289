package lifecycle

import (
	"context"

	"caex-inspector-backend/internal/model"
	"caex-inspector-backend/internal/store"
	"caex-inspector-backend/internal/watch"
)

// OpenStates are the states of an inspection still in progress.
var OpenStates = []model.InspectionState{model.StateOpen, model.StatePendingClosure}

// List returns inspections matching f, newest first.
func (m *Manager) List(ctx context.Context, f store.InspectionFilter) ([]model.Inspection, error) {
	return m.store.ListInspections(ctx, f)
}

// ListOpen returns the OPEN and PENDING_CLOSURE inspections.
func (m *Manager) ListOpen(ctx context.Context) ([]model.Inspection, error) {
	return m.List(ctx, store.InspectionFilter{States: OpenStates})
}

func (m *Manager) ListByState(ctx context.Context, state model.InspectionState) ([]model.Inspection, error) {
	return m.List(ctx, store.InspectionFilter{States: []model.InspectionState{state}})
}

func (m *Manager) ListByTypeAndState(ctx context.Context, typ model.InspectionType, state model.InspectionState) ([]model.Inspection, error) {
	return m.List(ctx, store.InspectionFilter{Type: typ, States: []model.InspectionState{state}})
}

func (m *Manager) ListByModelStateAndType(ctx context.Context, em model.EquipmentModel, state model.InspectionState, typ model.InspectionType) ([]model.Inspection, error) {
	return m.List(ctx, store.InspectionFilter{Model: em, Type: typ, States: []model.InspectionState{state}})
}

// Watch streams the result of List(f) again after every inspection change.
func (m *Manager) Watch(ctx context.Context, f store.InspectionFilter) (<-chan []model.Inspection, <-chan error) {
	return watch.Stream(ctx, m.hub, watch.TopicInspections, func(ctx context.Context) ([]model.Inspection, error) {
		return m.List(ctx, f)
	})
}
