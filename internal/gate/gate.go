// Package gate decides whether an inspection may be closed and whether its
// flagged answers are ready for the final report.
package gate

import (
	"context"
	"strings"

	"caex-inspector-backend/internal/apperr"
	"caex-inspector-backend/internal/model"
	"caex-inspector-backend/internal/store"
)

// DefaultActionType applies to negative answers saved without an action type.
const DefaultActionType = model.ActionImmediate

// Completion compares the answers of an inspection with the questions of
// its equipment model.
type Completion struct {
	InspectionID int64 `json:"inspection_id"`
	Answered     int64 `json:"answered"`
	Required     int64 `json:"required"`
	Complete     bool  `json:"complete"`
}

// Gate runs its checks against s, which may be bound to a transaction.
type Gate struct {
	store store.Store
}

func New(s store.Store) *Gate {
	return &Gate{store: s}
}

// Completion counts answers against applicable questions. This is a count
// comparison; uniqueness of (inspection, question) keeps it exact.
func (g *Gate) Completion(ctx context.Context, inspectionID int64) (Completion, error) {
	insp, err := g.store.GetInspection(ctx, inspectionID)
	if err != nil {
		return Completion{}, err
	}
	answered, err := g.store.CountAnswers(ctx, inspectionID)
	if err != nil {
		return Completion{}, err
	}
	required, err := g.store.CountQuestionsForModel(ctx, insp.Equipment.Model)
	if err != nil {
		return Completion{}, err
	}
	return Completion{
		InspectionID: inspectionID,
		Answered:     answered,
		Required:     required,
		Complete:     answered >= required,
	}, nil
}

func (g *Gate) IsQuestionnaireComplete(ctx context.Context, inspectionID int64) (bool, error) {
	c, err := g.Completion(ctx, inspectionID)
	return c.Complete, err
}

// FindIncompleteNegativeAnswers returns the ids of negative answers that lack
// a work-order reference. A missing action type does not make an answer
// incomplete; EffectiveActionType supplies the default.
func (g *Gate) FindIncompleteNegativeAnswers(ctx context.Context, inspectionID int64) ([]int64, error) {
	answers, err := g.store.ListAnswers(ctx, store.AnswerFilter{InspectionID: inspectionID, States: model.NegativeStates})
	if err != nil {
		return nil, err
	}
	ids := []int64{}
	for _, a := range answers {
		if !HasReference(a) {
			ids = append(ids, a.ID)
		}
	}
	return ids, nil
}

// HasReference reports whether a carries a non-blank reference id.
func HasReference(a model.Answer) bool {
	return a.ReferenceID != nil && strings.TrimSpace(*a.ReferenceID) != ""
}

// EffectiveActionType returns the action type of a, or the default when unset.
func EffectiveActionType(a model.Answer) model.ActionType {
	if a.ActionType == nil || !a.ActionType.Valid() {
		return DefaultActionType
	}
	return *a.ActionType
}

// ReportItems returns the negative answers of an inspection with their
// details, ready for the report renderer. It fails while any of them lacks
// a reference id.
func (g *Gate) ReportItems(ctx context.Context, inspectionID int64) ([]model.AnswerDetail, error) {
	if _, err := g.store.GetInspection(ctx, inspectionID); err != nil {
		return nil, err
	}
	items, err := g.store.ListAnswerDetails(ctx, store.AnswerFilter{InspectionID: inspectionID, States: model.NegativeStates})
	if err != nil {
		return nil, err
	}
	missing := 0
	for i := range items {
		if !HasReference(items[i].Answer) {
			missing++
			continue
		}
		at := EffectiveActionType(items[i].Answer)
		items[i].ActionType = &at
	}
	if missing > 0 {
		return nil, apperr.Validation("%d flagged answer(s) still need a work order or notice reference", missing)
	}
	return items, nil
}
