// Package carryforward finds the questions a delivery inspection must
// highlight because they were non-conforming at reception.
package carryforward

import (
	"context"
	"sort"

	"caex-inspector-backend/internal/apperr"
	"caex-inspector-backend/internal/model"
	"caex-inspector-backend/internal/store"
	"caex-inspector-backend/internal/watch"
)

// Item is a reception finding carried into the delivery.
type Item struct {
	QuestionID        int64   `json:"question_id"`
	CategoryID        int64   `json:"category_id"`
	ReceptionAnswerID int64   `json:"reception_answer_id"`
	Comments          string  `json:"comments"`
	ReferenceID       *string `json:"reference_id,omitempty"`
}

// Set is the carry-forward set of a delivery inspection.
type Set struct {
	DeliveryID  int64          `json:"delivery_id"`
	ReceptionID int64          `json:"reception_id,omitempty"`
	QuestionIDs []int64        `json:"question_ids"`
	Items       map[int64]Item `json:"items"`
}

// Contains reports whether questionID was non-conforming at reception.
func (s Set) Contains(questionID int64) bool {
	_, ok := s.Items[questionID]
	return ok
}

// ByCategory splits the set so each category view can mark its own subset.
func (s Set) ByCategory() map[int64][]int64 {
	out := make(map[int64][]int64)
	for _, qid := range s.QuestionIDs {
		it := s.Items[qid]
		out[it.CategoryID] = append(out[it.CategoryID], qid)
	}
	return out
}

// Question is a checklist question annotated for the delivery screen.
type Question struct {
	model.Question
	Highlighted       bool   `json:"highlighted"`
	ReceptionComments string `json:"reception_comments,omitempty"`
}

// Resolver derives carry-forward sets. It never writes.
type Resolver struct {
	store store.Store
	hub   *watch.Hub
}

func NewResolver(s store.Store, hub *watch.Hub) *Resolver {
	return &Resolver{store: s, hub: hub}
}

// Resolve returns the question ids whose reception answer is negative. A
// delivery without a linked reception has an empty set.
func (r *Resolver) Resolve(ctx context.Context, deliveryID int64) (Set, error) {
	delivery, err := r.store.GetInspection(ctx, deliveryID)
	if err != nil {
		return Set{}, err
	}
	if delivery.Type != model.TypeDelivery {
		return Set{}, apperr.InvalidState("inspection %d is a %s inspection, not a delivery", delivery.ID, delivery.Type)
	}
	set := Set{DeliveryID: deliveryID, QuestionIDs: []int64{}, Items: map[int64]Item{}}
	if delivery.ReceptionID == nil {
		return set, nil
	}
	set.ReceptionID = *delivery.ReceptionID
	return r.fill(ctx, set)
}

func (r *Resolver) fill(ctx context.Context, set Set) (Set, error) {
	negative := model.VocabularyFor(model.TypeReception).Negative
	details, err := r.store.ListAnswerDetails(ctx, store.AnswerFilter{
		InspectionID: set.ReceptionID,
		States:       []model.AnswerState{negative},
	})
	if err != nil {
		return Set{}, err
	}
	set.QuestionIDs = make([]int64, 0, len(details))
	set.Items = make(map[int64]Item, len(details))
	for _, d := range details {
		set.QuestionIDs = append(set.QuestionIDs, d.QuestionID)
		set.Items[d.QuestionID] = Item{
			QuestionID:        d.QuestionID,
			CategoryID:        d.CategoryID,
			ReceptionAnswerID: d.ID,
			Comments:          d.Comments,
			ReferenceID:       d.ReferenceID,
		}
	}
	sort.Slice(set.QuestionIDs, func(i, j int) bool { return set.QuestionIDs[i] < set.QuestionIDs[j] })
	return set, nil
}

// Annotate returns the delivery's questions, optionally of one category,
// with the carried-forward ones highlighted.
func (r *Resolver) Annotate(ctx context.Context, deliveryID, categoryID int64) ([]Question, error) {
	set, err := r.Resolve(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	delivery, err := r.store.GetInspection(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	questions, err := r.store.ListQuestions(ctx, delivery.Equipment.Model, categoryID)
	if err != nil {
		return nil, err
	}
	out := make([]Question, 0, len(questions))
	for _, q := range questions {
		aq := Question{Question: q}
		if it, ok := set.Items[q.ID]; ok {
			aq.Highlighted = true
			aq.ReceptionComments = it.Comments
		}
		out = append(out, aq)
	}
	return out, nil
}

// Watch re-emits the set whenever the linked reception's answers change.
func (r *Resolver) Watch(ctx context.Context, deliveryID int64) (<-chan Set, <-chan error) {
	initial, err := r.Resolve(ctx, deliveryID)
	if err != nil {
		out := make(chan Set)
		errc := make(chan error, 1)
		errc <- err
		close(out)
		close(errc)
		return out, errc
	}
	return watch.Stream(ctx, r.hub, watch.AnswersTopic(initial.ReceptionID), func(ctx context.Context) (Set, error) {
		if initial.ReceptionID == 0 {
			return initial, nil
		}
		return r.fill(ctx, Set{DeliveryID: deliveryID, ReceptionID: initial.ReceptionID})
	})
}
