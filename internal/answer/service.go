// Package answer records the responses of an inspection: one row per
// question, rewritten in place on every change.
package answer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"caex-inspector-backend/internal/apperr"
	"caex-inspector-backend/internal/model"
	"caex-inspector-backend/internal/override"
	"caex-inspector-backend/internal/store"
	"caex-inspector-backend/internal/watch"
)

// SaveCommand is the input of SaveAnswer.
type SaveCommand struct {
	InspectionID int64             `json:"inspection_id" validate:"gt=0"`
	QuestionID   int64             `json:"question_id" validate:"gt=0"`
	State        model.AnswerState `json:"state" validate:"required,oneof=CONFORME NON_CONFORME ACCEPTED REJECTED"`
	Comments     string            `json:"comments" validate:"max=2000"`
	ActionType   *model.ActionType `json:"action_type" validate:"omitempty,oneof=IMMEDIATE SCHEDULED"`
	ReferenceID  *string           `json:"reference_id" validate:"omitempty,max=64"`
}

// RemediationCommand is the input of UpdateRemediation.
type RemediationCommand struct {
	AnswerID    int64             `json:"answer_id" validate:"gt=0"`
	Comments    string            `json:"comments" validate:"max=2000"`
	ActionType  *model.ActionType `json:"action_type" validate:"omitempty,oneof=IMMEDIATE SCHEDULED"`
	ReferenceID *string           `json:"reference_id" validate:"omitempty,max=64"`
}

// Service implements the answer record operations.
type Service struct {
	store    store.Store
	cache    *override.Cache
	hub      *watch.Hub
	photos   PhotoStorage
	log      *logrus.Logger
	validate *validator.Validate
	locks    *keyLock
	now      func() time.Time
}

// NewService wires the answer service. photos may be nil when attachments
// are not used.
func NewService(s store.Store, cache *override.Cache, hub *watch.Hub, photos PhotoStorage, log *logrus.Logger) *Service {
	return &Service{
		store:    s,
		cache:    cache,
		hub:      hub,
		photos:   photos,
		log:      log,
		validate: validator.New(),
		locks:    newKeyLock(),
		now:      time.Now,
	}
}

func answerKey(inspectionID, questionID int64) string {
	return fmt.Sprintf("%d:%d", inspectionID, questionID)
}

// SaveAnswer inserts or overwrites the answer of (inspection, question) and
// returns its id. Only OPEN inspections accept answers. Writes for the same
// pair are serialized.
func (s *Service) SaveAnswer(ctx context.Context, cmd SaveCommand) (int64, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return 0, apperr.FromValidator(err)
	}

	unlock := s.locks.Lock(answerKey(cmd.InspectionID, cmd.QuestionID))
	defer unlock()

	insp, err := s.store.GetInspection(ctx, cmd.InspectionID)
	if err != nil {
		return 0, err
	}
	if insp.State != model.StateOpen {
		return 0, apperr.InvalidState("inspection %d is %s, answers can only change while it is %s", insp.ID, insp.State, model.StateOpen)
	}
	q, err := s.store.GetQuestion(ctx, cmd.QuestionID)
	if err != nil {
		return 0, err
	}
	if !q.Model.Applies(insp.Equipment.Model) || !q.Category.Model.Applies(insp.Equipment.Model) {
		return 0, apperr.Validation("question %d does not apply to model %s", q.ID, insp.Equipment.Model)
	}

	polarity := model.VocabularyFor(insp.Type).Polarity(cmd.State)
	if polarity == model.PolarityUnknown {
		return 0, apperr.Validation("state %s is not valid for a %s inspection", cmd.State, insp.Type)
	}
	comments := strings.TrimSpace(cmd.Comments)
	if polarity == model.PolarityNegative && comments == "" {
		return 0, apperr.Validation("comments are required for a %s answer", cmd.State)
	}

	writeStarted := s.now()
	var saved model.Answer
	err = s.store.InTx(ctx, func(tx store.Store) error {
		cur, err := tx.GetInspection(ctx, cmd.InspectionID)
		if err != nil {
			return err
		}
		if cur.State != model.StateOpen {
			return apperr.InvalidState("inspection %d is %s, answers can only change while it is %s", cur.ID, cur.State, model.StateOpen)
		}

		existing, err := tx.GetAnswer(ctx, cmd.InspectionID, cmd.QuestionID)
		if err != nil && !apperr.IsKind(err, apperr.KindNotFound) {
			return err
		}
		a := model.Answer{InspectionID: cmd.InspectionID, QuestionID: cmd.QuestionID}
		if existing != nil {
			a = *existing
		}
		a.State = cmd.State
		a.UpdatedAt = writeStarted
		if polarity == model.PolarityPositive {
			a.Comments = ""
			a.ActionType = nil
			a.ReferenceID = nil
		} else {
			a.Comments = comments
			if cmd.ActionType != nil {
				a.ActionType = cmd.ActionType
			}
			if ref := trimmed(cmd.ReferenceID); ref != nil {
				a.ReferenceID = ref
			}
		}

		if existing == nil {
			a.CreatedAt = writeStarted
			if err := tx.CreateAnswer(ctx, &a); err != nil {
				return err
			}
		} else if err := tx.UpdateAnswer(ctx, &a); err != nil {
			return err
		}
		saved = a
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.cache.Confirm(saved.InspectionID, saved.QuestionID, saved.State, writeStarted)
	s.hub.Publish(watch.AnswersTopic(saved.InspectionID), "save", saved.ID)
	s.log.WithFields(logrus.Fields{
		"module":        "answer",
		"inspection_id": saved.InspectionID,
		"question_id":   saved.QuestionID,
		"answer_id":     saved.ID,
		"state":         saved.State,
	}).Info("answer saved")
	return saved.ID, nil
}

// UpdateRemediation completes the remediation data of a negative answer in
// the summary stage. Reception answers need an action type and a reference
// id; delivery answers accept either being unset. Blank comments keep the
// current ones.
func (s *Service) UpdateRemediation(ctx context.Context, cmd RemediationCommand) error {
	if err := s.validate.Struct(cmd); err != nil {
		return apperr.FromValidator(err)
	}

	a, err := s.store.GetAnswerByID(ctx, cmd.AnswerID)
	if err != nil {
		return err
	}
	unlock := s.locks.Lock(answerKey(a.InspectionID, a.QuestionID))
	defer unlock()

	// Reload under the lock; a concurrent save may have changed the state.
	if a, err = s.store.GetAnswerByID(ctx, cmd.AnswerID); err != nil {
		return err
	}
	insp, err := s.store.GetInspection(ctx, a.InspectionID)
	if err != nil {
		return err
	}
	if insp.State == model.StateClosed {
		return apperr.InvalidState("inspection %d is closed", insp.ID)
	}
	if model.VocabularyFor(insp.Type).Polarity(a.State) != model.PolarityNegative {
		return apperr.InvalidState("answer %d is %s, only negative answers carry remediation", a.ID, a.State)
	}

	ref := trimmed(cmd.ReferenceID)
	if insp.Type == model.TypeReception {
		if cmd.ActionType == nil || !cmd.ActionType.Valid() {
			return apperr.Validation("action type must be %s or %s", model.ActionImmediate, model.ActionScheduled)
		}
		if ref == nil {
			return apperr.Validation("a work order or notice reference is required")
		}
	}

	if c := strings.TrimSpace(cmd.Comments); c != "" {
		a.Comments = c
	}
	a.ActionType = cmd.ActionType
	a.ReferenceID = ref
	a.UpdatedAt = s.now()
	if err := s.store.UpdateAnswer(ctx, a); err != nil {
		return err
	}

	s.hub.Publish(watch.AnswersTopic(a.InspectionID), "remediation", a.ID)
	s.log.WithFields(logrus.Fields{
		"module":        "answer",
		"inspection_id": a.InspectionID,
		"answer_id":     a.ID,
	}).Info("remediation updated")
	return nil
}

// GetAnswer returns the answer of the pair, or nil when it has not been answered.
func (s *Service) GetAnswer(ctx context.Context, inspectionID, questionID int64) (*model.Answer, error) {
	a, err := s.store.GetAnswer(ctx, inspectionID, questionID)
	if apperr.IsKind(err, apperr.KindNotFound) {
		return nil, nil
	}
	return a, err
}

func (s *Service) GetAnswersForInspection(ctx context.Context, inspectionID int64) ([]model.Answer, error) {
	return s.store.ListAnswers(ctx, store.AnswerFilter{InspectionID: inspectionID})
}

func (s *Service) GetAnswersByState(ctx context.Context, inspectionID int64, state model.AnswerState) ([]model.Answer, error) {
	return s.store.ListAnswers(ctx, store.AnswerFilter{InspectionID: inspectionID, States: []model.AnswerState{state}})
}

// GetAnswerDetails returns answers joined with their question and category.
// Empty states and a zero categoryID do not filter.
func (s *Service) GetAnswerDetails(ctx context.Context, inspectionID int64, states []model.AnswerState, categoryID int64) ([]model.AnswerDetail, error) {
	return s.store.ListAnswerDetails(ctx, store.AnswerFilter{InspectionID: inspectionID, States: states, CategoryID: categoryID})
}

func (s *Service) CountAnswers(ctx context.Context, inspectionID int64) (int64, error) {
	return s.store.CountAnswers(ctx, inspectionID)
}

// CountAnswersByModel returns how many questions an inspection of m must answer.
func (s *Service) CountAnswersByModel(ctx context.Context, m model.EquipmentModel) (int64, error) {
	if !m.IsKnown() {
		return 0, apperr.Validation("unknown equipment model %q", m)
	}
	return s.store.CountQuestionsForModel(ctx, m)
}

// GetAnswerHistory returns earlier answers to the same question on the same
// truck, newest first. No states means every negative state.
func (s *Service) GetAnswerHistory(ctx context.Context, equipmentID, questionID, excludingInspectionID int64, states []model.AnswerState) ([]model.AnswerDetail, error) {
	if len(states) == 0 {
		states = model.NegativeStates
	}
	return s.store.AnswerHistory(ctx, store.HistoryQuery{
		EquipmentID:         equipmentID,
		QuestionID:          questionID,
		ExcludeInspectionID: excludingInspectionID,
		States:              states,
	})
}

// RecordIntent caches the state the user just picked, ahead of the save.
func (s *Service) RecordIntent(ctx context.Context, inspectionID, questionID int64, state model.AnswerState) (override.Intent, error) {
	insp, err := s.store.GetInspection(ctx, inspectionID)
	if err != nil {
		return override.Intent{}, err
	}
	if model.VocabularyFor(insp.Type).Polarity(state) == model.PolarityUnknown {
		return override.Intent{}, apperr.Validation("state %s is not valid for a %s inspection", state, insp.Type)
	}
	in := s.cache.RecordIntent(inspectionID, questionID, state)
	s.hub.Publish(watch.AnswersTopic(inspectionID), "intent", questionID)
	return in, nil
}

// EnsureNegativeState re-asserts the cached negative intent of answerID,
// e.g. after returning from the camera.
func (s *Service) EnsureNegativeState(ctx context.Context, answerID int64) (bool, error) {
	a, err := s.store.GetAnswerByID(ctx, answerID)
	if err != nil {
		return false, err
	}
	insp, err := s.store.GetInspection(ctx, a.InspectionID)
	if err != nil {
		return false, err
	}
	negative := model.VocabularyFor(insp.Type).Negative
	wrote := s.cache.EnsureNegativeState(a.InspectionID, a.QuestionID, a.ID, negative)
	if wrote {
		s.log.WithFields(logrus.Fields{
			"module":        "answer",
			"inspection_id": a.InspectionID,
			"answer_id":     a.ID,
		}).Debug("negative intent restored")
	}
	return wrote, nil
}

// Row is what a checklist row renders: the durable answer, if any, merged
// with a pending intent.
type Row struct {
	QuestionID int64                `json:"question_id"`
	Answer     *model.Answer        `json:"answer,omitempty"`
	Resolved   *override.Resolution `json:"resolved,omitempty"`
}

// ResolveRows merges the durable answers of an inspection with the cached
// intents for every question of its model, in checklist order.
func (s *Service) ResolveRows(ctx context.Context, inspectionID int64) ([]Row, error) {
	insp, err := s.store.GetInspection(ctx, inspectionID)
	if err != nil {
		return nil, err
	}
	questions, err := s.store.ListQuestions(ctx, insp.Equipment.Model, 0)
	if err != nil {
		return nil, err
	}
	answers, err := s.GetAnswersForInspection(ctx, inspectionID)
	if err != nil {
		return nil, err
	}
	byQuestion := make(map[int64]*model.Answer, len(answers))
	for i := range answers {
		byQuestion[answers[i].QuestionID] = &answers[i]
	}

	rows := make([]Row, 0, len(questions))
	for _, q := range questions {
		row := Row{QuestionID: q.ID, Answer: byQuestion[q.ID]}
		if r, ok := s.cache.Resolve(inspectionID, q.ID, row.Answer); ok {
			row.Resolved = &r
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ClearIntents drops the cached intents of an inspection whose screen was closed.
func (s *Service) ClearIntents(inspectionID int64) int {
	return s.cache.Clear(inspectionID)
}

func trimmed(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}
