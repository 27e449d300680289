// Package lifecycle creates inspections and moves them through
// OPEN -> PENDING_CLOSURE -> CLOSED (reception) and OPEN -> CLOSED (delivery).
package lifecycle

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"caex-inspector-backend/internal/apperr"
	"caex-inspector-backend/internal/gate"
	"caex-inspector-backend/internal/model"
	"caex-inspector-backend/internal/notification"
	"caex-inspector-backend/internal/override"
	"caex-inspector-backend/internal/store"
	"caex-inspector-backend/internal/watch"
)

// Notifier receives inspections that reached PENDING_CLOSURE or CLOSED.
type Notifier interface {
	Dispatch(ev notification.Event)
}

// FileRemover deletes the files of removed photos.
type FileRemover interface {
	Remove(paths ...string) error
}

// Crew names the people responsible for an inspection.
type Crew struct {
	Inspector  string `validate:"required,max=128"`
	Supervisor string `validate:"required,max=128"`
}

// CloseReason explains why an inspection was not closed.
type CloseReason string

const (
	ReasonIncomplete         CloseReason = "incomplete"
	ReasonRemediationMissing CloseReason = "remediation_missing"
)

// CloseOutcome is the result of CloseInspection. Closed is false, with a
// reason, when the inspection is not ready; that is not an error.
type CloseOutcome struct {
	Closed              bool                  `json:"closed"`
	State               model.InspectionState `json:"state"`
	Reason              CloseReason           `json:"reason,omitempty"`
	Completion          gate.Completion       `json:"completion"`
	IncompleteAnswerIDs []int64               `json:"incomplete_answer_ids,omitempty"`
	CascadedReceptionID *int64                `json:"cascaded_reception_id,omitempty"`
}

// Manager implements the inspection lifecycle.
type Manager struct {
	store    store.Store
	cache    *override.Cache
	hub      *watch.Hub
	notifier Notifier
	files    FileRemover
	log      *logrus.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewManager wires the lifecycle manager. notifier and files may be nil.
func NewManager(s store.Store, cache *override.Cache, hub *watch.Hub, notifier Notifier, files FileRemover, log *logrus.Logger) *Manager {
	return &Manager{
		store:    s,
		cache:    cache,
		hub:      hub,
		notifier: notifier,
		files:    files,
		log:      log,
		validate: validator.New(),
		now:      time.Now,
	}
}

func (m *Manager) crew(inspector, supervisor string) (Crew, error) {
	c := Crew{Inspector: strings.TrimSpace(inspector), Supervisor: strings.TrimSpace(supervisor)}
	if err := m.validate.Struct(c); err != nil {
		return Crew{}, apperr.FromValidator(err)
	}
	return c, nil
}

// CreateReceptionInspection opens a reception inspection for the truck.
func (m *Manager) CreateReceptionInspection(ctx context.Context, equipmentID int64, inspector, supervisor string) (int64, error) {
	c, err := m.crew(inspector, supervisor)
	if err != nil {
		return 0, err
	}
	if _, err := m.store.GetEquipment(ctx, equipmentID); err != nil {
		return 0, err
	}

	insp := &model.Inspection{
		EquipmentID:    equipmentID,
		Type:           model.TypeReception,
		State:          model.StateOpen,
		InspectorName:  c.Inspector,
		SupervisorName: c.Supervisor,
		CreatedAt:      m.now(),
	}
	if err := m.store.CreateInspection(ctx, insp); err != nil {
		return 0, err
	}

	m.publish(insp.ID, "create")
	m.log.WithFields(logrus.Fields{
		"module":        "lifecycle",
		"inspection_id": insp.ID,
		"equipment_id":  equipmentID,
	}).Info("reception inspection created")
	return insp.ID, nil
}

// CreateDeliveryInspection opens the delivery inspection of a reception that
// is PENDING_CLOSURE. The check for an existing delivery and the insert run
// in one transaction, backed by a unique index on the reception link.
func (m *Manager) CreateDeliveryInspection(ctx context.Context, receptionID int64, inspector, supervisor string) (int64, error) {
	c, err := m.crew(inspector, supervisor)
	if err != nil {
		return 0, err
	}

	var delivery model.Inspection
	err = m.store.InTx(ctx, func(tx store.Store) error {
		rec, err := tx.GetInspection(ctx, receptionID)
		if err != nil {
			return err
		}
		if rec.Type != model.TypeReception {
			return apperr.InvalidState("inspection %d is a %s inspection, not a reception", rec.ID, rec.Type)
		}
		if rec.State != model.StatePendingClosure {
			return apperr.Precondition("reception %d is %s, it must be %s before delivery", rec.ID, rec.State, model.StatePendingClosure)
		}
		existing, err := tx.FindDeliveryByReception(ctx, rec.ID)
		if err == nil {
			return apperr.InvalidState("reception %d already has delivery inspection %d", rec.ID, existing.ID)
		}
		if !apperr.IsKind(err, apperr.KindNotFound) {
			return err
		}

		delivery = model.Inspection{
			EquipmentID:    rec.EquipmentID,
			Type:           model.TypeDelivery,
			State:          model.StateOpen,
			InspectorName:  c.Inspector,
			SupervisorName: c.Supervisor,
			CreatedAt:      m.now(),
			ReceptionID:    &rec.ID,
		}
		return tx.CreateInspection(ctx, &delivery)
	})
	if err != nil {
		return 0, err
	}

	m.publish(delivery.ID, "create")
	m.log.WithFields(logrus.Fields{
		"module":        "lifecycle",
		"inspection_id": delivery.ID,
		"reception_id":  receptionID,
	}).Info("delivery inspection created")
	return delivery.ID, nil
}

// CloseInspection closes an OPEN inspection once every applicable question
// is answered and every negative answer carries a reference id. Closing a
// delivery also closes its reception when that one is PENDING_CLOSURE; both
// transitions commit together.
func (m *Manager) CloseInspection(ctx context.Context, id int64, generalComments string) (CloseOutcome, error) {
	comments := strings.TrimSpace(generalComments)
	var (
		out         CloseOutcome
		transitions []model.Inspection
	)

	err := m.store.InTx(ctx, func(tx store.Store) error {
		insp, err := tx.GetInspection(ctx, id)
		if err != nil {
			return err
		}
		if insp.State != model.StateOpen {
			return apperr.InvalidState("inspection %d is already %s", insp.ID, insp.State)
		}
		out.State = insp.State

		g := gate.New(tx)
		if out.Completion, err = g.Completion(ctx, id); err != nil {
			return err
		}
		if !out.Completion.Complete {
			out.Reason = ReasonIncomplete
			return nil
		}
		if out.IncompleteAnswerIDs, err = g.FindIncompleteNegativeAnswers(ctx, id); err != nil {
			return err
		}
		if len(out.IncompleteAnswerIDs) > 0 {
			out.Reason = ReasonRemediationMissing
			return nil
		}

		at := m.now()
		next := insp.NextState()
		ok, err := tx.TransitionInspection(ctx, id, model.StateOpen, next, at, comments)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.InvalidState("inspection %d changed state while closing", id)
		}
		insp.State = next
		transitions = append(transitions, *insp)

		if insp.Type == model.TypeDelivery && insp.ReceptionID != nil {
			rec, err := tx.GetInspection(ctx, *insp.ReceptionID)
			if err != nil {
				return err
			}
			if rec.State == model.StatePendingClosure {
				ok, err := tx.TransitionInspection(ctx, rec.ID, model.StatePendingClosure, model.StateClosed, at, comments)
				if err != nil {
					return err
				}
				if !ok {
					return apperr.InvalidState("reception %d changed state while closing delivery %d", rec.ID, id)
				}
				rec.State = model.StateClosed
				transitions = append(transitions, *rec)
				out.CascadedReceptionID = &rec.ID
			}
		}

		out.Closed = true
		out.State = next
		return nil
	})
	if err != nil {
		return CloseOutcome{}, err
	}

	entry := m.log.WithFields(logrus.Fields{"module": "lifecycle", "inspection_id": id})
	if !out.Closed {
		entry.WithField("reason", out.Reason).Info("inspection not ready to close")
		return out, nil
	}

	for _, t := range transitions {
		m.cache.Clear(t.ID)
		m.publish(t.ID, "close")
		if m.notifier != nil {
			m.notifier.Dispatch(notification.Event{
				InspectionID:    t.ID,
				EquipmentID:     t.EquipmentID,
				EquipmentNumber: t.Equipment.Number,
				Type:            t.Type,
				State:           t.State,
			})
		}
	}
	if out.CascadedReceptionID != nil {
		entry = entry.WithField("reception_id", *out.CascadedReceptionID)
	}
	entry.WithField("state", out.State).Info("inspection closed")
	return out, nil
}

// Close is CloseInspection reduced to whether the inspection was closed.
func (m *Manager) Close(ctx context.Context, id int64, generalComments string) (bool, error) {
	out, err := m.CloseInspection(ctx, id, generalComments)
	return out.Closed, err
}

// HasLinkedDelivery reports whether the reception already has a delivery.
func (m *Manager) HasLinkedDelivery(ctx context.Context, receptionID int64) (bool, error) {
	d, err := m.GetLinkedDelivery(ctx, receptionID)
	return d != nil, err
}

// GetLinkedDelivery returns the delivery of a reception, or nil when none exists.
func (m *Manager) GetLinkedDelivery(ctx context.Context, receptionID int64) (*model.Inspection, error) {
	d, err := m.store.FindDeliveryByReception(ctx, receptionID)
	if apperr.IsKind(err, apperr.KindNotFound) {
		return nil, nil
	}
	return d, err
}

func (m *Manager) GetInspection(ctx context.Context, id int64) (*model.Inspection, error) {
	return m.store.GetInspection(ctx, id)
}

// DeleteInspection removes the inspection with its answers and photos and
// forgets its cached intents.
func (m *Manager) DeleteInspection(ctx context.Context, id int64) error {
	photos, err := m.store.DeleteInspection(ctx, id)
	if err != nil {
		return err
	}
	cleared := m.cache.Clear(id)
	m.removeFiles(photos)
	m.publish(id, "delete")
	m.log.WithFields(logrus.Fields{
		"module":          "lifecycle",
		"inspection_id":   id,
		"photos":          len(photos),
		"intents_cleared": cleared,
	}).Info("inspection deleted")
	return nil
}

func (m *Manager) removeFiles(photos []model.Photo) {
	if m.files == nil || len(photos) == 0 {
		return
	}
	paths := make([]string, 0, len(photos)*2)
	for _, p := range photos {
		paths = append(paths, p.Path, p.Thumbnail)
	}
	if err := m.files.Remove(paths...); err != nil {
		m.log.WithError(err).Warn("failed to remove photo files")
	}
}

func (m *Manager) publish(inspectionID int64, action string) {
	m.hub.Publish(watch.TopicInspections, action, inspectionID)
	m.hub.Publish(watch.AnswersTopic(inspectionID), action, inspectionID)
	m.hub.Publish(watch.TopicEquipment, action, inspectionID)
}
