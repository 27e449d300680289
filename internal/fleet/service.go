// Package fleet registers the haul trucks inspections are run against.
package fleet

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"caex-inspector-backend/config"
	"caex-inspector-backend/internal/apperr"
	"caex-inspector-backend/internal/model"
	"caex-inspector-backend/internal/override"
	"caex-inspector-backend/internal/parse"
	"caex-inspector-backend/internal/store"
	"caex-inspector-backend/internal/watch"
)

// FileRemover deletes photo files left behind by a removed truck.
type FileRemover interface {
	Remove(paths ...string) error
}

// Service manages equipment.
type Service struct {
	store  store.Store
	ranges map[string]config.IdentifierRange
	hub    *watch.Hub
	cache  *override.Cache
	files  FileRemover
	log    *logrus.Logger
	now    func() time.Time
}

func NewService(s store.Store, cfg config.EquipmentConfig, hub *watch.Hub, cache *override.Cache, files FileRemover, log *logrus.Logger) *Service {
	return &Service{
		store:  s,
		ranges: cfg.Models,
		hub:    hub,
		cache:  cache,
		files:  files,
		log:    log,
		now:    time.Now,
	}
}

func (s *Service) validate(number int, m model.EquipmentModel) error {
	if err := parse.ValidateNumber(number, m, s.ranges); err != nil {
		return apperr.Validation("%s", err.Error())
	}
	return nil
}

// RegisterEquipment adds a truck. The number must be unique and inside the
// range of its model.
func (s *Service) RegisterEquipment(ctx context.Context, number int, m model.EquipmentModel) (*model.Equipment, error) {
	if err := s.validate(number, m); err != nil {
		return nil, err
	}
	if _, err := s.store.GetEquipmentByNumber(ctx, number); err == nil {
		return nil, apperr.Validation("equipment number %d is already registered", number)
	} else if !apperr.IsKind(err, apperr.KindNotFound) {
		return nil, err
	}

	now := s.now()
	e := &model.Equipment{Number: number, Model: m, CreatedAt: now, UpdatedAt: now}
	if err := s.store.CreateEquipment(ctx, e); err != nil {
		return nil, err
	}
	s.hub.Publish(watch.TopicEquipment, "create", e.ID)
	s.log.WithFields(logrus.Fields{"module": "fleet", "equipment_id": e.ID, "number": number, "model": m}).Info("equipment registered")
	return e, nil
}

// RegisterLabel parses a label such as "CAEX-301" and registers the truck.
// An empty model is inferred from the configured ranges.
func (s *Service) RegisterLabel(ctx context.Context, label string, m model.EquipmentModel) (*model.Equipment, error) {
	p, err := parse.ParseEquipment(label, m, s.ranges)
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	return s.RegisterEquipment(ctx, p.Number, p.Model)
}

// FindOrRegister returns the truck with number, registering it first when
// unknown. An existing truck of another model is a validation error.
func (s *Service) FindOrRegister(ctx context.Context, number int, m model.EquipmentModel) (*model.Equipment, error) {
	e, err := s.store.GetEquipmentByNumber(ctx, number)
	switch {
	case err == nil:
		if e.Model != m {
			return nil, apperr.Validation("equipment %d is registered as %s, not %s", number, e.Model, m)
		}
		return e, nil
	case apperr.IsKind(err, apperr.KindNotFound):
		return s.RegisterEquipment(ctx, number, m)
	default:
		return nil, err
	}
}

func (s *Service) UpdateEquipment(ctx context.Context, id int64, number int, m model.EquipmentModel) (*model.Equipment, error) {
	e, err := s.store.GetEquipment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.validate(number, m); err != nil {
		return nil, err
	}
	if other, err := s.store.GetEquipmentByNumber(ctx, number); err == nil && other.ID != id {
		return nil, apperr.Validation("equipment number %d is already registered", number)
	} else if err != nil && !apperr.IsKind(err, apperr.KindNotFound) {
		return nil, err
	}

	e.Number = number
	e.Model = m
	e.UpdatedAt = s.now()
	if err := s.store.UpdateEquipment(ctx, e); err != nil {
		return nil, err
	}
	s.hub.Publish(watch.TopicEquipment, "update", e.ID)
	return e, nil
}

// DeleteEquipment removes the truck with all of its inspections and forgets
// the cached intents of those inspections.
func (s *Service) DeleteEquipment(ctx context.Context, id int64) error {
	inspectionIDs, photos, err := s.store.DeleteEquipment(ctx, id)
	if err != nil {
		return err
	}
	cleared := 0
	for _, inspID := range inspectionIDs {
		cleared += s.cache.Clear(inspID)
	}
	if s.files != nil && len(photos) > 0 {
		paths := make([]string, 0, len(photos)*2)
		for _, p := range photos {
			paths = append(paths, p.Path, p.Thumbnail)
		}
		if err := s.files.Remove(paths...); err != nil {
			s.log.WithError(err).Warn("failed to remove photo files")
		}
	}
	s.hub.Publish(watch.TopicEquipment, "delete", id)
	s.hub.Publish(watch.TopicInspections, "delete", id)
	s.log.WithFields(logrus.Fields{
		"module":          "fleet",
		"equipment_id":    id,
		"inspections":     len(inspectionIDs),
		"photos":          len(photos),
		"intents_cleared": cleared,
	}).Info("equipment deleted")
	return nil
}

func (s *Service) GetEquipment(ctx context.Context, id int64) (*model.Equipment, error) {
	return s.store.GetEquipment(ctx, id)
}

func (s *Service) GetEquipmentByNumber(ctx context.Context, number int) (*model.Equipment, error) {
	return s.store.GetEquipmentByNumber(ctx, number)
}

// ListEquipment returns the fleet with an inspection summary per truck.
// search matches number digits or the model name; ModelAll lists every model.
func (s *Service) ListEquipment(ctx context.Context, search string, m model.EquipmentModel) ([]model.EquipmentInfo, error) {
	trucks, err := s.store.ListEquipment(ctx, m)
	if err != nil {
		return nil, err
	}
	stats, err := s.store.EquipmentStats(ctx)
	if err != nil {
		return nil, err
	}
	finished, err := s.store.ListInspections(ctx, store.InspectionFilter{
		States: []model.InspectionState{model.StatePendingClosure, model.StateClosed},
		Model:  m,
	})
	if err != nil {
		return nil, err
	}
	latest := latestFinished(finished)

	search = strings.ToLower(strings.TrimSpace(search))
	infos := make([]model.EquipmentInfo, 0, len(trucks))
	for _, e := range trucks {
		if search != "" &&
			!strings.Contains(strconv.Itoa(e.Number), search) &&
			!strings.Contains(strings.ToLower(string(e.Model)), search) {
			continue
		}
		st := stats[e.ID]
		info := model.EquipmentInfo{
			Equipment:        e,
			TotalInspections: st.Total,
			HasPending:       st.Active > 0,
		}
		if l, ok := latest[e.ID]; ok {
			at := l.CreatedAt
			if l.CompletedAt != nil {
				at = *l.CompletedAt
			}
			typ, state := l.Type, l.State
			info.LastInspectionAt = &at
			info.LastInspectionType = &typ
			info.LastState = &state
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// latestFinished picks the most recently completed inspection per truck.
func latestFinished(list []model.Inspection) map[int64]model.Inspection {
	sort.SliceStable(list, func(i, j int) bool {
		return finishedAt(list[i]).After(finishedAt(list[j]))
	})
	out := make(map[int64]model.Inspection)
	for _, insp := range list {
		if _, seen := out[insp.EquipmentID]; !seen {
			out[insp.EquipmentID] = insp
		}
	}
	return out
}

func finishedAt(i model.Inspection) time.Time {
	if i.CompletedAt != nil {
		return *i.CompletedAt
	}
	return i.CreatedAt
}

// Models returns the configured models in display order.
func (s *Service) Models() []model.EquipmentModel {
	out := make([]model.EquipmentModel, 0, len(model.KnownModels))
	for _, m := range model.KnownModels {
		if _, ok := s.ranges[string(m)]; ok || len(s.ranges) == 0 {
			out = append(out, m)
		}
	}
	return out
}

// Ranges returns the identifier range of every configured model.
func (s *Service) Ranges() map[string]config.IdentifierRange {
	return s.ranges
}
