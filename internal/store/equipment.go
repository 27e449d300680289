package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"caex-inspector-backend/internal/apperr"
	"caex-inspector-backend/internal/model"
)

func (s *gormStore) CreateEquipment(ctx context.Context, e *model.Equipment) error {
	if err := s.db.WithContext(ctx).Create(e).Error; err != nil {
		if IsUniqueViolation(err) {
			return apperr.Validation("equipment number %d is already registered", e.Number)
		}
		return fmt.Errorf("failed to create equipment %d: %w", e.Number, err)
	}
	return nil
}

func (s *gormStore) UpdateEquipment(ctx context.Context, e *model.Equipment) error {
	res := s.db.WithContext(ctx).Model(&model.Equipment{}).
		Where("id = ?", e.ID).
		Updates(map[string]any{"number": e.Number, "model": e.Model, "updated_at": e.UpdatedAt})
	if res.Error != nil {
		if IsUniqueViolation(res.Error) {
			return apperr.Validation("equipment number %d is already registered", e.Number)
		}
		return fmt.Errorf("failed to update equipment %d: %w", e.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("equipment %d does not exist", e.ID)
	}
	return nil
}

// DeleteEquipment removes the truck with all of its inspections and returns
// the ids of those inspections and the photos that were attached to them.
func (s *gormStore) DeleteEquipment(ctx context.Context, id int64) ([]int64, []model.Photo, error) {
	var (
		removedIDs []int64
		removed    []model.Photo
	)
	err := s.InTx(ctx, func(txs Store) error {
		tx := txs.(*gormStore)
		if _, err := tx.GetEquipment(ctx, id); err != nil {
			return err
		}

		var inspectionIDs []int64
		if err := tx.db.WithContext(ctx).Model(&model.Inspection{}).
			Where("equipment_id = ?", id).
			Pluck("id", &inspectionIDs).Error; err != nil {
			return fmt.Errorf("failed to list inspections of equipment %d: %w", id, err)
		}

		photos, err := tx.deleteInspectionRows(ctx, inspectionIDs)
		if err != nil {
			return err
		}
		removed = photos
		removedIDs = inspectionIDs

		if err := tx.db.WithContext(ctx).
			Exec("DELETE FROM subscription_equipment_mapping WHERE equipment_id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to drop subscriptions of equipment %d: %w", id, err)
		}
		if err := tx.db.WithContext(ctx).Delete(&model.Equipment{}, id).Error; err != nil {
			return fmt.Errorf("failed to delete equipment %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return removedIDs, removed, nil
}

func (s *gormStore) GetEquipment(ctx context.Context, id int64) (*model.Equipment, error) {
	var e model.Equipment
	if err := s.db.WithContext(ctx).First(&e, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("equipment %d does not exist", id)
		}
		return nil, fmt.Errorf("failed to get equipment %d: %w", id, err)
	}
	return &e, nil
}

func (s *gormStore) GetEquipmentByNumber(ctx context.Context, number int) (*model.Equipment, error) {
	var e model.Equipment
	if err := s.db.WithContext(ctx).Where("number = ?", number).First(&e).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("no equipment with number %d", number)
		}
		return nil, fmt.Errorf("failed to get equipment number %d: %w", number, err)
	}
	return &e, nil
}

// ListEquipment returns the fleet ordered by number. ModelAll or "" lists every model.
func (s *gormStore) ListEquipment(ctx context.Context, m model.EquipmentModel) ([]model.Equipment, error) {
	q := s.db.WithContext(ctx).Order("number")
	if m != "" && m != model.ModelAll {
		q = q.Where("model = ?", m)
	}
	var list []model.Equipment
	if err := q.Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to list equipment: %w", err)
	}
	return list, nil
}

// EquipmentStats counts inspections per truck in one aggregate query.
// Active counts OPEN and PENDING_CLOSURE inspections.
func (s *gormStore) EquipmentStats(ctx context.Context) (map[int64]EquipmentStat, error) {
	var rows []EquipmentStat
	err := s.db.WithContext(ctx).
		Model(&model.Inspection{}).
		Select("equipment_id AS equipment_id, COUNT(*) AS total, "+
			"COALESCE(SUM(CASE WHEN state IN (?, ?) THEN 1 ELSE 0 END), 0) AS active",
			model.StateOpen, model.StatePendingClosure).
		Group("equipment_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate inspections: %w", err)
	}
	stats := make(map[int64]EquipmentStat, len(rows))
	for _, r := range rows {
		stats[r.EquipmentID] = r
	}
	return stats, nil
}

func (s *gormStore) ListCategories(ctx context.Context, m model.EquipmentModel) ([]model.Category, error) {
	var list []model.Category
	if err := s.db.WithContext(ctx).
		Where("model IN ?", applicableModels(m)).
		Order("display_order").
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to list categories for %s: %w", m, err)
	}
	return list, nil
}

// ListQuestions returns the questions visible for model m, in checklist
// order. categoryID 0 returns every category.
func (s *gormStore) ListQuestions(ctx context.Context, m model.EquipmentModel, categoryID int64) ([]model.Question, error) {
	q := s.applicableQuestions(ctx, m).
		Order(clause.OrderByColumn{Column: clause.Column{Table: "categories", Name: "display_order"}}).
		Order(clause.OrderByColumn{Column: clause.Column{Table: "questions", Name: "display_order"}})
	if categoryID != 0 {
		q = q.Where("questions.category_id = ?", categoryID)
	}
	var list []model.Question
	if err := q.Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to list questions for %s: %w", m, err)
	}
	return list, nil
}

func (s *gormStore) GetQuestion(ctx context.Context, id int64) (*model.Question, error) {
	var q model.Question
	if err := s.db.WithContext(ctx).Preload("Category").First(&q, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("question %d does not exist", id)
		}
		return nil, fmt.Errorf("failed to get question %d: %w", id, err)
	}
	return &q, nil
}

// CountQuestionsForModel counts the questions an inspection of model m must answer.
func (s *gormStore) CountQuestionsForModel(ctx context.Context, m model.EquipmentModel) (int64, error) {
	var n int64
	if err := s.applicableQuestions(ctx, m).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count questions for %s: %w", m, err)
	}
	return n, nil
}

func (s *gormStore) applicableQuestions(ctx context.Context, m model.EquipmentModel) *gorm.DB {
	models := applicableModels(m)
	return s.db.WithContext(ctx).Model(&model.Question{}).
		Joins("JOIN categories ON categories.id = questions.category_id").
		Where("questions.model IN ? AND categories.model IN ?", models, models)
}
