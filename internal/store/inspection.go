package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"caex-inspector-backend/internal/apperr"
	"caex-inspector-backend/internal/model"
)

func (s *gormStore) CreateInspection(ctx context.Context, i *model.Inspection) error {
	if err := s.db.WithContext(ctx).Omit("Equipment").Create(i).Error; err != nil {
		if i.ReceptionID != nil && IsUniqueViolation(err) {
			return apperr.InvalidState("reception %d already has a delivery inspection", *i.ReceptionID)
		}
		return fmt.Errorf("failed to create %s inspection: %w", i.Type, err)
	}
	return nil
}

func (s *gormStore) GetInspection(ctx context.Context, id int64) (*model.Inspection, error) {
	var i model.Inspection
	if err := s.db.WithContext(ctx).Preload("Equipment").First(&i, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("inspection %d does not exist", id)
		}
		return nil, fmt.Errorf("failed to get inspection %d: %w", id, err)
	}
	return &i, nil
}

// FindDeliveryByReception returns the delivery inspection linked to receptionID.
func (s *gormStore) FindDeliveryByReception(ctx context.Context, receptionID int64) (*model.Inspection, error) {
	var i model.Inspection
	err := s.db.WithContext(ctx).Preload("Equipment").
		Where("reception_id = ? AND type = ?", receptionID, model.TypeDelivery).
		First(&i).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("reception %d has no delivery inspection", receptionID)
		}
		return nil, fmt.Errorf("failed to find delivery of reception %d: %w", receptionID, err)
	}
	return &i, nil
}

// TransitionInspection moves inspection id from one state to another. It
// returns false without error when the inspection is no longer in from.
func (s *gormStore) TransitionInspection(ctx context.Context, id int64, from, to model.InspectionState, at time.Time, comments string) (bool, error) {
	updates := map[string]any{"state": to, "completed_at": at}
	if comments != "" {
		updates["general_comments"] = comments
	}
	res := s.db.WithContext(ctx).Model(&model.Inspection{}).
		Where("id = ? AND state = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to move inspection %d to %s: %w", id, to, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ListInspections returns inspections newest first.
func (s *gormStore) ListInspections(ctx context.Context, f InspectionFilter) ([]model.Inspection, error) {
	q := s.db.WithContext(ctx).Preload("Equipment").
		Order("inspections.created_at DESC").
		Order("inspections.id DESC")
	if len(f.States) > 0 {
		q = q.Where("inspections.state IN ?", f.States)
	}
	if f.Type != "" {
		q = q.Where("inspections.type = ?", f.Type)
	}
	if f.EquipmentID != 0 {
		q = q.Where("inspections.equipment_id = ?", f.EquipmentID)
	}
	if f.Model != "" && f.Model != model.ModelAll {
		q = q.Joins("JOIN equipment ON equipment.id = inspections.equipment_id").
			Where("equipment.model = ?", f.Model)
	}

	var list []model.Inspection
	if err := q.Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to list inspections: %w", err)
	}
	return list, nil
}

// DeleteInspection removes the inspection, its answers and their photos.
// A delivery linked to a deleted reception loses its back-reference.
func (s *gormStore) DeleteInspection(ctx context.Context, id int64) ([]model.Photo, error) {
	var removed []model.Photo
	err := s.InTx(ctx, func(txs Store) error {
		tx := txs.(*gormStore)
		if _, err := tx.GetInspection(ctx, id); err != nil {
			return err
		}
		photos, err := tx.deleteInspectionRows(ctx, []int64{id})
		removed = photos
		return err
	})
	return removed, err
}

// deleteInspectionRows must run inside a transaction.
func (s *gormStore) deleteInspectionRows(ctx context.Context, ids []int64) ([]model.Photo, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	db := s.db.WithContext(ctx)

	var answerIDs []int64
	if err := db.Model(&model.Answer{}).Where("inspection_id IN ?", ids).Pluck("id", &answerIDs).Error; err != nil {
		return nil, fmt.Errorf("failed to list answers of inspections %v: %w", ids, err)
	}

	var photos []model.Photo
	if len(answerIDs) > 0 {
		if err := db.Where("answer_id IN ?", answerIDs).Find(&photos).Error; err != nil {
			return nil, fmt.Errorf("failed to list photos: %w", err)
		}
		if err := db.Where("answer_id IN ?", answerIDs).Delete(&model.Photo{}).Error; err != nil {
			return nil, fmt.Errorf("failed to delete photos: %w", err)
		}
		if err := db.Where("id IN ?", answerIDs).Delete(&model.Answer{}).Error; err != nil {
			return nil, fmt.Errorf("failed to delete answers: %w", err)
		}
	}

	if err := db.Model(&model.Inspection{}).
		Where("reception_id IN ?", ids).
		Update("reception_id", nil).Error; err != nil {
		return nil, fmt.Errorf("failed to unlink deliveries: %w", err)
	}
	if err := db.Where("id IN ?", ids).Delete(&model.Inspection{}).Error; err != nil {
		return nil, fmt.Errorf("failed to delete inspections %v: %w", ids, err)
	}
	return photos, nil
}
