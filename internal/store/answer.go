package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"caex-inspector-backend/internal/apperr"
	"caex-inspector-backend/internal/model"
)

func (s *gormStore) CreateAnswer(ctx context.Context, a *model.Answer) error {
	if err := s.db.WithContext(ctx).Omit("Inspection", "Question", "Photos").Create(a).Error; err != nil {
		return fmt.Errorf("failed to create answer for question %d of inspection %d: %w", a.QuestionID, a.InspectionID, err)
	}
	return nil
}

// UpdateAnswer persists the mutable fields of an existing answer.
func (s *gormStore) UpdateAnswer(ctx context.Context, a *model.Answer) error {
	res := s.db.WithContext(ctx).Model(&model.Answer{}).
		Where("id = ?", a.ID).
		Updates(map[string]any{
			"state":        a.State,
			"comments":     a.Comments,
			"action_type":  a.ActionType,
			"reference_id": a.ReferenceID,
			"updated_at":   a.UpdatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update answer %d: %w", a.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("answer %d does not exist", a.ID)
	}
	return nil
}

func (s *gormStore) GetAnswer(ctx context.Context, inspectionID, questionID int64) (*model.Answer, error) {
	var a model.Answer
	err := s.db.WithContext(ctx).
		Where("inspection_id = ? AND question_id = ?", inspectionID, questionID).
		First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("inspection %d has no answer for question %d", inspectionID, questionID)
		}
		return nil, fmt.Errorf("failed to get answer for question %d of inspection %d: %w", questionID, inspectionID, err)
	}
	return &a, nil
}

func (s *gormStore) GetAnswerByID(ctx context.Context, id int64) (*model.Answer, error) {
	var a model.Answer
	if err := s.db.WithContext(ctx).First(&a, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("answer %d does not exist", id)
		}
		return nil, fmt.Errorf("failed to get answer %d: %w", id, err)
	}
	return &a, nil
}

// ListAnswers returns the answers of an inspection in checklist order.
func (s *gormStore) ListAnswers(ctx context.Context, f AnswerFilter) ([]model.Answer, error) {
	var list []model.Answer
	if err := s.answerQuery(ctx, f).Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to list answers of inspection %d: %w", f.InspectionID, err)
	}
	return list, nil
}

// ListAnswerDetails is ListAnswers joined with question text, category and photo paths.
func (s *gormStore) ListAnswerDetails(ctx context.Context, f AnswerFilter) ([]model.AnswerDetail, error) {
	var list []model.Answer
	err := s.answerQuery(ctx, f).
		Preload("Inspection").
		Preload("Question.Category").
		Preload("Photos", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list answer details of inspection %d: %w", f.InspectionID, err)
	}
	return toDetails(list), nil
}

func (s *gormStore) CountAnswers(ctx context.Context, inspectionID int64) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Answer{}).
		Where("inspection_id = ?", inspectionID).
		Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count answers of inspection %d: %w", inspectionID, err)
	}
	return n, nil
}

// AnswerHistory returns earlier answers to the same question on the same
// truck, most recently updated first.
func (s *gormStore) AnswerHistory(ctx context.Context, q HistoryQuery) ([]model.AnswerDetail, error) {
	db := s.db.WithContext(ctx).
		Joins("JOIN inspections ON inspections.id = answers.inspection_id").
		Where("inspections.equipment_id = ? AND answers.question_id = ? AND answers.inspection_id <> ?",
			q.EquipmentID, q.QuestionID, q.ExcludeInspectionID).
		Order("answers.updated_at DESC").
		Order("answers.id DESC")
	if len(q.States) > 0 {
		db = db.Where("answers.state IN ?", q.States)
	}

	var list []model.Answer
	err := db.Preload("Inspection").
		Preload("Question.Category").
		Preload("Photos", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load history of question %d on equipment %d: %w", q.QuestionID, q.EquipmentID, err)
	}
	return toDetails(list), nil
}

func (s *gormStore) answerQuery(ctx context.Context, f AnswerFilter) *gorm.DB {
	db := s.db.WithContext(ctx).
		Joins("JOIN questions ON questions.id = answers.question_id").
		Joins("JOIN categories ON categories.id = questions.category_id").
		Where("answers.inspection_id = ?", f.InspectionID).
		Order("categories.display_order").
		Order("questions.display_order")
	if len(f.States) > 0 {
		db = db.Where("answers.state IN ?", f.States)
	}
	if f.CategoryID != 0 {
		db = db.Where("questions.category_id = ?", f.CategoryID)
	}
	return db
}

func toDetails(list []model.Answer) []model.AnswerDetail {
	details := make([]model.AnswerDetail, 0, len(list))
	for _, a := range list {
		d := model.AnswerDetail{
			Answer:         a,
			InspectionType: a.Inspection.Type,
			QuestionText:   a.Question.Text,
			QuestionOrder:  a.Question.Order,
			CategoryID:     a.Question.CategoryID,
			CategoryName:   a.Question.Category.Name,
			CategoryOrder:  a.Question.Category.Order,
			PhotoPaths:     make([]string, 0, len(a.Photos)),
		}
		for _, p := range a.Photos {
			d.PhotoPaths = append(d.PhotoPaths, p.Path)
		}
		details = append(details, d)
	}
	return details
}

func (s *gormStore) CreatePhoto(ctx context.Context, p *model.Photo) error {
	if err := s.db.WithContext(ctx).Omit("Answer").Create(p).Error; err != nil {
		return fmt.Errorf("failed to create photo for answer %d: %w", p.AnswerID, err)
	}
	return nil
}

func (s *gormStore) GetPhoto(ctx context.Context, id int64) (*model.Photo, error) {
	var p model.Photo
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("photo %d does not exist", id)
		}
		return nil, fmt.Errorf("failed to get photo %d: %w", id, err)
	}
	return &p, nil
}

func (s *gormStore) ListPhotos(ctx context.Context, answerID int64) ([]model.Photo, error) {
	var list []model.Photo
	if err := s.db.WithContext(ctx).Where("answer_id = ?", answerID).Order("id").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to list photos of answer %d: %w", answerID, err)
	}
	return list, nil
}

func (s *gormStore) CountPhotos(ctx context.Context, answerID int64) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Photo{}).Where("answer_id = ?", answerID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count photos of answer %d: %w", answerID, err)
	}
	return n, nil
}

func (s *gormStore) DeletePhoto(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&model.Photo{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete photo %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("photo %d does not exist", id)
	}
	return nil
}
