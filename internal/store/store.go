package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"caex-inspector-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	// InTx runs fn inside a single transaction. The Store passed to fn is
	// bound to that transaction; fn must not use the outer Store.
	InTx(ctx context.Context, fn func(tx Store) error) error
	DB() *gorm.DB

	CreateEquipment(ctx context.Context, e *model.Equipment) error
	UpdateEquipment(ctx context.Context, e *model.Equipment) error
	DeleteEquipment(ctx context.Context, id int64) ([]int64, []model.Photo, error)
	GetEquipment(ctx context.Context, id int64) (*model.Equipment, error)
	GetEquipmentByNumber(ctx context.Context, number int) (*model.Equipment, error)
	ListEquipment(ctx context.Context, m model.EquipmentModel) ([]model.Equipment, error)
	EquipmentStats(ctx context.Context) (map[int64]EquipmentStat, error)

	ListCategories(ctx context.Context, m model.EquipmentModel) ([]model.Category, error)
	ListQuestions(ctx context.Context, m model.EquipmentModel, categoryID int64) ([]model.Question, error)
	GetQuestion(ctx context.Context, id int64) (*model.Question, error)
	CountQuestionsForModel(ctx context.Context, m model.EquipmentModel) (int64, error)

	CreateInspection(ctx context.Context, i *model.Inspection) error
	GetInspection(ctx context.Context, id int64) (*model.Inspection, error)
	FindDeliveryByReception(ctx context.Context, receptionID int64) (*model.Inspection, error)
	TransitionInspection(ctx context.Context, id int64, from, to model.InspectionState, at time.Time, comments string) (bool, error)
	ListInspections(ctx context.Context, f InspectionFilter) ([]model.Inspection, error)
	DeleteInspection(ctx context.Context, id int64) ([]model.Photo, error)

	CreateAnswer(ctx context.Context, a *model.Answer) error
	UpdateAnswer(ctx context.Context, a *model.Answer) error
	GetAnswer(ctx context.Context, inspectionID, questionID int64) (*model.Answer, error)
	GetAnswerByID(ctx context.Context, id int64) (*model.Answer, error)
	ListAnswers(ctx context.Context, f AnswerFilter) ([]model.Answer, error)
	ListAnswerDetails(ctx context.Context, f AnswerFilter) ([]model.AnswerDetail, error)
	CountAnswers(ctx context.Context, inspectionID int64) (int64, error)
	AnswerHistory(ctx context.Context, q HistoryQuery) ([]model.AnswerDetail, error)

	CreatePhoto(ctx context.Context, p *model.Photo) error
	GetPhoto(ctx context.Context, id int64) (*model.Photo, error)
	ListPhotos(ctx context.Context, answerID int64) ([]model.Photo, error)
	CountPhotos(ctx context.Context, answerID int64) (int64, error)
	DeletePhoto(ctx context.Context, id int64) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// DB exposes the underlying connection for handlers that query directly.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// InTx runs fn in a transaction and commits only when fn returns nil.
func (s *gormStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

// IsUniqueViolation reports whether err was caused by a unique index.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
