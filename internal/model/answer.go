package model

import "time"

// AnswerState is the value an inspector picked for a question.
type AnswerState string

const (
	StateConforme    AnswerState = "CONFORME"
	StateNonConforme AnswerState = "NON_CONFORME"
	StateAccepted    AnswerState = "ACCEPTED"
	StateRejected    AnswerState = "REJECTED"
)

// NegativeStates holds every negative value of both vocabularies.
var NegativeStates = []AnswerState{StateNonConforme, StateRejected}

// ActionType is the remediation kind recorded for a negative answer.
type ActionType string

const (
	ActionImmediate ActionType = "IMMEDIATE"
	ActionScheduled ActionType = "SCHEDULED"
)

// Valid reports whether a is one of the enumerated action types.
func (a ActionType) Valid() bool {
	return a == ActionImmediate || a == ActionScheduled
}

// Answer is the response to one question within one inspection.
type Answer struct {
	ID           int64       `gorm:"primaryKey" json:"id"`
	InspectionID int64       `gorm:"not null;uniqueIndex:idx_answer_inspection_question,priority:1" json:"inspection_id"`
	QuestionID   int64       `gorm:"not null;index;uniqueIndex:idx_answer_inspection_question,priority:2" json:"question_id"`
	State        AnswerState `gorm:"size:16;index;not null" json:"state"`
	Comments     string      `gorm:"type:text;not null;default:''" json:"comments"`
	ActionType   *ActionType `gorm:"size:16" json:"action_type"`
	ReferenceID  *string     `gorm:"size:64" json:"reference_id"`
	CreatedAt    time.Time   `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time   `gorm:"not null" json:"updated_at"`

	// Associations
	Inspection Inspection `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Question   Question   `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Photos     []Photo    `gorm:"foreignKey:AnswerID" json:"-"`
}

// AnswerDetail is an answer joined with its question, category and photos.
type AnswerDetail struct {
	Answer
	InspectionType InspectionType `json:"inspection_type"`
	QuestionText   string         `json:"question_text"`
	QuestionOrder  int            `json:"question_order"`
	CategoryID     int64          `json:"category_id"`
	CategoryName   string         `json:"category_name"`
	CategoryOrder  int            `json:"category_order"`
	PhotoPaths     []string       `gorm:"-" json:"photo_paths"`
}

// Photo is an evidence attachment of a negative answer.
type Photo struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	AnswerID    int64     `gorm:"index;not null" json:"answer_id"`
	Path        string    `gorm:"size:512;not null" json:"path"`
	Thumbnail   string    `gorm:"size:512" json:"thumbnail"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`

	Answer Answer `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
