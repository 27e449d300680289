package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"caex-inspector-backend/internal/answer"
	"caex-inspector-backend/internal/model"
)

type saveAnswerRequest struct {
	State       model.AnswerState `json:"state" binding:"required"`
	Comments    string            `json:"comments"`
	ActionType  *model.ActionType `json:"action_type"`
	ReferenceID *string           `json:"reference_id"`
}

type intentRequest struct {
	State model.AnswerState `json:"state" binding:"required"`
}

type remediationRequest struct {
	Comments    string            `json:"comments"`
	ActionType  *model.ActionType `json:"action_type"`
	ReferenceID *string           `json:"reference_id"`
}

// GetAnswers lists the answers of an inspection with question details.
// resolved=true returns every checklist row merged with pending intents.
func (h *Handler) GetAnswers(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if c.Query("resolved") == "true" {
		rows, err := h.Answers.ResolveRows(ctx, id)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, rows)
		return
	}
	categoryID, ok := queryInt64(c, "category_id")
	if !ok {
		h.badRequest(c)
		return
	}
	details, err := h.Answers.GetAnswerDetails(ctx, id, answerStates(c.Query("state")), categoryID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

// SaveAnswer creates or replaces the answer to one question.
func (h *Handler) SaveAnswer(c *gin.Context) {
	inspectionID, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	questionID, ok := h.idParam(c, "question_id")
	if !ok {
		return
	}
	var req saveAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c)
		return
	}
	id, err := h.Answers.SaveAnswer(c.Request.Context(), answer.SaveCommand{
		InspectionID: inspectionID,
		QuestionID:   questionID,
		State:        req.State,
		Comments:     req.Comments,
		ActionType:   req.ActionType,
		ReferenceID:  req.ReferenceID,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, id, "answer saved")
}

// RecordIntent caches the state the user picked ahead of the save.
func (h *Handler) RecordIntent(c *gin.Context) {
	inspectionID, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	questionID, ok := h.idParam(c, "question_id")
	if !ok {
		return
	}
	var req intentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c)
		return
	}
	in, err := h.Answers.RecordIntent(c.Request.Context(), inspectionID, questionID, req.State)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, in)
}

func (h *Handler) UpdateRemediation(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	var req remediationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c)
		return
	}
	err := h.Answers.UpdateRemediation(c.Request.Context(), answer.RemediationCommand{
		AnswerID:    id,
		Comments:    req.Comments,
		ActionType:  req.ActionType,
		ReferenceID: req.ReferenceID,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, id, "remediation updated")
}

func (h *Handler) EnsureNegative(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	wrote, err := h.Answers.EnsureNegativeState(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"restored": wrote})
}

// GetAnswerHistory lists earlier answers of a truck to one question.
func (h *Handler) GetAnswerHistory(c *gin.Context) {
	equipmentID, ok1 := queryInt64(c, "equipment_id")
	questionID, ok2 := queryInt64(c, "question_id")
	exclude, ok3 := queryInt64(c, "exclude")
	if !ok1 || !ok2 || !ok3 || equipmentID == 0 || questionID == 0 {
		h.badRequest(c)
		return
	}
	list, err := h.Answers.GetAnswerHistory(c.Request.Context(), equipmentID, questionID, exclude, answerStates(c.Query("state")))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}
