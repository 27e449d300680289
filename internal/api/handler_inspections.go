package api

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"caex-inspector-backend/internal/apperr"
	"caex-inspector-backend/internal/model"
	"caex-inspector-backend/internal/store"
)

type receptionRequest struct {
	EquipmentID int64                `json:"equipment_id"`
	Number      int                  `json:"number"`
	Model       model.EquipmentModel `json:"model"`
	Inspector   string               `json:"inspector" binding:"required"`
	Supervisor  string               `json:"supervisor" binding:"required"`
}

type deliveryRequest struct {
	Inspector  string `json:"inspector" binding:"required"`
	Supervisor string `json:"supervisor" binding:"required"`
}

type closeRequest struct {
	GeneralComments string `json:"general_comments"`
}

// inspectionFilter reads state (comma separated), type, model and
// equipment_id from the query.
func inspectionFilter(c *gin.Context) (store.InspectionFilter, bool) {
	m, ok := modelParam(c)
	if !ok {
		return store.InspectionFilter{}, false
	}
	equipmentID, ok := queryInt64(c, "equipment_id")
	if !ok {
		return store.InspectionFilter{}, false
	}
	f := store.InspectionFilter{
		Type:        model.InspectionType(strings.ToUpper(c.Query("type"))),
		Model:       m,
		EquipmentID: equipmentID,
	}
	if raw := c.Query("state"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			f.States = append(f.States, model.InspectionState(strings.ToUpper(strings.TrimSpace(s))))
		}
	}
	return f, true
}

func (h *Handler) ListInspections(c *gin.Context) {
	f, ok := inspectionFilter(c)
	if !ok {
		h.badRequest(c)
		return
	}
	list, err := h.Lifecycle.List(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// CreateReception opens a reception inspection. The truck is given either
// by equipment_id or by number and model, in which case it is registered
// when unknown.
func (h *Handler) CreateReception(c *gin.Context) {
	var req receptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c)
		return
	}
	ctx := c.Request.Context()
	equipmentID := req.EquipmentID
	if equipmentID == 0 {
		if req.Number == 0 || req.Model == "" {
			h.badRequest(c)
			return
		}
		e, err := h.Fleet.FindOrRegister(ctx, req.Number, req.Model)
		if err != nil {
			h.fail(c, err)
			return
		}
		equipmentID = e.ID
	}
	id, err := h.Lifecycle.CreateReceptionInspection(ctx, equipmentID, req.Inspector, req.Supervisor)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusCreated, id, "reception inspection created")
}

// CreateDelivery opens the delivery inspection of a reception.
func (h *Handler) CreateDelivery(c *gin.Context) {
	receptionID, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	var req deliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c)
		return
	}
	id, err := h.Lifecycle.CreateDeliveryInspection(c.Request.Context(), receptionID, req.Inspector, req.Supervisor)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusCreated, id, "delivery inspection created")
}

func (h *Handler) GetInspection(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	insp, err := h.Lifecycle.GetInspection(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, insp)
}

func (h *Handler) DeleteInspection(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	if err := h.Lifecycle.DeleteInspection(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, id, "inspection deleted")
}

// GetLinkedDelivery returns the delivery of a reception, or 404.
func (h *Handler) GetLinkedDelivery(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	delivery, err := h.Lifecycle.GetLinkedDelivery(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if delivery == nil {
		h.fail(c, apperr.NotFound("reception %d has no delivery inspection", id))
		return
	}
	c.JSON(http.StatusOK, delivery)
}

// CloseInspection answers 200 with closed=false when the inspection is not
// ready yet.
func (h *Handler) CloseInspection(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	var req closeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c)
			return
		}
	}
	out, err := h.Lifecycle.CloseInspection(c.Request.Context(), id, req.GeneralComments)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) GetCompletion(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	comp, err := h.Gate.Completion(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, comp)
}

// GetIncomplete lists the negative answers that still lack a reference.
func (h *Handler) GetIncomplete(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	ids, err := h.Gate.FindIncompleteNegativeAnswers(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"answer_ids": ids})
}

// GetCarryForward returns the carry-forward set of a delivery, or its
// annotated questions when category_id or annotate=true is given.
func (h *Handler) GetCarryForward(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	categoryID, ok := queryInt64(c, "category_id")
	if !ok {
		h.badRequest(c)
		return
	}
	ctx := c.Request.Context()
	if categoryID != 0 || c.Query("annotate") == "true" {
		questions, err := h.Carry.Annotate(ctx, id, categoryID)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, questions)
		return
	}
	set, err := h.Carry.Resolve(ctx, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, set)
}

// GetReport renders the XLSX non-conformance report and sends it.
func (h *Handler) GetReport(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	complete, err := h.Gate.IsQuestionnaireComplete(ctx, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !complete {
		h.fail(c, apperr.Precondition("inspection %d has unanswered questions", id))
		return
	}
	items, err := h.Gate.ReportItems(ctx, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	insp, err := h.Lifecycle.GetInspection(ctx, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	path, err := h.Reports.Render(insp, items)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}
