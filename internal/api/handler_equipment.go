package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"caex-inspector-backend/internal/model"
)

type equipmentRequest struct {
	Number int                  `json:"number"`
	Label  string               `json:"label"`
	Model  model.EquipmentModel `json:"model"`
}

// ListEquipment lists the fleet with an inspection summary per truck.
func (h *Handler) ListEquipment(c *gin.Context) {
	m, ok := modelParam(c)
	if !ok {
		h.badRequest(c)
		return
	}
	list, err := h.Fleet.ListEquipment(c.Request.Context(), c.Query("search"), m)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// CreateEquipment registers a truck given by number and model, or by a
// label such as "CAEX-301" whose model may be inferred from its range.
func (h *Handler) CreateEquipment(c *gin.Context) {
	var req equipmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c)
		return
	}
	var (
		e   *model.Equipment
		err error
	)
	switch {
	case req.Number != 0 && req.Model != "":
		e, err = h.Fleet.RegisterEquipment(c.Request.Context(), req.Number, req.Model)
	case req.Label != "":
		e, err = h.Fleet.RegisterLabel(c.Request.Context(), req.Label, req.Model)
	default:
		h.badRequest(c)
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusCreated, e.ID, "equipment registered")
}

func (h *Handler) GetEquipment(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	e, err := h.Fleet.GetEquipment(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *Handler) UpdateEquipment(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	var req equipmentRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Number == 0 || req.Model == "" {
		h.badRequest(c)
		return
	}
	if _, err := h.Fleet.UpdateEquipment(c.Request.Context(), id, req.Number, req.Model); err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, id, "equipment updated")
}

// DeleteEquipment removes a truck with all its inspections.
func (h *Handler) DeleteEquipment(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	if err := h.Fleet.DeleteEquipment(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, id, "equipment deleted")
}
