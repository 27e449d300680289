package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"caex-inspector-backend/internal/model"
)

type modelResponse struct {
	Model model.EquipmentModel `json:"model"`
	Min   int                  `json:"min"`
	Max   int                  `json:"max"`
}

// GetModels lists the equipment models with their identifier ranges.
func (h *Handler) GetModels(c *gin.Context) {
	ranges := h.Fleet.Ranges()
	out := make([]modelResponse, 0, len(ranges))
	for _, m := range h.Fleet.Models() {
		r := ranges[string(m)]
		out = append(out, modelResponse{Model: m, Min: r.Min, Max: r.Max})
	}
	c.JSON(http.StatusOK, out)
}

// requireModel reads a specific equipment model from the query.
func (h *Handler) requireModel(c *gin.Context) (model.EquipmentModel, bool) {
	m, ok := modelParam(c)
	if !ok || m == model.ModelAll {
		h.badRequest(c)
		return "", false
	}
	return m, true
}

// GetCategories lists the categories of a model in display order.
func (h *Handler) GetCategories(c *gin.Context) {
	m, ok := h.requireModel(c)
	if !ok {
		return
	}
	list, err := h.Store.ListCategories(c.Request.Context(), m)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// GetQuestions lists the questions of a model, optionally of one category.
func (h *Handler) GetQuestions(c *gin.Context) {
	m, ok := h.requireModel(c)
	if !ok {
		return
	}
	categoryID, ok := queryInt64(c, "category_id")
	if !ok {
		h.badRequest(c)
		return
	}
	list, err := h.Store.ListQuestions(c.Request.Context(), m, categoryID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}
