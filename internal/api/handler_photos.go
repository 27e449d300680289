package api

import (
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
)

// UploadPhoto attaches the multipart "file" to a negative answer.
func (h *Handler) UploadPhoto(c *gin.Context) {
	answerID, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		h.badRequest(c)
		return
	}
	f, err := header.Open()
	if err != nil {
		h.fail(c, err)
		return
	}
	defer f.Close()

	p, err := h.Answers.AddPhoto(c.Request.Context(), answerID, f, filepath.Ext(header.Filename), c.PostForm("description"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) ListPhotos(c *gin.Context) {
	answerID, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	list, err := h.Answers.ListPhotos(c.Request.Context(), answerID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) DeletePhoto(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	if err := h.Answers.DeletePhoto(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, id, "photo deleted")
}
