package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"caex-inspector-backend/internal/model"
	"caex-inspector-backend/internal/notification"
)

type putSubscriptionRequest struct {
	Endpoint            string  `json:"endpoint" binding:"required"`
	P256DH              string  `json:"p256dh" binding:"required"`
	Auth                string  `json:"auth" binding:"required"`
	SubscribedEquipment []int64 `json:"subscribed_equipment"`
}

// PutSubscription creates or replaces a supervisor's subscription and the
// set of trucks it follows.
func (h *Handler) PutSubscription(c *gin.Context) {
	var req putSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c)
		return
	}

	subscription := model.PushSubscription{
		Endpoint: req.Endpoint,
		P256DH:   req.P256DH,
		Auth:     req.Auth,
	}

	err := h.Store.DB().WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
		}).Create(&subscription).Error; err != nil {
			return err
		}

		var equipment []*model.Equipment
		if len(req.SubscribedEquipment) > 0 {
			if err := tx.Find(&equipment, req.SubscribedEquipment).Error; err != nil {
				return err
			}
		}

		return tx.Model(&subscription).Association("Equipment").Replace(&equipment)
	})

	if err != nil {
		h.fail(c, err)
		return
	}

	c.Status(http.StatusCreated)
}

type deleteSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeleteSubscription handles the deletion of a subscription.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	var req deleteSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c)
		return
	}

	if err := notification.DeleteSubscription(c.Request.Context(), h.Store.DB(), req.Endpoint); err != nil {
		h.fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// rawQueryParam returns the value of key without URL decoding; push
// endpoints are matched byte for byte.
func rawQueryParam(rawQuery, key string) (string, bool) {
	for _, kv := range strings.Split(rawQuery, "&") {
		if strings.HasPrefix(kv, key+"=") {
			return kv[len(key)+1:], true
		}
	}
	return "", false
}

// GetSubscription returns the trucks a subscription follows.
func (h *Handler) GetSubscription(c *gin.Context) {
	raw, ok := rawQueryParam(c.Request.URL.RawQuery, "endpoint")
	if !ok || raw == "" {
		h.badRequest(c)
		return
	}

	var subscription model.PushSubscription
	err := h.Store.DB().WithContext(c.Request.Context()).
		Preload("Equipment").
		First(&subscription, "endpoint = ?", raw).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "kind": "not_found", "message": "subscription not found"})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	ids := make([]int64, len(subscription.Equipment))
	for i, e := range subscription.Equipment {
		ids[i] = e.ID
	}

	c.JSON(http.StatusOK, gin.H{"subscribed_equipment": ids})
}
