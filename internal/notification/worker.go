package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"caex-inspector-backend/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Event is an inspection that reached a state supervisors follow.
type Event struct {
	InspectionID    int64                 `json:"inspection_id"`
	EquipmentID     int64                 `json:"equipment_id"`
	EquipmentNumber int                   `json:"equipment_number"`
	Type            model.InspectionType  `json:"type"`
	State           model.InspectionState `json:"state"`
}

type payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Event
}

func (e Event) payload() ([]byte, error) {
	var body string
	switch {
	case e.State == model.StatePendingClosure:
		body = "Recepción terminada, pendiente de entrega"
	case e.State == model.StateClosed && e.Type == model.TypeDelivery:
		body = "Entrega cerrada"
	default:
		body = fmt.Sprintf("Inspección %s", e.State)
	}
	return json.Marshal(payload{
		Title: fmt.Sprintf("CAEX %d", e.EquipmentNumber),
		Body:  body,
		Event: e,
	})
}

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size    int
	jobs    chan Event
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
	log     *logrus.Logger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options, log *logrus.Logger) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Event, size*16),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		log:     log,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.log.WithField("worker", id).Debug("notification worker started")
	for {
		select {
		case ev := <-wp.jobs:
			wp.sendNotificationsForEquipment(ctx, ev)
		case <-ctx.Done():
			wp.log.WithField("worker", id).Debug("notification worker shutting down")
			return
		}
	}
}

// Dispatch queues an event. A full queue drops the event rather than
// holding up the request that closed the inspection.
func (wp *WorkerPool) Dispatch(ev Event) {
	select {
	case wp.jobs <- ev:
	default:
		wp.log.WithFields(logrus.Fields{
			"inspection_id": ev.InspectionID,
			"equipment_id":  ev.EquipmentID,
		}).Warn("notification queue full, event dropped")
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Event {
	return wp.jobs
}

// sendNotificationsForEquipment notifies every subscription following the truck.
func (wp *WorkerPool) sendNotificationsForEquipment(ctx context.Context, ev Event) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_equipment_mapping sem ON sem.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("sem.equipment_id = ?", ev.EquipmentID).
		Find(&subscriptions).Error
	if err != nil {
		wp.log.WithError(err).WithField("equipment_id", ev.EquipmentID).Error("failed to fetch subscriptions")
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	body, err := ev.payload()
	if err != nil {
		wp.log.WithError(err).Error("failed to encode notification")
		return
	}

	wp.log.WithFields(logrus.Fields{
		"equipment_id":  ev.EquipmentID,
		"inspection_id": ev.InspectionID,
		"subscriptions": len(subscriptions),
	}).Info("sending notifications")
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, body)
	}
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, body []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(body, wpSub, wp.webpush)
	if err != nil {
		wp.log.WithError(err).WithField("endpoint", sub.Endpoint).Warn("failed to send notification")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		wp.log.WithField("endpoint", sub.Endpoint).Info("subscription expired, deleting")
		if err := DeleteSubscription(ctx, wp.db, sub.Endpoint); err != nil {
			wp.log.WithError(err).WithField("endpoint", sub.Endpoint).Error("failed to delete expired subscription")
		}
	}
}

// DeleteSubscription removes a subscription together with its equipment links.
func DeleteSubscription(ctx context.Context, db *gorm.DB, endpoint string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM subscription_equipment_mapping WHERE push_subscription_endpoint = ?", endpoint).Error; err != nil {
			return err
		}
		return tx.Delete(&model.PushSubscription{}, "endpoint = ?", endpoint).Error
	})
}
