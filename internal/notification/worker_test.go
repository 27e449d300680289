package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/SherClockHolmes/webpush-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"caex-inspector-backend/internal/model"
)

// mockSender is a mock implementation of the NotificationSender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

// newTestDB creates a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

const subscriptionQuery = `SELECT .* FROM "push_subscriptions".*JOIN .*subscription_equipment_mapping.*WHERE .*sem\.equipment_id = \$1`

func TestWorkerPool_Dispatch(t *testing.T) {
	db, _ := newTestDB(t)
	wp := NewWorkerPool(1, db, &webpush.Options{}, quietLogger())

	ev := Event{InspectionID: 9, EquipmentID: 123, EquipmentNumber: 301, Type: model.TypeReception, State: model.StatePendingClosure}
	wp.Dispatch(ev)

	select {
	case job := <-wp.Jobs():
		assert.Equal(t, ev, job)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for job to be dispatched")
	}
}

func TestWorkerPool_DispatchDropsWhenFull(t *testing.T) {
	db, _ := newTestDB(t)
	wp := NewWorkerPool(1, db, &webpush.Options{}, quietLogger())

	for i := 0; i < cap(wp.Jobs())+5; i++ {
		wp.Dispatch(Event{InspectionID: int64(i)})
	}
	assert.Equal(t, cap(wp.Jobs()), len(wp.Jobs()))
}

func TestEventPayload(t *testing.T) {
	testCases := []struct {
		name string
		ev   Event
		body string
	}{
		{name: "reception finished", ev: Event{EquipmentNumber: 301, Type: model.TypeReception, State: model.StatePendingClosure}, body: "Recepción terminada, pendiente de entrega"},
		{name: "delivery closed", ev: Event{EquipmentNumber: 301, Type: model.TypeDelivery, State: model.StateClosed}, body: "Entrega cerrada"},
		{name: "cascaded reception", ev: Event{EquipmentNumber: 301, Type: model.TypeReception, State: model.StateClosed}, body: "Inspección CLOSED"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := tc.ev.payload()
			require.NoError(t, err)
			var got map[string]any
			require.NoError(t, json.Unmarshal(raw, &got))
			assert.Equal(t, "CAEX 301", got["title"])
			assert.Equal(t, tc.body, got["body"])
			assert.Equal(t, string(tc.ev.State), got["state"])
		})
	}
}

func TestWorkerPool_WorkerLogic(t *testing.T) {
	gormDB, mock := newTestDB(t)
	wp := NewWorkerPool(1, gormDB, &webpush.Options{}, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	t.Run("sends notification for one subscription", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		ev := Event{InspectionID: 1, EquipmentID: 101, EquipmentNumber: 312, Type: model.TypeDelivery, State: model.StateClosed}
		subscription := model.PushSubscription{
			Endpoint: "https://example.com/push",
			P256DH:   "test_p256dh",
			Auth:     "test_auth",
		}

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				defer wg.Done()
				assert.Equal(t, "https://example.com/push", sub.Endpoint)
				assert.Equal(t, "test_p256dh", sub.Keys.P256dh)
				assert.Contains(t, string(payload), `"title":"CAEX 312"`)
				return &http.Response{
					StatusCode: http.StatusCreated,
					Body:       io.NopCloser(bytes.NewBufferString("")),
				}, nil
			},
		}

		mock.ExpectQuery(subscriptionQuery).
			WithArgs(ev.EquipmentID).
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "created_at"}).
				AddRow(subscription.Endpoint, subscription.P256DH, subscription.Auth, time.Now()))

		wp.Dispatch(ev)
		wg.Wait()
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deletes expired subscription", func(t *testing.T) {
		ev := Event{InspectionID: 2, EquipmentID: 102, EquipmentNumber: 345, Type: model.TypeReception, State: model.StatePendingClosure}
		endpoint := "https://example.com/expired"

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				return &http.Response{
					StatusCode: http.StatusGone,
					Body:       io.NopCloser(bytes.NewBufferString("")),
				}, nil
			},
		}

		mock.ExpectQuery(subscriptionQuery).
			WithArgs(ev.EquipmentID).
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "created_at"}).
				AddRow(endpoint, "p", "a", time.Now()))

		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM subscription_equipment_mapping WHERE push_subscription_endpoint = \$1`).
			WithArgs(endpoint).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`DELETE FROM "push_subscriptions" WHERE endpoint = \$1`).
			WithArgs(endpoint).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		wp.Dispatch(ev)

		assert.Eventually(t, func() bool { return mock.ExpectationsWereMet() == nil }, time.Second, 10*time.Millisecond)
	})

	t.Run("no subscriptions sends nothing", func(t *testing.T) {
		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				t.Error("sender must not be called")
				return nil, nil
			},
		}

		mock.ExpectQuery(subscriptionQuery).
			WithArgs(int64(103)).
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "created_at"}))

		wp.Dispatch(Event{InspectionID: 3, EquipmentID: 103})
		assert.Eventually(t, func() bool { return mock.ExpectationsWereMet() == nil }, time.Second, 10*time.Millisecond)
	})
}
