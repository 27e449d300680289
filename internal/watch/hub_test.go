package watch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	h := NewHub(nil)
	sub := h.Subscribe(AnswersTopic(7))
	other := h.Subscribe(TopicInspections)
	defer other.Close()

	h.Publish(AnswersTopic(7), "save", 3)
	select {
	case evt := <-sub.C:
		assert.Equal(t, Event{Topic: "answers:7", Action: "save", ID: 3}, evt)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	select {
	case evt := <-other.C:
		t.Fatalf("unexpected event on other topic: %+v", evt)
	default:
	}

	assert.Equal(t, 1, h.Subscribers(AnswersTopic(7)))
	sub.Close()
	sub.Close()
	assert.Equal(t, 0, h.Subscribers(AnswersTopic(7)))
}

func TestPublishCoalesces(t *testing.T) {
	h := NewHub(nil)
	sub := h.Subscribe(TopicEquipment)
	defer sub.Close()

	for i := 0; i < 10; i++ {
		h.Publish(TopicEquipment, "update", int64(i))
	}
	<-sub.C
	select {
	case <-sub.C:
		t.Fatal("expected pending notifications to be coalesced")
	default:
	}
}

func TestStreamEmitsSnapshots(t *testing.T) {
	h := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var version atomic.Int64
	out, errc := Stream(ctx, h, TopicInspections, func(context.Context) (int64, error) {
		return version.Load(), nil
	})

	assert.Equal(t, int64(0), <-out)

	// Wait for the stream goroutine to be listening before publishing.
	require.Eventually(t, func() bool { return h.Subscribers(TopicInspections) == 1 }, time.Second, time.Millisecond)
	version.Store(5)
	h.Publish(TopicInspections, "close", 1)
	assert.Equal(t, int64(5), <-out)

	cancel()
	_, open := <-out
	assert.False(t, open)
	assert.NoError(t, <-errc)
	require.Eventually(t, func() bool { return h.Subscribers(TopicInspections) == 0 }, time.Second, time.Millisecond)
}

func TestStreamStopsOnQueryError(t *testing.T) {
	h := NewHub(nil)
	boom := errors.New("boom")
	out, errc := Stream(context.Background(), h, TopicInspections, func(context.Context) (int, error) {
		return 0, boom
	})

	_, open := <-out
	assert.False(t, open)
	assert.ErrorIs(t, <-errc, boom)
}
