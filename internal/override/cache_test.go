package override

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caex-inspector-backend/internal/model"
)

// newTestCache returns a cache whose clock advances one second per read.
func newTestCache() *Cache {
	c := New(time.Hour, time.Hour)
	t0 := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	c.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t0 = t0.Add(time.Second)
		return t0
	}
	return c
}

func TestRecordAndGetIntent(t *testing.T) {
	c := newTestCache()

	_, ok := c.GetIntent(1, 10)
	assert.False(t, ok)

	c.RecordIntent(1, 10, model.StateConforme)
	c.RecordIntent(1, 10, model.StateNonConforme)

	in, ok := c.GetIntent(1, 10)
	require.True(t, ok)
	assert.Equal(t, model.StateNonConforme, in.State)
	assert.Equal(t, 1, c.Len())
}

func TestEnsureNegativeState(t *testing.T) {
	testCases := []struct {
		name      string
		prior     model.AnswerState
		negative  model.AnswerState
		wantWrite bool
		wantState model.AnswerState
	}{
		{name: "no intent", negative: model.StateNonConforme, wantWrite: true, wantState: model.StateNonConforme},
		{name: "already negative", prior: model.StateNonConforme, negative: model.StateNonConforme, wantWrite: false, wantState: model.StateNonConforme},
		{name: "overwritten by positive", prior: model.StateConforme, negative: model.StateNonConforme, wantWrite: true, wantState: model.StateNonConforme},
		{name: "delivery vocabulary", prior: model.StateAccepted, negative: model.StateRejected, wantWrite: true, wantState: model.StateRejected},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestCache()
			if tc.prior != "" {
				c.RecordIntent(1, 5, tc.prior)
			}
			wrote := c.EnsureNegativeState(1, 5, 42, tc.negative)
			assert.Equal(t, tc.wantWrite, wrote)

			in, ok := c.GetIntent(1, 5)
			require.True(t, ok)
			assert.Equal(t, tc.wantState, in.State)
			assert.Equal(t, int64(42), in.AnswerID)
		})
	}
}

func TestConfirm(t *testing.T) {
	t.Run("matching state is dropped", func(t *testing.T) {
		c := newTestCache()
		c.RecordIntent(1, 1, model.StateNonConforme)
		assert.True(t, c.Confirm(1, 1, model.StateNonConforme, c.now()))
		assert.Equal(t, 0, c.Len())
	})

	t.Run("newer intent survives an older write", func(t *testing.T) {
		c := newTestCache()
		writeStarted := c.now()
		c.RecordIntent(1, 1, model.StateConforme)
		assert.False(t, c.Confirm(1, 1, model.StateNonConforme, writeStarted))
		in, ok := c.GetIntent(1, 1)
		require.True(t, ok)
		assert.Equal(t, model.StateConforme, in.State)
	})

	t.Run("stale intent is dropped by a newer write", func(t *testing.T) {
		c := newTestCache()
		c.RecordIntent(1, 1, model.StateConforme)
		assert.True(t, c.Confirm(1, 1, model.StateNonConforme, c.now()))
		_, ok := c.GetIntent(1, 1)
		assert.False(t, ok)
	})

	t.Run("nothing cached", func(t *testing.T) {
		c := newTestCache()
		assert.False(t, c.Confirm(1, 1, model.StateConforme, c.now()))
	})
}

func TestResolve(t *testing.T) {
	c := newTestCache()

	_, ok := c.Resolve(1, 1, nil)
	assert.False(t, ok)

	c.RecordIntent(1, 1, model.StateNonConforme)
	r, ok := c.Resolve(1, 1, nil)
	require.True(t, ok)
	assert.Equal(t, Resolution{State: model.StateNonConforme, Pending: true}, r)

	older := &model.Answer{State: model.StateConforme, UpdatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	r, _ = c.Resolve(1, 1, older)
	assert.Equal(t, model.StateNonConforme, r.State)
	assert.True(t, r.Pending)

	newer := &model.Answer{State: model.StateConforme, UpdatedAt: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}
	r, _ = c.Resolve(1, 1, newer)
	assert.Equal(t, Resolution{State: model.StateConforme}, r)
}

func TestClear(t *testing.T) {
	c := newTestCache()
	c.RecordIntent(1, 1, model.StateConforme)
	c.RecordIntent(1, 2, model.StateConforme)
	c.RecordIntent(11, 1, model.StateConforme)
	c.RecordIntent(2, 1, model.StateConforme)

	assert.Equal(t, 2, c.Clear(1))
	assert.Len(t, c.Intents(1), 0)
	assert.Len(t, c.Intents(11), 1, "prefix must not match inspection 11")
	assert.Equal(t, 2, c.Len())

	c.ClearAll()
	assert.Equal(t, 0, c.Len())
}

func TestConcurrentAccess(t *testing.T) {
	c := newTestCache()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(tab int) {
			defer wg.Done()
			for q := int64(0); q < 50; q++ {
				c.RecordIntent(1, q, model.StateConforme)
				c.EnsureNegativeState(1, q, q+1, model.StateNonConforme)
				c.Resolve(1, q, nil)
				if tab%2 == 0 {
					c.Confirm(1, q, model.StateNonConforme, c.now())
				}
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 50)
}
