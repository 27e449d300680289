// Package override keeps the last answer state a user picked for each
// question until the durable write that carries it has landed.
package override

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"caex-inspector-backend/internal/model"
)

// Intent is an answer state selected by the user but not yet confirmed by
// a durable write.
type Intent struct {
	InspectionID int64             `json:"inspection_id"`
	QuestionID   int64             `json:"question_id"`
	State        model.AnswerState `json:"state"`
	AnswerID     int64             `json:"answer_id,omitempty"`
	RecordedAt   time.Time         `json:"recorded_at"`
}

// Resolution is the state a list row should render.
type Resolution struct {
	State model.AnswerState `json:"state"`
	// Pending is true when the state comes from an unconfirmed intent.
	Pending bool `json:"pending"`
}

// Cache is safe for concurrent use. go-cache guards single operations;
// mu serializes the read-modify-write ones.
type Cache struct {
	mu      sync.Mutex
	entries *cache.Cache
	ttl     time.Duration
	now     func() time.Time
}

// New creates a cache whose entries expire after ttl if never confirmed.
func New(ttl, cleanup time.Duration) *Cache {
	return &Cache{
		entries: cache.New(ttl, cleanup),
		ttl:     ttl,
		now:     time.Now,
	}
}

func key(inspectionID, questionID int64) string {
	return fmt.Sprintf("%d:%d", inspectionID, questionID)
}

func prefix(inspectionID int64) string {
	return fmt.Sprintf("%d:", inspectionID)
}

// RecordIntent sets or overwrites the cached intent for the pair.
func (c *Cache) RecordIntent(inspectionID, questionID int64, state model.AnswerState) Intent {
	c.mu.Lock()
	defer c.mu.Unlock()

	in := Intent{
		InspectionID: inspectionID,
		QuestionID:   questionID,
		State:        state,
		RecordedAt:   c.now(),
	}
	if prev, ok := c.get(inspectionID, questionID); ok {
		in.AnswerID = prev.AnswerID
	}
	c.entries.Set(key(inspectionID, questionID), in, c.ttl)
	return in
}

// GetIntent returns the cached intent for the pair, if any.
func (c *Cache) GetIntent(inspectionID, questionID int64) (Intent, bool) {
	return c.get(inspectionID, questionID)
}

func (c *Cache) get(inspectionID, questionID int64) (Intent, bool) {
	v, ok := c.entries.Get(key(inspectionID, questionID))
	if !ok {
		return Intent{}, false
	}
	return v.(Intent), true
}

// Intents returns every cached intent of an inspection keyed by question id.
func (c *Cache) Intents(inspectionID int64) map[int64]Intent {
	p := prefix(inspectionID)
	out := make(map[int64]Intent)
	for k, item := range c.entries.Items() {
		if strings.HasPrefix(k, p) {
			in := item.Object.(Intent)
			out[in.QuestionID] = in
		}
	}
	return out
}

// EnsureNegativeState re-asserts the negative intent of a just-created
// negative answer. It is a no-op when the cached intent is already
// negative and reports whether it wrote anything.
func (c *Cache) EnsureNegativeState(inspectionID, questionID, answerID int64, negative model.AnswerState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.get(inspectionID, questionID); ok && prev.State.IsNegative() {
		if prev.AnswerID == 0 {
			prev.AnswerID = answerID
			c.entries.Set(key(inspectionID, questionID), prev, c.ttl)
		}
		return false
	}
	c.entries.Set(key(inspectionID, questionID), Intent{
		InspectionID: inspectionID,
		QuestionID:   questionID,
		State:        negative,
		AnswerID:     answerID,
		RecordedAt:   c.now(),
	}, c.ttl)
	return true
}

// Confirm drops the intent once a durable write of committed has landed.
// An intent recorded after the write started with a different state is
// newer than the committed row and is kept.
func (c *Cache) Confirm(inspectionID, questionID int64, committed model.AnswerState, writeStarted time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	in, ok := c.get(inspectionID, questionID)
	if !ok {
		return false
	}
	if in.State == committed || !in.RecordedAt.After(writeStarted) {
		c.entries.Delete(key(inspectionID, questionID))
		return true
	}
	return false
}

// Resolve merges the durable answer with the cached intent, whichever was
// written last wins. durable may be nil when no row exists yet.
func (c *Cache) Resolve(inspectionID, questionID int64, durable *model.Answer) (Resolution, bool) {
	in, ok := c.get(inspectionID, questionID)
	switch {
	case ok && (durable == nil || in.RecordedAt.After(durable.UpdatedAt)):
		return Resolution{State: in.State, Pending: in.State != stateOf(durable)}, true
	case durable != nil:
		return Resolution{State: durable.State}, true
	}
	return Resolution{}, false
}

func stateOf(a *model.Answer) model.AnswerState {
	if a == nil {
		return ""
	}
	return a.State
}

// Clear drops every intent of an inspection and returns how many were removed.
func (c *Cache) Clear(inspectionID int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := prefix(inspectionID)
	n := 0
	for k := range c.entries.Items() {
		if strings.HasPrefix(k, p) {
			c.entries.Delete(k)
			n++
		}
	}
	return n
}

// ClearAll drops every intent.
func (c *Cache) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Flush()
}

// Len returns the number of live intents.
func (c *Cache) Len() int {
	return c.entries.ItemCount()
}
