package lifecycle

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"caex-inspector-backend/internal/apperr"
	"caex-inspector-backend/internal/db"
	"caex-inspector-backend/internal/model"
	"caex-inspector-backend/internal/notification"
	"caex-inspector-backend/internal/override"
	"caex-inspector-backend/internal/store"
	"caex-inspector-backend/internal/watch"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification.Event
}

func (r *recordingNotifier) Dispatch(ev notification.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

type recordingFiles struct {
	removed []string
}

func (r *recordingFiles) Remove(paths ...string) error {
	r.removed = append(r.removed, paths...)
	return nil
}

// failingStore fails the state transition of one inspection inside a transaction.
type failingStore struct {
	store.Store
	failOn int64
}

func (f failingStore) InTx(ctx context.Context, fn func(tx store.Store) error) error {
	return f.Store.InTx(ctx, func(tx store.Store) error {
		return fn(failingStore{Store: tx, failOn: f.failOn})
	})
}

func (f failingStore) TransitionInspection(ctx context.Context, id int64, from, to model.InspectionState, at time.Time, comments string) (bool, error) {
	if id == f.failOn {
		return false, errors.New("disk I/O error")
	}
	return f.Store.TransitionInspection(ctx, id, from, to, at, comments)
}

type fixture struct {
	m         *Manager
	store     store.Store
	cache     *override.Cache
	notifier  *recordingNotifier
	files     *recordingFiles
	truck     *model.Equipment
	questions []model.Question
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	testDB, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := testDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.Migrate(testDB))
	_, err = db.Seed(testDB)
	require.NoError(t, err)

	log := logrus.New()
	log.SetOutput(io.Discard)

	f := &fixture{
		store:    store.NewGormStore(testDB),
		cache:    override.New(time.Hour, time.Hour),
		notifier: &recordingNotifier{},
		files:    &recordingFiles{},
		truck:    &model.Equipment{Number: 301, Model: model.Model797F},
	}
	f.m = NewManager(f.store, f.cache, watch.NewHub(log), f.notifier, f.files, log)
	ctx := context.Background()
	require.NoError(t, f.store.CreateEquipment(ctx, f.truck))
	f.questions, err = f.store.ListQuestions(ctx, model.Model797F, 0)
	require.NoError(t, err)
	return f
}

func ptr[T any](v T) *T { return &v }

// answerAll answers every applicable question positively except the ones in
// negatives, which get the negative state with comments and ref.
func (f *fixture) answerAll(t *testing.T, inspectionID int64, typ model.InspectionType, negatives map[int64]*string) {
	t.Helper()
	vocab := model.VocabularyFor(typ)
	for _, q := range f.questions {
		a := &model.Answer{InspectionID: inspectionID, QuestionID: q.ID, State: vocab.Positive}
		if ref, ok := negatives[q.ID]; ok {
			a.State = vocab.Negative
			a.Comments = "desgaste"
			a.ReferenceID = ref
		}
		require.NoError(t, f.store.CreateAnswer(context.Background(), a))
	}
}

func (f *fixture) pendingReception(t *testing.T) int64 {
	t.Helper()
	ctx := context.Background()
	id, err := f.m.CreateReceptionInspection(ctx, f.truck.ID, "Juan", "Pedro")
	require.NoError(t, err)
	f.answerAll(t, id, model.TypeReception, nil)
	closed, err := f.m.Close(ctx, id, "")
	require.NoError(t, err)
	require.True(t, closed)
	return id
}

func TestCreateReceptionInspection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.m.CreateReceptionInspection(ctx, f.truck.ID, " Juan ", "Pedro")
	require.NoError(t, err)
	insp, err := f.m.GetInspection(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.TypeReception, insp.Type)
	assert.Equal(t, model.StateOpen, insp.State)
	assert.Equal(t, "Juan", insp.InspectorName)
	assert.Nil(t, insp.ReceptionID)
	assert.Nil(t, insp.CompletedAt)

	_, err = f.m.CreateReceptionInspection(ctx, 9999, "Juan", "Pedro")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	_, err = f.m.CreateReceptionInspection(ctx, f.truck.ID, "  ", "Pedro")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestCloseInspectionGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, err := f.m.CreateReceptionInspection(ctx, f.truck.ID, "Juan", "Pedro")
	require.NoError(t, err)

	t.Run("incomplete questionnaire returns false without error", func(t *testing.T) {
		out, err := f.m.CloseInspection(ctx, id, "")
		require.NoError(t, err)
		assert.False(t, out.Closed)
		assert.Equal(t, ReasonIncomplete, out.Reason)
		assert.Equal(t, int64(0), out.Completion.Answered)

		insp, err := f.m.GetInspection(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.StateOpen, insp.State)
	})

	f.answerAll(t, id, model.TypeReception, map[int64]*string{f.questions[4].ID: nil})

	t.Run("negative answer without reference blocks closure", func(t *testing.T) {
		out, err := f.m.CloseInspection(ctx, id, "")
		require.NoError(t, err)
		assert.False(t, out.Closed)
		assert.Equal(t, ReasonRemediationMissing, out.Reason)
		assert.Len(t, out.IncompleteAnswerIDs, 1)
	})

	t.Run("complete reception moves to pending closure", func(t *testing.T) {
		a, err := f.store.GetAnswer(ctx, id, f.questions[4].ID)
		require.NoError(t, err)
		a.ReferenceID = ptr("OT-1")
		require.NoError(t, f.store.UpdateAnswer(ctx, a))
		f.cache.RecordIntent(id, f.questions[0].ID, model.StateConforme)

		out, err := f.m.CloseInspection(ctx, id, "sin observaciones")
		require.NoError(t, err)
		assert.True(t, out.Closed)
		assert.Equal(t, model.StatePendingClosure, out.State)
		assert.Nil(t, out.CascadedReceptionID)

		insp, err := f.m.GetInspection(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.StatePendingClosure, insp.State)
		assert.Equal(t, "sin observaciones", insp.GeneralComments)
		assert.NotNil(t, insp.CompletedAt)
		assert.Empty(t, f.cache.Intents(id))

		require.Len(t, f.notifier.events, 1)
		assert.Equal(t, 301, f.notifier.events[0].EquipmentNumber)
		assert.Equal(t, model.StatePendingClosure, f.notifier.events[0].State)
	})

	t.Run("closing again is an invalid state", func(t *testing.T) {
		_, err := f.m.CloseInspection(ctx, id, "")
		assert.True(t, apperr.IsKind(err, apperr.KindInvalidState))
	})

	t.Run("missing inspection", func(t *testing.T) {
		_, err := f.m.CloseInspection(ctx, 9999, "")
		assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	})
}

func TestCreateDeliveryInspection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	open, err := f.m.CreateReceptionInspection(ctx, f.truck.ID, "Juan", "Pedro")
	require.NoError(t, err)

	t.Run("reception must be pending closure", func(t *testing.T) {
		_, err := f.m.CreateDeliveryInspection(ctx, open, "Ana", "Pedro")
		assert.True(t, apperr.IsKind(err, apperr.KindPrecondition), "got %v", err)
	})

	reception := f.pendingReception(t)
	delivery, err := f.m.CreateDeliveryInspection(ctx, reception, "Ana", "Pedro")
	require.NoError(t, err)

	t.Run("delivery copies the equipment and links the reception", func(t *testing.T) {
		d, err := f.m.GetInspection(ctx, delivery)
		require.NoError(t, err)
		assert.Equal(t, model.TypeDelivery, d.Type)
		assert.Equal(t, model.StateOpen, d.State)
		assert.Equal(t, f.truck.ID, d.EquipmentID)
		require.NotNil(t, d.ReceptionID)
		assert.Equal(t, reception, *d.ReceptionID)

		has, err := f.m.HasLinkedDelivery(ctx, reception)
		require.NoError(t, err)
		assert.True(t, has)

		has, err = f.m.HasLinkedDelivery(ctx, open)
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("second delivery is rejected", func(t *testing.T) {
		_, err := f.m.CreateDeliveryInspection(ctx, reception, "Ana", "Pedro")
		assert.True(t, apperr.IsKind(err, apperr.KindInvalidState), "got %v", err)
	})

	t.Run("delivery of a delivery is rejected", func(t *testing.T) {
		_, err := f.m.CreateDeliveryInspection(ctx, delivery, "Ana", "Pedro")
		assert.True(t, apperr.IsKind(err, apperr.KindInvalidState))
	})

	t.Run("concurrent creation yields one delivery", func(t *testing.T) {
		other := f.pendingReception(t)
		var wg sync.WaitGroup
		var mu sync.Mutex
		created := 0
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := f.m.CreateDeliveryInspection(ctx, other, "Ana", "Pedro"); err == nil {
					mu.Lock()
					created++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, created)
	})
}

func TestCascadingClosure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reception := f.pendingReception(t)
	delivery, err := f.m.CreateDeliveryInspection(ctx, reception, "Ana", "Pedro")
	require.NoError(t, err)
	f.answerAll(t, delivery, model.TypeDelivery, nil)

	out, err := f.m.CloseInspection(ctx, delivery, "entregado")
	require.NoError(t, err)
	assert.True(t, out.Closed)
	assert.Equal(t, model.StateClosed, out.State)
	require.NotNil(t, out.CascadedReceptionID)
	assert.Equal(t, reception, *out.CascadedReceptionID)

	for _, id := range []int64{reception, delivery} {
		insp, err := f.m.GetInspection(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.StateClosed, insp.State)
		assert.Equal(t, "entregado", insp.GeneralComments)
	}
	// pending closure of the reception, then the delivery and the cascade.
	assert.Len(t, f.notifier.events, 3)
}

func TestCascadingClosureIsAtomic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reception := f.pendingReception(t)
	delivery, err := f.m.CreateDeliveryInspection(ctx, reception, "Ana", "Pedro")
	require.NoError(t, err)
	f.answerAll(t, delivery, model.TypeDelivery, nil)

	broken := NewManager(failingStore{Store: f.store, failOn: reception}, f.cache, f.m.hub, f.notifier, f.files, f.m.log)
	_, err = broken.CloseInspection(ctx, delivery, "")
	require.Error(t, err)

	d, err := f.m.GetInspection(ctx, delivery)
	require.NoError(t, err)
	assert.Equal(t, model.StateOpen, d.State)
	assert.Nil(t, d.CompletedAt)
	r, err := f.m.GetInspection(ctx, reception)
	require.NoError(t, err)
	assert.Equal(t, model.StatePendingClosure, r.State)
}

func TestDeleteInspection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, err := f.m.CreateReceptionInspection(ctx, f.truck.ID, "Juan", "Pedro")
	require.NoError(t, err)

	a := &model.Answer{InspectionID: id, QuestionID: f.questions[0].ID, State: model.StateNonConforme, Comments: "x"}
	require.NoError(t, f.store.CreateAnswer(ctx, a))
	require.NoError(t, f.store.CreatePhoto(ctx, &model.Photo{AnswerID: a.ID, Path: "p/1.jpg", Thumbnail: "p/1_thumb.jpg"}))
	f.cache.RecordIntent(id, f.questions[1].ID, model.StateConforme)

	require.NoError(t, f.m.DeleteInspection(ctx, id))
	assert.Equal(t, []string{"p/1.jpg", "p/1_thumb.jpg"}, f.files.removed)
	assert.Empty(t, f.cache.Intents(id))

	_, err = f.m.GetInspection(ctx, id)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	assert.True(t, apperr.IsKind(f.m.DeleteInspection(ctx, id), apperr.KindNotFound))
}

func TestListQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ac := &model.Equipment{Number: 350, Model: model.Model798AC}
	require.NoError(t, f.store.CreateEquipment(ctx, ac))

	pending := f.pendingReception(t)
	open, err := f.m.CreateReceptionInspection(ctx, ac.ID, "Juan", "Pedro")
	require.NoError(t, err)
	delivery, err := f.m.CreateDeliveryInspection(ctx, pending, "Ana", "Pedro")
	require.NoError(t, err)

	all, err := f.m.ListOpen(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	pend, err := f.m.ListByState(ctx, model.StatePendingClosure)
	require.NoError(t, err)
	require.Len(t, pend, 1)
	assert.Equal(t, pending, pend[0].ID)

	deliveries, err := f.m.ListByTypeAndState(ctx, model.TypeDelivery, model.StateOpen)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	assert.Equal(t, delivery, deliveries[0].ID)

	acOpen, err := f.m.ListByModelStateAndType(ctx, model.Model798AC, model.StateOpen, model.TypeReception)
	require.NoError(t, err)
	require.Len(t, acOpen, 1)
	assert.Equal(t, open, acOpen[0].ID)
}

func TestWatchReemitsOnClose(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id, err := f.m.CreateReceptionInspection(ctx, f.truck.ID, "Juan", "Pedro")
	require.NoError(t, err)
	f.answerAll(t, id, model.TypeReception, nil)

	snapshots, _ := f.m.Watch(ctx, store.InspectionFilter{States: []model.InspectionState{model.StateOpen}})
	first := <-snapshots
	require.Len(t, first, 1)

	closed, err := f.m.Close(ctx, id, "")
	require.NoError(t, err)
	require.True(t, closed)

	select {
	case next := <-snapshots:
		assert.Empty(t, next)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot after close")
	}
}
