package carryforward

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"caex-inspector-backend/internal/apperr"
	"caex-inspector-backend/internal/db"
	"caex-inspector-backend/internal/model"
	"caex-inspector-backend/internal/store"
	"caex-inspector-backend/internal/watch"
)

type fixture struct {
	r         *Resolver
	store     store.Store
	hub       *watch.Hub
	reception *model.Inspection
	delivery  *model.Inspection
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

	ctx := context.Background()
	s := store.NewGormStore(testDB)
	hub := watch.NewHub(nil)
	truck := &model.Equipment{Number: 301, Model: model.Model797F}
	require.NoError(t, s.CreateEquipment(ctx, truck))

	rec := &model.Inspection{EquipmentID: truck.ID, Type: model.TypeReception, State: model.StatePendingClosure, InspectorName: "Juan", SupervisorName: "Pedro"}
	require.NoError(t, s.CreateInspection(ctx, rec))
	del := &model.Inspection{EquipmentID: truck.ID, Type: model.TypeDelivery, State: model.StateOpen, InspectorName: "Ana", SupervisorName: "Pedro", ReceptionID: &rec.ID}
	require.NoError(t, s.CreateInspection(ctx, del))

	questions, err := s.ListQuestions(ctx, model.Model797F, 0)
	require.NoError(t, err)
	return &fixture{r: NewResolver(s, hub), store: s, hub: hub, reception: rec, delivery: del, questions: questions}
}

func (f *fixture) answer(t *testing.T, q model.Question, state model.AnswerState, comments string) *model.Answer {
	t.Helper()
	a := &model.Answer{InspectionID: f.reception.ID, QuestionID: q.ID, State: state, Comments: comments}
	require.NoError(t, f.store.CreateAnswer(context.Background(), a))
	return a
}

func TestResolve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q1, q2, q3 := f.questions[0], f.questions[1], f.questions[2]
	f.answer(t, q1, model.StateNonConforme, "brake wear")
	f.answer(t, q2, model.StateConforme, "")
	f.answer(t, q3, model.StateNonConforme, "leak")

	set, err := f.r.Resolve(ctx, f.delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{q1.ID, q3.ID}, set.QuestionIDs)
	assert.True(t, set.Contains(q1.ID))
	assert.False(t, set.Contains(q2.ID))
	assert.Equal(t, "brake wear", set.Items[q1.ID].Comments)
	assert.Equal(t, f.reception.ID, set.ReceptionID)

	byCat := set.ByCategory()
	assert.Equal(t, []int64{q1.ID, q3.ID}, byCat[q1.CategoryID])
}

func TestResolveEdgeCases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("reception is not a delivery", func(t *testing.T) {
		_, err := f.r.Resolve(ctx, f.reception.ID)
		assert.True(t, apperr.IsKind(err, apperr.KindInvalidState))
	})

	t.Run("unlinked delivery has an empty set", func(t *testing.T) {
		loose := &model.Inspection{EquipmentID: f.delivery.EquipmentID, Type: model.TypeDelivery, State: model.StateOpen, InspectorName: "Ana", SupervisorName: "Pedro"}
		require.NoError(t, f.store.CreateInspection(ctx, loose))
		set, err := f.r.Resolve(ctx, loose.ID)
		require.NoError(t, err)
		assert.Empty(t, set.QuestionIDs)
	})

	t.Run("missing delivery", func(t *testing.T) {
		_, err := f.r.Resolve(ctx, 9999)
		assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	})
}

func TestAnnotate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.answer(t, f.questions[4], model.StateNonConforme, "brake wear")

	all, err := f.r.Annotate(ctx, f.delivery.ID, 0)
	require.NoError(t, err)
	require.Len(t, all, len(f.questions))
	highlighted := 0
	for _, q := range all {
		if q.Highlighted {
			highlighted++
			assert.Equal(t, f.questions[4].ID, q.ID)
			assert.Equal(t, "brake wear", q.ReceptionComments)
		}
	}
	assert.Equal(t, 1, highlighted)

	byCategory, err := f.r.Annotate(ctx, f.delivery.ID, f.questions[4].CategoryID)
	require.NoError(t, err)
	for _, q := range byCategory {
		assert.Equal(t, f.questions[4].CategoryID, q.CategoryID)
	}
}

func TestWatchFollowsReceptionChanges(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sets, _ := f.r.Watch(ctx, f.delivery.ID)
	first := <-sets
	assert.Empty(t, first.QuestionIDs)

	a := f.answer(t, f.questions[0], model.StateNonConforme, "late fix")
	f.hub.Publish(watch.AnswersTopic(f.reception.ID), "save", a.ID)

	select {
	case next := <-sets:
		assert.Equal(t, []int64{f.questions[0].ID}, next.QuestionIDs)
	case <-time.After(2 * time.Second):
		t.Fatal("carry-forward set not re-emitted")
	}

	_, errc := f.r.Watch(ctx, 9999)
	assert.True(t, apperr.IsKind(<-errc, apperr.KindNotFound))
}
