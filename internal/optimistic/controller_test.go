package optimistic

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/idilsaglam/posts/internal/apperr"
	"github.com/idilsaglam/posts/internal/model"
)

type mockService struct{ mock.Mock }

func (m *mockService) GetAll(ctx context.Context) ([]model.Post, error) {
	args := m.Called(ctx)
	posts, _ := args.Get(0).([]model.Post)
	return posts, args.Error(1)
}

func (m *mockService) Create(ctx context.Context, d model.Draft) (model.Post, error) {
	args := m.Called(ctx, d)
	return args.Get(0).(model.Post), args.Error(1)
}

func (m *mockService) Update(ctx context.Context, p model.Post) (model.Post, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(model.Post), args.Error(1)
}

func (m *mockService) Delete(ctx context.Context, id model.ID) error {
	return m.Called(ctx, id).Error(0)
}

type recorder struct{ notices []Notice }

func (r *recorder) Notify(n Notice) { r.notices = append(r.notices, n) }

func status(code int) error {
	return &apperr.TransportError{Method: "TEST", URL: "/posts", Status: code}
}

func titles(items []*model.Post) []string {
	out := make([]string, len(items))
	for i, p := range items {
		out[i] = p.Title
	}
	return out
}

func seeded(t *testing.T, svc Service, opts ...Option) *Controller {
	t.Helper()
	c := New(svc, opts...)
	require.NoError(t, c.Reset([]model.Post{
		{ID: 1, Title: "A"},
		{ID: 2, Title: "B"},
		{ID: 3, Title: "C"},
	}))
	return c
}

func TestCreateAppearsAtTopThenGetsServerID(t *testing.T) {
	ctx := context.Background()
	svc := new(mockService)
	svc.On("Create", ctx, model.Draft{Title: "X"}).Return(model.Post{ID: 42, Title: "X"}, nil)

	c := New(svc)
	m := c.Create(model.Draft{Title: "X"})

	require.Equal(t, 1, c.Len())
	first := c.Items()[0]
	assert.Same(t, m.Post, first)
	assert.False(t, first.Persisted())
	assert.True(t, c.Pending(first))

	require.NoError(t, c.Do(ctx, m))

	assert.Equal(t, model.ID(42), first.ID, "ID is written onto the same post")
	assert.Equal(t, []*model.Post{first}, c.Items())
	assert.False(t, c.Pending(first))
	svc.AssertExpectations(t)
}

func TestCreateBadInputRollsBackAndNotifies(t *testing.T) {
	ctx := context.Background()
	svc := new(mockService)
	badInput := &apperr.TransportError{
		Status: http.StatusBadRequest,
		Body:   []byte(`{"error":"invalid input","fields":{"title":"required"}}`),
	}
	svc.On("Create", ctx, model.Draft{}).Return(model.Post{}, badInput)
	notes := &recorder{}

	c := seeded(t, svc, WithNotifier(notes))
	before := c.Items()

	m := c.Create(model.Draft{})
	assert.Equal(t, 4, c.Len())

	require.NoError(t, c.Do(ctx, m), "bad input on create is handled, not raised")

	assert.Equal(t, before, c.Items())
	require.Len(t, notes.notices, 1)
	assert.Equal(t, LevelWarning, notes.notices[0].Level)
	assert.Equal(t, msgBadInput, notes.notices[0].Message)
	assert.Equal(t, map[string]string{"title": "required"}, notes.notices[0].Fields)
}

func TestCreateOtherFailurePropagatesAndRollsBack(t *testing.T) {
	ctx := context.Background()
	svc := new(mockService)
	svc.On("Create", ctx, model.Draft{Title: "X"}).Return(model.Post{}, status(http.StatusInternalServerError))
	notes := &recorder{}

	c := seeded(t, svc, WithNotifier(notes))
	before := c.Items()

	err := c.Do(ctx, c.Create(model.Draft{Title: "X"}))

	require.Error(t, err)
	assert.Equal(t, apperr.KindOther, apperr.KindOf(err))
	assert.Equal(t, before, c.Items())
	assert.Empty(t, notes.notices)
	assert.Zero(t, c.InFlight())
}

func TestCreateRollbackRemovesTheRightPostAfterInterleaving(t *testing.T) {
	ctx := context.Background()
	svc := new(mockService)
	svc.On("Create", ctx, model.Draft{Title: "X"}).Return(model.Post{}, status(http.StatusBadGateway))
	svc.On("Create", ctx, model.Draft{Title: "Y"}).Return(model.Post{ID: 9, Title: "Y"}, nil)

	c := seeded(t, svc)
	mx := c.Create(model.Draft{Title: "X"})
	my := c.Create(model.Draft{Title: "Y"})
	assert.Equal(t, []string{"Y", "X", "A", "B", "C"}, titles(c.Items()))

	require.Error(t, c.Do(ctx, mx))
	require.NoError(t, c.Do(ctx, my))

	assert.Equal(t, []string{"Y", "A", "B", "C"}, titles(c.Items()))
	assert.Equal(t, model.ID(9), c.Items()[0].ID)
}

func TestDeleteNotFoundRestoresExactIndex(t *testing.T) {
	ctx := context.Background()
	svc := new(mockService)
	svc.On("Delete", ctx, model.ID(2)).Return(status(http.StatusNotFound))
	notes := &recorder{}

	c := seeded(t, svc, WithNotifier(notes))
	b := c.Find(2)

	m, err := c.Delete(b)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, titles(c.Items()))

	require.NoError(t, c.Do(ctx, m))

	assert.Equal(t, []string{"A", "B", "C"}, titles(c.Items()))
	assert.Same(t, b, c.Items()[1])
	require.Len(t, notes.notices, 1)
	assert.Equal(t, msgAlreadyDeleted, notes.notices[0].Message)
}

func TestOverlappingDeletesRestoreOriginalOrder(t *testing.T) {
	ctx := context.Background()
	svc := new(mockService)
	svc.On("Delete", ctx, mock.Anything).Return(status(http.StatusNotFound))

	for _, name := range []string{"first deleted resolves first", "last deleted resolves first"} {
		t.Run(name, func(t *testing.T) {
			c := seeded(t, svc)
			mb, err := c.Delete(c.Find(2))
			require.NoError(t, err)
			ma, err := c.Delete(c.Find(1))
			require.NoError(t, err)
			assert.Equal(t, []string{"C"}, titles(c.Items()))
			assert.Equal(t, 1, c.Len())

			outcomes := []Outcome{mb.Run(ctx), ma.Run(ctx)}
			if name == "last deleted resolves first" {
				outcomes[0], outcomes[1] = outcomes[1], outcomes[0]
			}
			for _, o := range outcomes {
				require.NoError(t, c.Resolve(o))
			}
			assert.Equal(t, []string{"A", "B", "C"}, titles(c.Items()))
		})
	}
}

func TestDeleteRollbackAfterCreateKeepsNeighbours(t *testing.T) {
	ctx := context.Background()
	svc := new(mockService)
	svc.On("Delete", ctx, model.ID(2)).Return(status(http.StatusNotFound))
	svc.On("Create", ctx, model.Draft{Title: "X"}).Return(model.Post{ID: 7, Title: "X"}, nil)

	c := seeded(t, svc)
	del, err := c.Delete(c.Find(2))
	require.NoError(t, err)
	require.NoError(t, c.Do(ctx, c.Create(model.Draft{Title: "X"})))
	assert.Equal(t, []string{"X", "A", "C"}, titles(c.Items()))

	require.NoError(t, c.Do(ctx, del))
	assert.Equal(t, []string{"X", "A", "B", "C"}, titles(c.Items()))
}

func TestCommittedDeleteLeavesNeighboursInPlace(t *testing.T) {
	ctx := context.Background()
	svc := new(mockService)
	svc.On("Delete", ctx, model.ID(1)).Return(nil)
	svc.On("Delete", ctx, model.ID(2)).Return(status(http.StatusNotFound))

	c := seeded(t, svc)
	mb, err := c.Delete(c.Find(2))
	require.NoError(t, err)
	ma, err := c.Delete(c.Find(1))
	require.NoError(t, err)

	require.NoError(t, c.Do(ctx, ma))
	require.NoError(t, c.Do(ctx, mb))
	assert.Equal(t, []string{"B", "C"}, titles(c.Items()))
}

func TestDeleteOtherFailureRestoresAndPropagates(t *testing.T) {
	ctx := context.Background()
	svc := new(mockService)
	netErr := &apperr.TransportError{Err: errors.New("connection refused")}
	svc.On("Delete", ctx, model.ID(3)).Return(netErr)

	c := seeded(t, svc)
	m, err := c.Delete(c.Find(3))
	require.NoError(t, err)

	err = c.Do(ctx, m)
	require.Error(t, err)
	assert.ErrorIs(t, err, netErr)
	assert.Equal(t, []string{"A", "B", "C"}, titles(c.Items()))
}

func TestDeleteSuccessShrinksByOne(t *testing.T) {
	ctx := context.Background()
	svc := new(mockService)
	svc.On("Delete", ctx, model.ID(1)).Return(nil)

	c := seeded(t, svc)
	a := c.Find(1)
	m, err := c.Delete(a)
	require.NoError(t, err)
	require.NoError(t, c.Do(ctx, m))

	assert.Equal(t, 2, c.Len())
	assert.Nil(t, c.Find(1))
	assert.NotContains(t, c.Items(), a)
}

func TestUpdateAppliesInPlaceAndCommits(t *testing.T) {
	ctx := context.Background()
	svc := new(mockService)
	svc.On("Update", ctx, model.Post{ID: 2, Title: "B", IsRead: true}).
		Return(model.Post{ID: 2, Title: "B", IsRead: true}, nil)

	c := seeded(t, svc)
	b := c.Find(2)
	m, err := c.Update(b, model.MarkRead(true))
	require.NoError(t, err)
	assert.True(t, b.IsRead, "patch is visible before the server answers")

	require.NoError(t, c.Do(ctx, m))
	assert.True(t, b.IsRead)
	svc.AssertExpectations(t)
}

func TestUpdateFailureRestoresSnapshot(t *testing.T) {
	ctx := context.Background()
	svc := new(mockService)
	svc.On("Update", ctx, mock.Anything).Return(model.Post{}, status(http.StatusBadRequest))

	c := seeded(t, svc)
	b := c.Find(2)
	m, err := c.Update(b, model.Patch{Title: ptr("B2"), IsRead: ptr(true)})
	require.NoError(t, err)
	assert.Equal(t, model.Post{ID: 2, Title: "B2", IsRead: true}, *b)

	err = c.Do(ctx, m)
	require.Error(t, err, "update failures are always raised")
	assert.Equal(t, apperr.KindBadInput, apperr.KindOf(err))
	assert.Equal(t, model.Post{ID: 2, Title: "B"}, *b)
}

func TestSecondMutationOnPendingPostIsRejected(t *testing.T) {
	svc := new(mockService)
	c := seeded(t, svc)
	b := c.Find(2)

	_, err := c.Update(b, model.MarkRead(true))
	require.NoError(t, err)

	_, err = c.Delete(b)
	assert.ErrorIs(t, err, ErrMutationPending)
	_, err = c.Update(b, model.MarkRead(false))
	assert.ErrorIs(t, err, ErrMutationPending)

	assert.True(t, b.IsRead, "rejected mutation changes nothing")
	assert.Equal(t, 3, c.Len())
}

func TestMutationsOnUnknownPostsAreRejected(t *testing.T) {
	c := seeded(t, new(mockService))

	_, err := c.Delete(&model.Post{ID: 1, Title: "A"})
	assert.ErrorIs(t, err, ErrNotInCollection, "identity, not equality")
	_, err = c.Update(&model.Post{ID: 99}, model.MarkRead(true))
	assert.ErrorIs(t, err, ErrNotInCollection)
}

func TestResolveTwiceAndForeignOutcome(t *testing.T) {
	ctx := context.Background()
	svc := new(mockService)
	svc.On("Delete", ctx, model.ID(1)).Return(nil)

	c := seeded(t, svc)
	m, err := c.Delete(c.Find(1))
	require.NoError(t, err)

	o := m.Run(ctx)
	require.NoError(t, c.Resolve(o))
	assert.ErrorIs(t, c.Resolve(o), ErrAlreadyResolved)

	other := seeded(t, svc)
	assert.ErrorIs(t, other.Resolve(o), ErrForeignMutation)
	assert.ErrorIs(t, other.Resolve(Outcome{}), ErrForeignMutation)
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	svc := new(mockService)
	svc.On("GetAll", ctx).Return([]model.Post{{ID: 5, Title: "E"}, {ID: 4, Title: "D"}}, nil).Once()
	svc.On("GetAll", ctx).Return(nil, status(http.StatusServiceUnavailable)).Once()

	c := New(svc)
	require.NoError(t, c.Load(ctx))
	assert.Equal(t, []string{"E", "D"}, titles(c.Items()))

	err := c.Load(ctx)
	assert.Equal(t, apperr.KindOther, apperr.KindOf(err))
	assert.Equal(t, []string{"E", "D"}, titles(c.Items()), "failed load keeps the list")
}

func TestLoadWhileMutationInFlight(t *testing.T) {
	c := New(new(mockService))
	c.Create(model.Draft{Title: "X"})

	assert.ErrorIs(t, c.Load(context.Background()), ErrMutationPending)
	assert.ErrorIs(t, c.Reset(nil), ErrMutationPending)
}

func TestObserverSeesOptimisticState(t *testing.T) {
	ctx := context.Background()
	svc := new(mockService)
	svc.On("Delete", ctx, model.ID(2)).Return(status(http.StatusNotFound))

	var seen [][]string
	c := seeded(t, svc, WithObserver(func(items []*model.Post) {
		seen = append(seen, titles(items))
	}))
	seen = nil

	m, err := c.Delete(c.Find(2))
	require.NoError(t, err)
	require.NoError(t, c.Do(ctx, m))

	assert.Equal(t, [][]string{{"A", "C"}, {"A", "B", "C"}}, seen)
}

func TestMetricsCountOutcomes(t *testing.T) {
	ctx := context.Background()
	svc := new(mockService)
	svc.On("Delete", ctx, model.ID(1)).Return(nil)
	svc.On("Delete", ctx, model.ID(2)).Return(status(http.StatusNotFound))

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	c := seeded(t, svc, WithMetrics(metrics))

	m1, _ := c.Delete(c.Find(1))
	m2, _ := c.Delete(c.Find(2))
	_, err := c.Delete(m2.Post)
	require.ErrorIs(t, err, ErrMutationPending)
	require.NoError(t, c.Do(ctx, m1))
	require.NoError(t, c.Do(ctx, m2))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Mutations.WithLabelValues("delete", "committed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Mutations.WithLabelValues("delete", "rolled_back")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Mutations.WithLabelValues("delete", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Rollbacks.WithLabelValues("delete", "not_found")))
}

func ptr[T any](v T) *T { return &v }
