package httpclient

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idilsaglam/posts/internal/apperr"
	"github.com/idilsaglam/posts/internal/model"
	"github.com/idilsaglam/posts/internal/optimistic"
	"github.com/idilsaglam/posts/internal/server"
	"github.com/idilsaglam/posts/internal/store/memstore"
)

var _ optimistic.Service = (*Client)(nil)

func newAPI(t *testing.T, opts server.Options) *httptest.Server {
	t.Helper()
	s := server.New(memstore.New(), slog.New(slog.DiscardHandler), prometheus.NewRegistry(), opts)
	ts := httptest.NewServer(s.Routes())
	t.Cleanup(ts.Close)
	return ts
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := New(newAPI(t, server.Options{}).URL)

	created, err := c.Create(ctx, model.Draft{Title: "Hello"})
	require.NoError(t, err)
	assert.True(t, created.Persisted())
	assert.Equal(t, "Hello", created.Title)

	created.IsRead = true
	updated, err := c.Update(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, created, updated)

	posts, err := c.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.Post{updated}, posts)

	require.NoError(t, c.Delete(ctx, created.ID))
	posts, err = c.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestErrorsAreTransportErrors(t *testing.T) {
	ctx := context.Background()
	c := New(newAPI(t, server.Options{}).URL)

	err := c.Delete(ctx, 345)
	var te *apperr.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusNotFound, te.Status)
	assert.Equal(t, "post not found", te.Message)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = c.Create(ctx, model.Draft{Title: ""})
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusBadRequest, te.Status)
	ae := apperr.Classify(err)
	assert.Equal(t, apperr.KindBadInput, ae.Kind)
	assert.Equal(t, map[string]string{"title": "required"}, ae.Fields())
}

func TestNetworkFailureIsOther(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := New(url).GetAll(context.Background())
	var te *apperr.TransportError
	require.ErrorAs(t, err, &te)
	assert.Zero(t, te.Status)
	assert.Equal(t, apperr.KindOther, apperr.KindOf(err))
}

func TestTimeoutIsOther(t *testing.T) {
	c := New(newAPI(t, server.Options{Latency: time.Second}).URL, WithTimeout(20*time.Millisecond))

	_, err := c.GetAll(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperr.KindOther, apperr.KindOf(err))
}

func TestSendsTokenAndIdempotencyKey(t *testing.T) {
	var keys atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		if r.Method == http.MethodPost {
			assert.NotEmpty(t, r.Header.Get(IdempotencyHeader))
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			keys.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":42,"title":"X"}`))
	}))
	t.Cleanup(ts.Close)

	p, err := New(ts.URL, WithToken("tok")).Create(context.Background(), model.Draft{Title: "X"})
	require.NoError(t, err)
	assert.Equal(t, model.ID(42), p.ID)
	assert.Equal(t, int32(1), keys.Load())
}

func TestUnauthorizedIsOther(t *testing.T) {
	c := New(newAPI(t, server.Options{Token: "secret"}).URL, WithToken("wrong"))

	_, err := c.Create(context.Background(), model.Draft{Title: "X"})
	assert.Equal(t, apperr.KindOther, apperr.KindOf(err))
}

// Optimistic create and delete, end to end through the controller and a real server.
func TestControllerOverHTTP(t *testing.T) {
	ctx := context.Background()
	c := New(newAPI(t, server.Options{}).URL)

	var notices []optimistic.Notice
	ctrl := optimistic.New(c, optimistic.WithNotifier(optimistic.NotifierFunc(func(n optimistic.Notice) {
		notices = append(notices, n)
	})))
	require.NoError(t, ctrl.Load(ctx))
	require.Zero(t, ctrl.Len())

	m := ctrl.Create(model.Draft{Title: "X"})
	require.Equal(t, 1, ctrl.Len())
	assert.False(t, ctrl.Items()[0].Persisted())
	require.NoError(t, ctrl.Do(ctx, m))
	assert.True(t, ctrl.Items()[0].Persisted())

	for _, title := range []string{"B", "C"} {
		require.NoError(t, ctrl.Do(ctx, ctrl.Create(model.Draft{Title: title})))
	}
	items := ctrl.Items()
	require.Len(t, items, 3)
	victim := items[1]

	// Delete it behind the controller's back so the optimistic delete gets a 404.
	require.NoError(t, c.Delete(ctx, victim.ID))

	del, err := ctrl.Delete(victim)
	require.NoError(t, err)
	require.NoError(t, ctrl.Do(ctx, del))
	assert.Same(t, victim, ctrl.Items()[1])
	require.Len(t, notices, 1)
	assert.Equal(t, "This post has already been deleted", notices[0].Message)

	bad := ctrl.Create(model.Draft{Title: "   "})
	require.NoError(t, ctrl.Do(ctx, bad))
	assert.Equal(t, items, ctrl.Items())
	require.Len(t, notices, 2)
	assert.Equal(t, map[string]string{"title": "required"}, notices[1].Fields)
}
