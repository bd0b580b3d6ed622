// Package optimistic applies list mutations before the server confirms them
// and rolls them back, to the exact prior state, when the server refuses.
//
// Every operation has two phases. Create, Update and Delete change the list
// synchronously and return a *Mutation. Mutation.Run performs the single
// remote call and may run on any goroutine. Controller.Resolve commits or
// rolls back and must run on the goroutine that owns the Controller:
//
//	m := ctrl.Create(model.Draft{Title: "X"}) // list is [X] right now
//	go func() { outcomes <- m.Run(ctx) }()
//	...
//	if err := ctrl.Resolve(<-outcomes); err != nil {
//	    faults.Report(err)
//	}
//
// A Controller is not safe for concurrent use.
package optimistic

import (
	"context"
	"errors"
	"log/slog"

	"github.com/idilsaglam/posts/internal/apperr"
	"github.com/idilsaglam/posts/internal/collection"
	"github.com/idilsaglam/posts/internal/model"
)

var (
	// ErrMutationPending rejects a second mutation on a post whose first one
	// has not resolved yet. Nothing is changed.
	ErrMutationPending = errors.New("a change to this post is still in flight")

	// ErrNotInCollection is returned for posts the controller does not hold.
	ErrNotInCollection = errors.New("post is not in the list")

	// ErrAlreadyResolved is returned when an outcome is resolved twice.
	ErrAlreadyResolved = errors.New("mutation already resolved")

	// ErrForeignMutation is returned for outcomes of another controller.
	ErrForeignMutation = errors.New("mutation belongs to another controller")
)

const (
	msgBadInput       = "An error occurred with the input data"
	msgAlreadyDeleted = "This post has already been deleted"
)

// Controller owns an ordered list of posts and the mutations in flight on it.
type Controller struct {
	svc Service
	// order holds the visible posts plus those whose delete is in flight,
	// so a failed delete reappears between the same neighbours.
	order    []*model.Post
	pending  map[*model.Post]*Mutation
	notifier Notifier
	observer Observer
	metrics  *Metrics
	log      *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithNotifier sets where recoverable notices go.
func WithNotifier(n Notifier) Option { return func(c *Controller) { c.notifier = n } }

// WithObserver registers fn to run after every local change.
func WithObserver(fn Observer) Option { return func(c *Controller) { c.observer = fn } }

// WithMetrics records outcomes in m.
func WithMetrics(m *Metrics) Option { return func(c *Controller) { c.metrics = m } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(c *Controller) { c.log = l } }

// New returns an empty controller backed by svc.
func New(svc Service, opts ...Option) *Controller {
	c := &Controller{
		svc:      svc,
		pending:  make(map[*model.Post]*Mutation),
		notifier: NotifierFunc(func(Notice) {}),
		log:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Items returns the current list. The posts are shared with the controller;
// treat them as read-only.
func (c *Controller) Items() []*model.Post {
	out := make([]*model.Post, 0, len(c.order))
	for _, p := range c.order {
		if !c.deleting(p) {
			out = append(out, p)
		}
	}
	return out
}

// Len returns the number of posts in the list.
func (c *Controller) Len() int { return len(c.order) - c.deletes() }

// Find returns the post with the given ID, or nil.
func (c *Controller) Find(id model.ID) *model.Post {
	for _, p := range c.Items() {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// Pending reports whether p has a mutation in flight.
func (c *Controller) Pending(p *model.Post) bool {
	_, ok := c.pending[p]
	return ok
}

// InFlight returns the number of unresolved mutations.
func (c *Controller) InFlight() int { return len(c.pending) }

// Load replaces the list with the server's.
func (c *Controller) Load(ctx context.Context) error {
	if len(c.pending) > 0 {
		return ErrMutationPending
	}
	posts, err := c.svc.GetAll(ctx)
	if err != nil {
		return apperr.Classify(err)
	}
	return c.Reset(posts)
}

// Reset replaces the list with posts already fetched from the server.
func (c *Controller) Reset(posts []model.Post) error {
	if len(c.pending) > 0 {
		return ErrMutationPending
	}
	items := make([]*model.Post, len(posts))
	for i := range posts {
		p := posts[i]
		items[i] = &p
	}
	c.order = items
	c.changed()
	return nil
}

// Create puts an unconfirmed post for d at the top of the list.
func (c *Controller) Create(d model.Draft) *Mutation {
	p := model.NewPost(d)
	c.order = collection.Insert(c.order, 0, p)
	m := &Mutation{Op: OpCreate, Post: p, ctrl: c, request: *p}
	c.pending[p] = m
	c.log.Debug("optimistic create", "title", p.Title)
	c.changed()
	return m
}

// Update applies patch to p in place. The previous fields are kept so a
// failed update can restore them.
func (c *Controller) Update(p *model.Post, patch model.Patch) (*Mutation, error) {
	if _, err := c.claim(OpUpdate, p); err != nil {
		return nil, err
	}
	before := *p
	patch.Apply(p)
	m := &Mutation{Op: OpUpdate, Post: p, ctrl: c, before: before, request: *p}
	c.pending[p] = m
	c.log.Debug("optimistic update", "id", p.ID)
	c.changed()
	return m, nil
}

// Delete hides p from the list until the server answers. It keeps its place
// among the other posts, so a rollback restores it where it was even if other
// posts were added or removed meanwhile.
func (c *Controller) Delete(p *model.Post) (*Mutation, error) {
	i, err := c.claim(OpDelete, p)
	if err != nil {
		return nil, err
	}
	m := &Mutation{Op: OpDelete, Post: p, ctrl: c, index: i, request: *p}
	c.pending[p] = m
	c.log.Debug("optimistic delete", "id", p.ID, "index", i)
	c.changed()
	return m, nil
}

// Do runs m and resolves it on the calling goroutine.
func (c *Controller) Do(ctx context.Context, m *Mutation) error {
	return c.Resolve(m.Run(ctx))
}

// Resolve commits or rolls back the mutation behind o.
//
// It returns nil when the mutation committed, or when it failed in a way the
// controller handles itself (bad input on create, not found on delete; both
// emit a notice). Every other failure is rolled back and returned as an
// *apperr.Error for the caller to report.
func (c *Controller) Resolve(o Outcome) error {
	m := o.Mutation
	if m == nil || m.ctrl != c {
		return ErrForeignMutation
	}
	if m.resolved {
		return ErrAlreadyResolved
	}
	m.resolved = true
	delete(c.pending, m.Post)

	if o.Err == nil {
		c.commit(m, o.Post)
		return nil
	}

	ae := apperr.Classify(o.Err)
	c.rollback(m)
	c.metrics.rolledBack(m.Op, ae.Kind)

	switch {
	case m.Op == OpCreate && ae.Kind == apperr.KindBadInput:
		c.log.Warn("create rejected", "title", m.Post.Title, "error", ae)
		c.notifier.Notify(Notice{Level: LevelWarning, Message: msgBadInput, Fields: ae.Fields()})
		return nil
	case m.Op == OpDelete && ae.Kind == apperr.KindNotFound:
		c.log.Warn("delete of missing post", "id", m.Post.ID, "error", ae)
		c.notifier.Notify(Notice{Level: LevelInfo, Message: msgAlreadyDeleted})
		return nil
	}
	return ae
}

func (c *Controller) claim(op Op, p *model.Post) (int, error) {
	if _, busy := c.pending[p]; busy {
		c.metrics.rejected(op)
		return -1, ErrMutationPending
	}
	i := collection.IndexOf(c.Items(), p)
	if i < 0 {
		c.metrics.rejected(op)
		return -1, ErrNotInCollection
	}
	return i, nil
}

func (c *Controller) commit(m *Mutation, served model.Post) {
	c.metrics.committed(m.Op)
	switch m.Op {
	case OpCreate:
		m.Post.ID = served.ID
		c.log.Debug("create confirmed", "id", served.ID)
		c.changed()
	case OpUpdate:
		c.log.Debug("update confirmed", "id", served.ID, "read", served.IsRead)
	case OpDelete:
		c.drop(m.Post)
		c.log.Debug("delete confirmed", "id", m.Post.ID)
	}
}

func (c *Controller) rollback(m *Mutation) {
	switch m.Op {
	case OpCreate:
		c.drop(m.Post)
	case OpUpdate:
		*m.Post = m.before
	case OpDelete:
		// no longer pending, so visible again in its old slot
	}
	c.changed()
}

func (c *Controller) drop(p *model.Post) {
	if i := collection.IndexOf(c.order, p); i >= 0 {
		c.order, _, _ = collection.Remove(c.order, i)
	}
}

func (c *Controller) deleting(p *model.Post) bool {
	m, ok := c.pending[p]
	return ok && m.Op == OpDelete
}

func (c *Controller) deletes() int {
	n := 0
	for _, m := range c.pending {
		if m.Op == OpDelete {
			n++
		}
	}
	return n
}

func (c *Controller) changed() {
	if c.observer != nil {
		c.observer(c.Items())
	}
}
