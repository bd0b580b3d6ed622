package optimistic

import (
	"context"

	"github.com/idilsaglam/posts/internal/model"
)

// Op names the kind of mutation.
type Op int

const (
	OpCreate Op = iota + 1
	OpUpdate
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Mutation is a change that has been applied locally and is waiting for the
// server. It exists between Controller.Create/Update/Delete and
// Controller.Resolve.
type Mutation struct {
	Op   Op
	Post *model.Post

	ctrl     *Controller
	index    int        // position before a delete
	before   model.Post // fields before an update
	request  model.Post // value sent to the service, copied at apply time
	resolved bool
}

// Outcome is the server's answer to one Mutation.
type Outcome struct {
	Mutation *Mutation
	Post     model.Post
	Err      error
}

// Run sends the request for m and waits for the answer. It only reads data
// copied when the mutation was applied, so it may run on any goroutine.
func (m *Mutation) Run(ctx context.Context) Outcome {
	o := Outcome{Mutation: m}
	svc := m.ctrl.svc
	switch m.Op {
	case OpCreate:
		o.Post, o.Err = svc.Create(ctx, model.Draft{Title: m.request.Title})
	case OpUpdate:
		o.Post, o.Err = svc.Update(ctx, m.request)
	case OpDelete:
		o.Err = svc.Delete(ctx, m.request.ID)
		o.Post = m.request
	}
	return o
}
