package optimistic

import (
	"context"
	"slices"
	"strings"

	"github.com/idilsaglam/posts/internal/model"
)

// Service is the remote side of every mutation. Each call blocks until the
// single response (or error) arrives; callers that must not block run it on
// another goroutine.
type Service interface {
	GetAll(ctx context.Context) ([]model.Post, error)
	Create(ctx context.Context, d model.Draft) (model.Post, error)
	Update(ctx context.Context, p model.Post) (model.Post, error)
	Delete(ctx context.Context, id model.ID) error
}

// Level grades a Notice.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is a recoverable, user-facing message.
type Notice struct {
	Level   Level
	Message string
	Fields  map[string]string // field-level validation messages, if any
}

// String renders the message followed by its fields in key order.
func (n Notice) String() string {
	if len(n.Fields) == 0 {
		return n.Message
	}
	keys := make([]string, 0, len(n.Fields))
	for k := range n.Fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + n.Fields[k]
	}
	return n.Message + " (" + strings.Join(parts, ", ") + ")"
}

// Notifier shows notices to the user.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// Observer is called synchronously after every local change to the list.
type Observer func(items []*model.Post)

// FaultReporter receives errors the controller could not handle itself.
type FaultReporter interface {
	Report(err error)
}

// FaultReporterFunc adapts a function to FaultReporter.
type FaultReporterFunc func(error)

func (f FaultReporterFunc) Report(err error) { f(err) }
