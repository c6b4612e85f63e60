package review

import (
	"context"
)

// Command is one reviewer action. Dispatch applies it to a session.
type Command interface {
	Name() string
	apply(ctx context.Context, s *Session) error
}

type (
	Open           struct{ ID string }
	Edit           struct{ Field, Value string }
	Reset          struct{}
	Navigate       struct{ Delta int }
	Save           struct{}
	Refresh        struct{}
	AddLineItem    struct{}
	RemoveLineItem struct{ Index int }
)

func (Open) Name() string { return "open" }
func (Edit) Name() string { return "edit" }
func (Reset) Name() string { return "reset" }
func (Navigate) Name() string { return "navigate" }
func (Save) Name() string { return "save" }
func (Refresh) Name() string { return "refresh" }
func (AddLineItem) Name() string { return "add_line_item" }
func (RemoveLineItem) Name() string { return "remove_line_item" }

func (c Open) apply(ctx context.Context, s *Session) error { return s.Open(ctx, c.ID) }
func (c Edit) apply(_ context.Context, s *Session) error { return s.Edit(c.Field, c.Value) }
func (Reset) apply(ctx context.Context, s *Session) error { return s.Reset(ctx) }
func (c Navigate) apply(ctx context.Context, s *Session) error { return s.Navigate(ctx, c.Delta) }
func (Save) apply(ctx context.Context, s *Session) error { return s.Save(ctx) }
func (Refresh) apply(ctx context.Context, s *Session) error { return s.Refresh(ctx) }
func (AddLineItem) apply(_ context.Context, s *Session) error { return s.AddLineItem() }
func (c RemoveLineItem) apply(_ context.Context, s *Session) error {
	return s.RemoveLineItem(c.Index)
}

// Event is published to subscribers after every dispatched command.
type Event struct {
	Command  string
	Snapshot Snapshot
	Err      error
}

// Subscribe registers fn for every subsequent Event and returns a function that removes it.
func (s *Session) Subscribe(fn func(Event)) (unsubscribe func()) {
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() { delete(s.subs, id) }
}

// Dispatch applies cmd, notifies subscribers and returns the resulting snapshot.
// The returned error is the command's own; the snapshot is valid either way.
func (s *Session) Dispatch(ctx context.Context, cmd Command) (Snapshot, error) {
	err := cmd.apply(ctx, s)
	snap := s.Snapshot()
	if err != nil {
		s.loggerFor(ctx).Debug("review.command.failed", "command", cmd.Name(), "error", err)
	}
	for _, fn := range s.subs {
		fn(Event{Command: cmd.Name(), Snapshot: snap, Err: err})
	}
	return snap, err
}
