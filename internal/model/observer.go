package model

import (
	"fmt"
	"slices"
)

// Observer receives change notifications. Calls are synchronous and made
// before the mutating call returns. Handlers must not mutate the layer
// that notified them; doing so panics.
type Observer interface {
	RowsAboutToBeInserted(parent Index, first, last int)
	RowsInserted(parent Index, first, last int)
	RowsAboutToBeRemoved(parent Index, first, last int)
	RowsRemoved(parent Index, first, last int)
	DataChanged(topLeft, bottomRight Index)
	// LayoutChanged means any index may now address something else.
	LayoutChanged()
	DirtyChanged(dirty bool)
}

// ObserverFuncs adapts optional callbacks to Observer.
type ObserverFuncs struct {
	OnRowsAboutToBeInserted func(parent Index, first, last int)
	OnRowsInserted          func(parent Index, first, last int)
	OnRowsAboutToBeRemoved  func(parent Index, first, last int)
	OnRowsRemoved           func(parent Index, first, last int)
	OnDataChanged           func(topLeft, bottomRight Index)
	OnLayoutChanged         func()
	OnDirtyChanged          func(dirty bool)
}

func (f ObserverFuncs) RowsAboutToBeInserted(parent Index, first, last int) {
	if f.OnRowsAboutToBeInserted != nil {
		f.OnRowsAboutToBeInserted(parent, first, last)
	}
}

func (f ObserverFuncs) RowsInserted(parent Index, first, last int) {
	if f.OnRowsInserted != nil {
		f.OnRowsInserted(parent, first, last)
	}
}

func (f ObserverFuncs) RowsAboutToBeRemoved(parent Index, first, last int) {
	if f.OnRowsAboutToBeRemoved != nil {
		f.OnRowsAboutToBeRemoved(parent, first, last)
	}
}

func (f ObserverFuncs) RowsRemoved(parent Index, first, last int) {
	if f.OnRowsRemoved != nil {
		f.OnRowsRemoved(parent, first, last)
	}
}

func (f ObserverFuncs) DataChanged(topLeft, bottomRight Index) {
	if f.OnDataChanged != nil {
		f.OnDataChanged(topLeft, bottomRight)
	}
}

func (f ObserverFuncs) LayoutChanged() {
	if f.OnLayoutChanged != nil {
		f.OnLayoutChanged()
	}
}

func (f ObserverFuncs) DirtyChanged(dirty bool) {
	if f.OnDirtyChanged != nil {
		f.OnDirtyChanged(dirty)
	}
}

type subscription struct{ o Observer }

// notifier is the observer list shared by the source and proxy layers.
type notifier struct {
	subs      []*subscription
	notifying int
}

// Subscribe registers o and returns a function that removes it.
func (n *notifier) Subscribe(o Observer) func() {
	s := &subscription{o: o}
	n.subs = append(n.subs, s)
	return func() {
		n.subs = slices.DeleteFunc(n.subs, func(x *subscription) bool { return x == s })
	}
}

func (n *notifier) emit(fn func(Observer)) {
	n.notifying++
	defer func() { n.notifying-- }()
	for _, s := range slices.Clone(n.subs) {
		fn(s.o)
	}
}

// guard panics when a structural edit starts inside a notification.
func (n *notifier) guard(op string) {
	if n.notifying > 0 {
		panic(fmt.Sprintf("model: %s called from a change notification", op))
	}
}

var _ Observer = ObserverFuncs{}
