package changeset

import "github.com/tablesmith/tablesmith/internal/schema"

// Observer is told about the pending set after every change. Observers run
// synchronously on the caller's goroutine and must not retain the slice
// beyond the call unless they copy it.
type Observer interface {
	PendingChanged(table string, events []schema.Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(table string, events []schema.Event)

func (f ObserverFunc) PendingChanged(table string, events []schema.Event) { f(table, events) }

// Observers fans a notification out to several observers in order.
type Observers []Observer

func (o Observers) PendingChanged(table string, events []schema.Event) {
	for _, obs := range o {
		if obs != nil {
			obs.PendingChanged(table, events)
		}
	}
}

// NopObserver ignores notifications.
type NopObserver struct{}

func (NopObserver) PendingChanged(string, []schema.Event) {}
