//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"chat-sync/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself. The supervisor recovers panics and
// restarts with backoff.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// Used for logging and supervision, avoiding manual naming in the
// Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink receives domain events. Sinks must not block; slow consumers
// get events dropped by the emitter, never by the sink.
type EventSink interface {
	Consume(e event.DomainEvent)
}

// SinkFunc adapts a function to the EventSink interface.
type SinkFunc func(e event.DomainEvent)

func (f SinkFunc) Consume(e event.DomainEvent) { f(e) }
