//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"campus-chat/domain/chat"
	"campus-chat/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
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

// EventSink is one live connection as seen by the dispatcher.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// IRegistry maps rooms to the connections subscribed to them.
type IRegistry interface {
	Join(connectionID string, roomID chat.RoomID, sink EventSink)
	Leave(connectionID string, roomID chat.RoomID)
	LeaveAll(connectionID string)
	GetSinksForRoom(roomID chat.RoomID) []EventSink
	AllSinks() []EventSink
	Count(roomID chat.RoomID) int
}

// Publisher hands an event to the broadcast dispatcher.
// Events of the same room are delivered in the order Publish was called.
type Publisher interface {
	Publish(ctx context.Context, e event.DomainEvent) error
}

// IdentityProvider confirms who a user is and which college they belong to.
type IdentityProvider interface {
	Lookup(ctx context.Context, userID string) (chat.Identity, error)
}

// BadgeObserver is notified after a successful mutation, fire and forget.
type BadgeObserver interface {
	MessagePosted(ctx context.Context, msg chat.Message)
}

// PresenceStore mirrors the connection -> user table outside the process.
type PresenceStore interface {
	Set(ctx context.Context, connectionID, userID string) error
	Remove(ctx context.Context, connectionID string) error
}
