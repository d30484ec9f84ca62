//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
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

// Worker doesn't protect itself.
// Supervision, restarts and panic recovery live in the supervisor.
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

// Connection is a single live client connection able to receive pushed
// payloads. The transport layer adapts its socket type to this interface.
type Connection interface {
	Send(payload []byte) error
}

// IRegistry is the process-local session registry: user ID to live
// connections. Populated on connect, cleared on disconnect, never persisted.
type IRegistry interface {
	Register(userID string, conn Connection)
	Remove(userID string, conn Connection)
	// Push writes to every live connection of the user. Best effort:
	// failing connections are evicted and the failure is not propagated.
	// Reports whether at least one connection accepted the payload.
	Push(userID string, payload []byte) bool
}

// BrokerHandler processes one delivered event payload. The broker calls it
// at least once per event; handlers must tolerate duplicates.
type BrokerHandler func(ctx context.Context, payload []byte) error

// Broker is the durable publish/subscribe transport between the
// synchronous write path and the fan-out consumers. Events published with
// the same key are delivered in publish order to any single group.
type Broker interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
	// Subscribe binds a handler under a named consumer group. Distinct
	// groups each receive every event; members of one group share it.
	Subscribe(ctx context.Context, topic, group string, handler BrokerHandler) (Subscription, error)
}

type Subscription interface {
	Stop()
}
