package inventory

import "context"

// Notifier receives the outcome of inventory operations.
type Notifier interface {
	// OnMessage reports informational output.
	OnMessage(msg string)

	// OnError reports a rejected or partially rejected operation.
	OnError(msg string)

	// OnQuestion asks a yes/no question and blocks until it is answered or
	// ctx is done.
	OnQuestion(ctx context.Context, question string) (bool, error)
}
