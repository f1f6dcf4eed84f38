package interfaces

import "context"

// EventPublisher delivers domain events. key groups events that must keep
// their relative order, such as all transfers out of one account.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}
