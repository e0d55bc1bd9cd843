// Package queue moves dispatch jobs between processes.  Jobs wait in a
// Redis sorted set until their fire time, are then published to a durable
// RabbitMQ queue, and are finally consumed by a worker that evaluates
// them.  Bodies are opaque here; the dispatch package owns their format.
package queue

import "context"

// DefaultQueueName is the RabbitMQ queue fired jobs are published to.
const DefaultQueueName = "dose.dispatch"

// Handler receives one due job body.  A non-nil error marks the message
// as rejected; it is not redelivered.
type Handler func(ctx context.Context, body []byte) error
