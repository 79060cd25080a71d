// Package stream abstracts the audit record stream the consumer reads
// from. Delivery is at-least-once: a record stays pending until the
// consumer explicitly commits it, and an uncommitted record is redelivered
// to the consumer group.
package stream

import "context"

// Record is one raw audit record fetched from the stream, with enough
// provenance to replay it.
type Record struct {
	// Partition identifies the stream shard the record came from.
	Partition int

	// Offset is the record's position within the partition. Committing
	// the record acknowledges this offset.
	Offset string

	// Payload is the raw record body as produced upstream.
	Payload []byte
}

// Source is a stream consumer with manual offset advancement.
type Source interface {
	// Fetch blocks until a record is available or the context is
	// cancelled.
	Fetch(ctx context.Context) (*Record, error)

	// Commit acknowledges the record, advancing the consumer group past
	// it. An uncommitted record is redelivered after a restart.
	Commit(ctx context.Context, record *Record) error

	// Ping verifies the connection to the stream backend.
	Ping(ctx context.Context) error

	// Close releases the connection.
	Close() error
}
