package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// payloadField is the stream entry field carrying the raw record body.
const payloadField = "payload"

// defaultBlockTimeout bounds one blocking read so the loop can observe
// context cancellation between reads.
const defaultBlockTimeout = 5 * time.Second

// defaultClaimMinIdle is how long a record may sit in another consumer's
// pending entries before this consumer claims it. Covers consumers that
// died without acking.
const defaultClaimMinIdle = time.Minute

// RedisSource consumes a Redis Stream through a consumer group. Records
// are claimed by XREADGROUP and stay in the group's pending entries list
// until Commit acknowledges them, which gives at-least-once delivery
// across restarts.
type RedisSource struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string
	block    time.Duration
	logger   *zap.SugaredLogger

	// buffer holds records from the last read that Fetch has not yet
	// handed out.
	buffer []redis.XMessage

	// backlog is true until the consumer's own pending entries from a
	// previous run have been drained; after that, reads ask for new
	// records only.
	backlog bool

	// claimMinIdle is the idle threshold for claiming records stuck in
	// dead consumers' pending entries.
	claimMinIdle time.Duration
}

// NewRedisSource connects to Redis and ensures the consumer group exists,
// creating the stream if needed.
func NewRedisSource(ctx context.Context, addr, password string, db int, streamName, group, consumer string, block time.Duration, logger *zap.SugaredLogger) (*RedisSource, error) {
	if block <= 0 {
		block = defaultBlockTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	rs := &RedisSource{
		client:       client,
		stream:       streamName,
		group:        group,
		consumer:     consumer,
		block:        block,
		logger:       logger,
		backlog:      true,
		claimMinIdle: defaultClaimMinIdle,
	}

	if err := rs.ensureGroup(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Infof("Consuming stream %s as %s in group %s", streamName, consumer, group)
	return rs, nil
}

// ensureGroup creates the consumer group from the start of the stream.
// An already existing group is fine.
func (rs *RedisSource) ensureGroup(ctx context.Context) error {
	err := rs.client.XGroupCreateMkStream(ctx, rs.stream, rs.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group %s on stream %s: %w", rs.group, rs.stream, err)
	}
	return nil
}

// Fetch returns the next record for this consumer. It first drains the
// consumer's pending entries from a previous run, then reads new records,
// blocking until one arrives or the context is cancelled.
func (rs *RedisSource) Fetch(ctx context.Context) (*Record, error) {
	for {
		if len(rs.buffer) > 0 {
			msg := rs.buffer[0]
			rs.buffer = rs.buffer[1:]
			return rs.toRecord(msg), nil
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		id := ">"
		block := rs.block
		if rs.backlog {
			// History reads return immediately; skip the BLOCK option.
			id = "0"
			block = -1
		}

		streams, err := rs.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    rs.group,
			Consumer: rs.consumer,
			Streams:  []string{rs.stream, id},
			Count:    1,
			Block:    block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			// No new records; pick up anything stuck with a consumer
			// that died without acking.
			rs.claimStale(ctx)
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("failed to read from stream %s: %w", rs.stream, err)
		}

		for _, s := range streams {
			rs.buffer = append(rs.buffer, s.Messages...)
		}

		if rs.backlog && len(rs.buffer) == 0 {
			rs.backlog = false
			continue
		}
		if rs.backlog && len(rs.buffer) > 0 {
			rs.logger.Infof("Redelivering %d pending record(s) from a previous run", len(rs.buffer))
		}
	}
}

// claimStale transfers records pending longer than claimMinIdle from
// other consumers in the group to this one.
func (rs *RedisSource) claimStale(ctx context.Context) {
	msgs, _, err := rs.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   rs.stream,
		Group:    rs.group,
		Consumer: rs.consumer,
		MinIdle:  rs.claimMinIdle,
		Start:    "0-0",
		Count:    1,
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			rs.logger.Debugf("Failed to claim stale records on stream %s: %v", rs.stream, err)
		}
		return
	}
	if len(msgs) > 0 {
		rs.logger.Warnf("Claimed %d stale record(s) from dead consumers on stream %s", len(msgs), rs.stream)
		rs.buffer = append(rs.buffer, msgs...)
	}
}

// Commit acknowledges the record, removing it from the group's pending
// entries list.
func (rs *RedisSource) Commit(ctx context.Context, record *Record) error {
	if err := rs.client.XAck(ctx, rs.stream, rs.group, record.Offset).Err(); err != nil {
		return fmt.Errorf("failed to ack record %s on stream %s: %w", record.Offset, rs.stream, err)
	}
	return nil
}

// Ping verifies the Redis connection.
func (rs *RedisSource) Ping(ctx context.Context) error {
	return rs.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (rs *RedisSource) Close() error {
	return rs.client.Close()
}

func (rs *RedisSource) toRecord(msg redis.XMessage) *Record {
	var payload []byte
	if raw, ok := msg.Values[payloadField].(string); ok {
		payload = []byte(raw)
	}
	return &Record{
		Partition: 0,
		Offset:    msg.ID,
		Payload:   payload,
	}
}
