package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/hookpost/hookpost/delinquency"
	"github.com/hookpost/hookpost/id"
)

// Delinquency records are small hashes: "count" and "first_failure_at"
// (unix nanoseconds). The bump runs as a Lua script so concurrent workers
// finishing deliveries to the same endpoint never lose an increment.

// bumpScript atomically increments the failure counter and stamps the streak
// start on the first failure.
// KEYS[1] = hookpost:delinq:<endpoint ID>
// ARGV[1] = now in unix nanoseconds
var bumpScript = goredis.NewScript(`
local count = redis.call('HINCRBY', KEYS[1], 'count', 1)
redis.call('HSETNX', KEYS[1], 'first_failure_at', ARGV[1])
local first = redis.call('HGET', KEYS[1], 'first_failure_at')
return {count, first}
`)

// GetDelinquency returns the record for an endpoint; a streak-free endpoint
// yields a zero record.
func (s *Store) GetDelinquency(ctx context.Context, epID id.ID) (*delinquency.Record, error) {
	fields, err := s.rdb.HGetAll(ctx, entityKey(prefixDelinq, epID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("hookpost/redis: get delinquency: %w", err)
	}

	rec := &delinquency.Record{EndpointID: epID}
	if raw, ok := fields["count"]; ok {
		count, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("hookpost/redis: delinquency count %q: %w", raw, err)
		}
		rec.FailureCount = count
	}
	if raw, ok := fields["first_failure_at"]; ok {
		nanos, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("hookpost/redis: delinquency first failure %q: %w", raw, err)
		}
		at := time.Unix(0, nanos).UTC()
		rec.FirstFailureAt = &at
	}
	return rec, nil
}

// ResetDelinquency clears the endpoint's failure streak.
func (s *Store) ResetDelinquency(ctx context.Context, epID id.ID) error {
	if err := s.rdb.Del(ctx, entityKey(prefixDelinq, epID.String())).Err(); err != nil {
		return fmt.Errorf("hookpost/redis: reset delinquency: %w", err)
	}
	return nil
}

// BumpDelinquency atomically increments the failure counter, stamping
// FirstFailureAt when this failure starts a new streak.
func (s *Store) BumpDelinquency(ctx context.Context, epID id.ID, now time.Time) (*delinquency.Record, error) {
	key := entityKey(prefixDelinq, epID.String())

	raw, err := bumpScript.Run(ctx, s.rdb, []string{key}, now.UnixNano()).Slice()
	if err != nil {
		return nil, fmt.Errorf("hookpost/redis: bump delinquency: %w", err)
	}
	if len(raw) != 2 {
		return nil, fmt.Errorf("hookpost/redis: bump delinquency: unexpected reply %v", raw)
	}

	count, ok := raw[0].(int64)
	if !ok {
		return nil, fmt.Errorf("hookpost/redis: bump delinquency: bad count %T", raw[0])
	}
	firstStr, ok := raw[1].(string)
	if !ok {
		return nil, fmt.Errorf("hookpost/redis: bump delinquency: bad timestamp %T", raw[1])
	}
	nanos, err := strconv.ParseInt(firstStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("hookpost/redis: bump delinquency timestamp %q: %w", firstStr, err)
	}

	at := time.Unix(0, nanos).UTC()
	return &delinquency.Record{
		EndpointID:     epID,
		FailureCount:   int(count),
		FirstFailureAt: &at,
	}, nil
}
