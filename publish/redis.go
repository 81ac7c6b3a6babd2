package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/camsys/onebusaway-application-modules-sub000/matching"
)

const (
	DefaultRedisPrefix = "transit:"
	DefaultRedisTTL    = 15 * time.Minute
)

// RedisSink keeps the last known record of each vehicle under
// <prefix>vehicle:<key>, expiring after TTL.
type RedisSink struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisSink(addr, password string, db int, ttl time.Duration, logger *slog.Logger) (*RedisSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisSink{
		client: client,
		prefix: DefaultRedisPrefix,
		ttl:    ttl,
		logger: logger.With("component", "redis"),
	}, nil
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Key(r *matching.Record) string {
	return s.prefix + "vehicle:" + recordKey(r)
}

// Writes all records of the result in one pipeline.
func (s *RedisSink) Publish(ctx context.Context, result *matching.Result) error {
	if len(result.Records) == 0 {
		return nil
	}

	start := time.Now()
	pipe := s.client.Pipeline()
	for _, r := range result.Records {
		b, err := json.Marshal(NewMessage(result.CycleID, r))
		if err != nil {
			return fmt.Errorf("json marshal: %w", err)
		}
		pipe.Set(ctx, s.Key(r), b, s.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("pipeline failed", "cycle", result.CycleID, "error", err)
		return fmt.Errorf("writing records: %w", err)
	}

	s.logger.Debug("stored records", "cycle", result.CycleID, "records", len(result.Records), "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// Last known record of a vehicle, if any.
func (s *RedisSink) Get(ctx context.Context, vehicleID string) (*Message, error) {
	val, err := s.client.Get(ctx, s.prefix+"vehicle:"+vehicleID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	m := &Message{}
	if err := json.Unmarshal(val, m); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}
	return m, nil
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
