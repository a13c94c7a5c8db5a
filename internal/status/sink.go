package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrNoStatus is returned by RedisSink.Get when nothing was reported yet.
var ErrNoStatus = errors.New("no status for bot")

// RedisSink stores the latest record as JSON at <prefix>:<bot id>.
type RedisSink struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisSink creates a sink. ttl 0 keeps the key forever.
func NewRedisSink(client *redis.Client, prefix string, ttl time.Duration) *RedisSink {
	if prefix == "" {
		prefix = "bot_status"
	}
	return &RedisSink{client: client, prefix: prefix, ttl: ttl}
}

// OpenRedisClient builds a client without contacting the server. Connections are
// dialled per command, so a store that starts later is picked up on the next Put.
func OpenRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewRedisClient connects and pings. For one-shot readers that should fail fast.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := OpenRedisClient(addr, password, db)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

func (s *RedisSink) key(botID string) string {
	return fmt.Sprintf("%s:%s", s.prefix, botID)
}

// Put upserts the record.
func (s *RedisSink) Put(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	return s.client.Set(ctx, s.key(rec.BotID), data, s.ttl).Err()
}

// Get reads the latest record for botID.
func (s *RedisSink) Get(ctx context.Context, botID string) (Record, error) {
	data, err := s.client.Get(ctx, s.key(botID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, ErrNoStatus
		}
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("unmarshal status: %w", err)
	}
	return rec, nil
}

// LogSink writes records to the log. Used when no store is configured.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink { return &LogSink{log: log} }

func (s *LogSink) Put(_ context.Context, rec Record) error {
	st := rec.Status
	s.log.Info().
		Bool("running", st.Running).
		Float64("balance", st.Balance).
		Int("open_positions", st.OpenPositions).
		Int("today_trades", st.TodayTrades).
		Float64("today_pnl", st.TodayPnL).
		Int64("candles", st.CandlesProcessed).
		Str("last_signal", st.LastSignal).
		Str("last_error", st.LastError).
		Str("message", st.Message).
		Msg("status")
	return nil
}
