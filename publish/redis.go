// Package publish fans service request events out to Redis.
//
// Every event is published as a JSON Message on a pub/sub channel and pushed onto a
// per-resource history list trimmed to a fixed length. Subscribers that connect late
// can read the list to catch up.
package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arloliu/go-ivi/ivierr"
	"github.com/arloliu/go-ivi/logger"
	"github.com/arloliu/go-ivi/srq"
)

// Default sink settings.
const (
	DefaultChannel        = "ivi:events"
	DefaultHistoryLength  = 1000
	DefaultPublishTimeout = time.Second
)

var (
	// ErrInvalidOptions is returned for out-of-range sink options.
	ErrInvalidOptions = ivierr.New("publish: invalid options", ivierr.ErrConfiguration)
	// ErrSinkClosed is returned by Publish after Close.
	ErrSinkClosed = ivierr.New("publish: sink closed", ivierr.ErrProtocolViolation)
)

// Options configures a RedisSink.
type Options struct {
	// Addr is the Redis address in host:port form.
	Addr     string
	Password string
	DB       int
	PoolSize int

	// Channel is the pub/sub channel. Empty selects DefaultChannel.
	Channel string
	// HistoryLength is the number of messages kept per resource. 0 selects
	// DefaultHistoryLength; a negative value disables the history list.
	HistoryLength int
	// PublishTimeout bounds one Publish issued by a Handler. 0 selects DefaultPublishTimeout.
	PublishTimeout time.Duration

	Logger logger.Logger
}

// RedisSink publishes service request events to Redis.
type RedisSink struct {
	client  *redis.Client
	channel string
	history int
	timeout time.Duration
	logger  logger.Logger

	mu     sync.RWMutex
	closed bool
}

// NewRedisSink connects to Redis and verifies the connection with PING.
func NewRedisSink(ctx context.Context, opts Options) (*RedisSink, error) {
	if strings.TrimSpace(opts.Addr) == "" {
		return nil, fmt.Errorf("%w: empty address", ErrInvalidOptions)
	}
	if opts.DB < 0 || opts.PoolSize < 0 || opts.PublishTimeout < 0 {
		return nil, fmt.Errorf("%w: negative db, pool size or timeout", ErrInvalidOptions)
	}

	sink := &RedisSink{
		channel: opts.Channel,
		history: opts.HistoryLength,
		timeout: opts.PublishTimeout,
		logger:  opts.Logger,
	}
	if sink.channel == "" {
		sink.channel = DefaultChannel
	}
	if sink.history == 0 {
		sink.history = DefaultHistoryLength
	}
	if sink.timeout == 0 {
		sink.timeout = DefaultPublishTimeout
	}
	if sink.logger == nil {
		sink.logger = logger.GetLogger()
	}

	sink.client = redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})

	if err := sink.client.Ping(ctx).Err(); err != nil {
		_ = sink.client.Close()
		return nil, fmt.Errorf("publish: connect %s: %w", opts.Addr, errors.Join(ivierr.ErrTransport, err))
	}
	sink.logger.Info("redis sink connected", "addr", opts.Addr, "channel", sink.channel)

	return sink, nil
}

// Channel returns the pub/sub channel.
func (r *RedisSink) Channel() string {
	return r.channel
}

// HistoryKey returns the key of the history list of resource.
func (r *RedisSink) HistoryKey(resource string) string {
	return fmt.Sprintf("ivi:%s:events", strings.ToUpper(resource))
}

// Publish sends msg to the channel and, when history is enabled, to the history list of
// its resource in one pipeline.
func (r *RedisSink) Publish(ctx context.Context, msg Message) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return ErrSinkClosed
	}

	data, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("publish: encode message: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.Publish(ctx, r.channel, data)
	if r.history > 0 {
		key := r.HistoryKey(msg.Resource)
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, int64(r.history-1))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish: %w", errors.Join(ivierr.ErrTransport, err))
	}

	return nil
}

// History returns up to n of the most recent messages of resource, newest first.
func (r *RedisSink) History(ctx context.Context, resource string, n int) ([]Message, error) {
	if n <= 0 {
		return nil, nil
	}

	items, err := r.client.LRange(ctx, r.HistoryKey(resource), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("publish: %w", errors.Join(ivierr.ErrTransport, err))
	}

	msgs := make([]Message, 0, len(items))
	for _, item := range items {
		var msg Message
		if err := unmarshal([]byte(item), &msg); err != nil {
			r.logger.Warn("skip malformed history entry", "resource", resource, "error", err)
			continue
		}
		msgs = append(msgs, msg)
	}

	return msgs, nil
}

// Handler returns a coordinator handler publishing the events of resource.
// Publish failures are logged.
func (r *RedisSink) Handler(resource string) srq.Handler {
	return func(ev srq.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		if err := r.Publish(ctx, NewMessage(resource, ev)); err != nil {
			r.logger.Warn("publish event failed", "resource", resource, "error", err)
		}
	}
}

// Close closes the Redis client. It is safe to call more than once.
func (r *RedisSink) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	return r.client.Close()
}
